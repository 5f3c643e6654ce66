package exitcode

import (
	"errors"
	"fmt"
	"testing"
)

func TestString(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{Success, "Success"},
		{GeneralError, "General error"},
		{ConfigError, "Configuration error"},
		{AuditFailed, "Audit failed"},
		{FileSystemError, "File system error"},
		{SchemaError, "Schema error"},
		{IndexError, "Index error"},
		{42, "Unknown error"},
	}
	for _, tt := range tests {
		if got := String(tt.code); got != tt.want {
			t.Errorf("String(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestCodesAreDistinct(t *testing.T) {
	seen := map[int]bool{}
	for _, c := range []int{Success, GeneralError, ConfigError, AuditFailed, FileSystemError, SchemaError, IndexError} {
		if seen[c] {
			t.Fatalf("duplicate exit code %d", c)
		}
		seen[c] = true
	}
}

func TestErrorUnwrap(t *testing.T) {
	base := errors.New("audit failed with errors")
	wrapped := fmt.Errorf("run: %w", New(AuditFailed, base))

	var ee *Error
	if !errors.As(wrapped, &ee) {
		t.Fatal("expected errors.As to find *Error")
	}
	if ee.Code != AuditFailed {
		t.Errorf("Code = %d", ee.Code)
	}
	if !errors.Is(wrapped, base) {
		t.Error("expected wrapped error to match base")
	}
	if ee.Error() != base.Error() {
		t.Errorf("Error() = %q", ee.Error())
	}
}

func TestErrorWithoutCause(t *testing.T) {
	e := New(SchemaError, nil)
	if e.Error() != "exit 5: Schema error" {
		t.Errorf("Error() = %q", e.Error())
	}
}
