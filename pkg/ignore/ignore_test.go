package ignore

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestMatcherLayers(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "# generated\n*.log\ndist/\n")
	writeFile(t, filepath.Join(root, FileName), "# audit overrides\ncontent/drafts/\n*.bak\n")

	m, err := NewMatcher(root)
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}

	tests := []struct {
		path  string
		isDir bool
		want  bool
	}{
		{"content/posts/hello.md", false, false},
		{"debug.log", false, true},
		{"dist", true, true},
		{"content/drafts", true, true},
		{"content/posts/hello.md.bak", false, true},
		{".git/config", false, true},
		{".contentaudit/index.db", false, true},
		{"node_modules/pkg/index.js", false, true},
	}
	for _, tt := range tests {
		var got bool
		if tt.isDir {
			got = m.IsIgnoredDir(tt.path)
		} else {
			got = m.IsIgnored(tt.path)
		}
		if got != tt.want {
			t.Errorf("ignored(%q, dir=%v) = %v, want %v", tt.path, tt.isDir, got, tt.want)
		}
	}
}

func TestMatcherAbsolutePaths(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "*.tmp\n")
	m, err := NewMatcher(root)
	if err != nil {
		t.Fatal(err)
	}

	if !m.IsIgnored(filepath.Join(root, "content", "x.tmp")) {
		t.Error("expected absolute path under root to be ignored")
	}
	if m.IsIgnored(filepath.Join(filepath.Dir(root), "x.tmp")) {
		t.Error("paths outside the root are never ignored")
	}
}

func TestNilMatcher(t *testing.T) {
	var m *Matcher
	if m.IsIgnored("anything") || m.IsIgnoredDir("dir") {
		t.Error("nil matcher must not ignore")
	}
}

func TestReadIgnoreFileRejectsOtherNames(t *testing.T) {
	if _, err := readIgnoreFile("/etc/passwd"); err == nil {
		t.Error("expected disallowed path error")
	}
}

func TestSplitPath(t *testing.T) {
	tests := map[string][]string{
		"":              {},
		".":             {},
		"/a/b":          {"a", "b"},
		"a//b/./c":      {"a", "b", "c"},
		"content/posts": {"content", "posts"},
	}
	for in, want := range tests {
		if got := splitPath(in); !reflect.DeepEqual(got, want) {
			t.Errorf("splitPath(%q) = %v, want %v", in, got, want)
		}
	}
}
