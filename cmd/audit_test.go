package cmd

import (
	"fmt"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/cockroachdb/errors"
	"github.com/fulmenhq/contentaudit/pkg/exitcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	validPost   = "---\nstatus: published\ntitle: Good\n---\nBody\n"
	invalidPost = "---\nstatus: archived\n---\nNo title\n"
)

func exitErr(code int) error { return exitcode.New(code, errors.New("boom")) }

func wrapErr(err error) error { return fmt.Errorf("outer: %w", err) }

func TestAudit_Passed(t *testing.T) {
	root := writeSite(t, map[string]string{"content/posts/good.md": validPost})

	out, err := execRoot(t, nil, []string{"audit", "--root", root, "--no-telemetry"})
	require.NoError(t, err, out)
	assert.Contains(t, out, "Audit passed")
}

func TestAudit_FailedReturnsAuditExitCode(t *testing.T) {
	root := writeSite(t, map[string]string{
		"content/posts/good.md": validPost,
		"content/posts/bad.md":  invalidPost,
	})

	out, err := execRoot(t, nil, []string{"audit", "--root", root, "--no-telemetry"})
	require.Error(t, err)
	assert.Contains(t, out, "Audit failed with errors")
	assert.Equal(t, exitcode.AuditFailed, exitCodeFor(err))
}

func TestAudit_WarningForWrongExtension(t *testing.T) {
	root := writeSite(t, map[string]string{
		"content/posts/good.md":  validPost,
		"content/posts/odd.json": `{"title": "Odd"}`,
	})

	out, err := execRoot(t, nil, []string{"audit", "--root", root, "--no-telemetry"})
	require.NoError(t, err, out)
	assert.Contains(t, out, "Audit passed with warnings")
}

func TestAudit_VerboseSummary(t *testing.T) {
	root := writeSite(t, map[string]string{"content/posts/good.md": validPost})

	out, err := execRoot(t, nil, []string{"audit", "--root", root, "--no-telemetry", "--verbose"})
	require.NoError(t, err, out)
	assert.Contains(t, out, "content/posts")
	assert.Contains(t, out, "blog posts")
}

func TestAudit_DoesNotWriteWithoutClean(t *testing.T) {
	messy := "---\ntitle: Messy\nextra: true\n---\nBody\n"
	root := writeSite(t, map[string]string{"content/posts/messy.md": messy})

	out, err := execRoot(t, nil, []string{"audit", "--root", root, "--no-telemetry", "--use-default-values"})
	require.NoError(t, err, out)
	assert.Equal(t, messy, readFile(t, root, "content/posts/messy.md"))
}

func TestAudit_CleanDeclined(t *testing.T) {
	messy := "---\ntitle: Messy\nextra: true\n---\nBody\n"
	root := writeSite(t, map[string]string{"content/posts/messy.md": messy})

	out, err := execRoot(t, strings.NewReader("n\n"), []string{"audit", "--root", root, "--no-telemetry", "--clean"})
	require.NoError(t, err, out)
	assert.Contains(t, out, "Do you want to continue?")
	assert.NotContains(t, out, "Audit passed")
	assert.Equal(t, messy, readFile(t, root, "content/posts/messy.md"))
}

func TestAudit_CleanRewritesDocuments(t *testing.T) {
	root := writeSite(t, map[string]string{
		"content/posts/messy.md": "---\ntitle: Messy\nextra: true\n---\nBody\n",
	})

	out, err := execRoot(t, nil, []string{
		"audit", "--root", root, "--noTelemetry", "--clean", "--yes", "--useDefaultValues",
	})
	require.NoError(t, err, out)
	assert.Contains(t, out, "Audit passed")
	assert.Equal(t, "---\nstatus: draft\ntitle: Messy\n---\nBody\n", readFile(t, root, "content/posts/messy.md"))
}

func TestAudit_MissingSchemaIsSchemaError(t *testing.T) {
	root := t.TempDir()

	_, err := execRoot(t, nil, []string{"audit", "--root", root, "--no-telemetry"})
	require.Error(t, err)
	assert.Equal(t, exitcode.SchemaError, exitCodeFor(err))
}

func TestAudit_RejectsArguments(t *testing.T) {
	_, err := execRoot(t, nil, []string{"audit", "extra"})
	require.Error(t, err)
}

func TestAudit_GateFailureIsWrapped(t *testing.T) {
	root := writeSite(t, map[string]string{"content/posts/good.md": validPost})

	in := iotest.ErrReader(errors.WithHint(errors.New("terminal closed"), "re-run with --yes"))
	_, err := execRoot(t, in, []string{"audit", "--root", root, "--no-telemetry", "--clean"})
	require.Error(t, err)
	assert.Equal(t, exitcode.GeneralError, exitCodeFor(err))
	assert.Contains(t, err.Error(), "audit: confirm clean mode")
	assert.Contains(t, errors.GetAllHints(err), "re-run with --yes")
}
