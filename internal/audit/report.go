package audit

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/fulmenhq/contentaudit/pkg/exitcode"
)

// Outcome is the final classification of a run.
type Outcome int

const (
	Passed Outcome = iota
	PassedWithWarnings
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Failed:
		return "failed"
	case PassedWithWarnings:
		return "passed_with_warnings"
	default:
		return "passed"
	}
}

// Message is the operator-facing line for the outcome.
func (o Outcome) Message() string {
	switch o {
	case Failed:
		return "‼️ Audit failed with errors"
	case PassedWithWarnings:
		return "⚠️ Audit passed with warnings"
	default:
		return "✅ Audit passed"
	}
}

// ExitCode maps the outcome onto process exit conventions.
func (o Outcome) ExitCode() int {
	if o == Failed {
		return exitcode.AuditFailed
	}
	return exitcode.Success
}

// Report classifies a finished run. Errors take precedence over warnings.
func Report(rc *RunContext) Outcome {
	switch {
	case rc.Error:
		return Failed
	case rc.Warning:
		return PassedWithWarnings
	default:
		return Passed
	}
}

var (
	failedColor  = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	passedColor  = color.New(color.FgGreen)
)

// Reporter renders outcomes for the operator.
type Reporter struct {
	Out     io.Writer
	NoColor bool
}

// NewReporter writes to out, or stdout when out is nil.
func NewReporter(out io.Writer, noColor bool) *Reporter {
	if out == nil {
		out = os.Stdout
	}
	return &Reporter{Out: out, NoColor: noColor}
}

// Emit writes the outcome message.
func (r *Reporter) Emit(o Outcome) {
	msg := o.Message()
	if !r.NoColor {
		c := passedColor
		switch o {
		case Failed:
			c = failedColor
		case PassedWithWarnings:
			c = warningColor
		}
		msg = c.Sprint(msg)
	}
	fmt.Fprintln(r.Out, msg) //nolint:errcheck // CLI output errors are typically ignored
}
