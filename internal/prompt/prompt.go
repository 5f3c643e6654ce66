// Package prompt asks the operator yes/no questions on the terminal.
package prompt

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/fulmenhq/contentaudit/pkg/logger"
	"golang.org/x/term"
)

// Question is appended to every confirmation message.
const Question = "Do you want to continue? [y/N] "

// TerminalGate confirms destructive actions with the operator.
type TerminalGate struct {
	In        io.Reader
	Out       io.Writer
	AssumeYes bool
}

// NewTerminalGate builds a gate over the given streams.
func NewTerminalGate(in io.Reader, out io.Writer, assumeYes bool) *TerminalGate {
	return &TerminalGate{In: in, Out: out, AssumeYes: assumeYes}
}

// Confirm writes message and the question, then reads one answer line.
// Only "y" or "yes" (any case) confirm. A non-terminal stdin declines unless
// AssumeYes is set.
func (g *TerminalGate) Confirm(ctx context.Context, message string) (bool, error) {
	if g.AssumeYes {
		logger.Info("Confirmation assumed (--yes)")
		return true, nil
	}
	if !interactive(g.In) {
		logger.Warn("Standard input is not a terminal; declining. Re-run with --yes to confirm non-interactively")
		return false, nil
	}

	out := g.Out
	if out == nil {
		out = os.Stdout
	}
	if message != "" {
		fmt.Fprintln(out, message) //nolint:errcheck // CLI output errors are typically ignored
	}
	fmt.Fprint(out, Question) //nolint:errcheck // CLI output errors are typically ignored

	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := bufio.NewReader(g.In).ReadString('\n')
		ch <- answer{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case a := <-ch:
		if a.err != nil && !errors.Is(a.err, io.EOF) {
			return false, errors.Wrap(a.err, "read confirmation")
		}
		return isYes(a.line), nil
	}
}

func isYes(line string) bool {
	line = strings.ToLower(strings.TrimSpace(line))
	return line == "y" || line == "yes"
}

// interactive reports whether r can prompt a human. Only real files are
// checked; other readers are caller-supplied answers.
func interactive(r io.Reader) bool {
	if r == nil {
		return false
	}
	f, ok := r.(*os.File)
	if !ok {
		return true
	}
	return term.IsTerminal(int(f.Fd())) // #nosec G115 -- file descriptors fit in int
}
