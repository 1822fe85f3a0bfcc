package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/harrison/corerun/internal/models"
)

// consoleHITLGate prompts an operator on the terminal for each checkpoint,
// the way the teacher's consoleLogger renders wave progress directly to the
// terminal instead of through a display abstraction. It blocks on stdin, so
// it is only appropriate for interactive `corerun query` runs — headless
// runs should use wave.AutoApprove or wave.RejectAll instead.
type consoleHITLGate struct {
	in  *bufio.Reader
	out io.Writer
}

func newConsoleHITLGate(in io.Reader, out io.Writer) *consoleHITLGate {
	return &consoleHITLGate{in: bufio.NewReader(in), out: out}
}

func (g *consoleHITLGate) Request(ctx context.Context, req models.HITLRequest) (models.HITLDecision, error) {
	warn := color.New(color.FgYellow, color.Bold)
	warn.Fprintf(g.out, "\n[HITL] task %s (wave %s) requires approval: %s\n", req.TaskID, req.WaveName, req.Reason)
	fmt.Fprint(g.out, "Approve? [y/N]: ")

	type answer struct {
		line string
		err  error
	}
	resultCh := make(chan answer, 1)
	go func() {
		line, err := g.in.ReadString('\n')
		resultCh <- answer{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return models.HITLReject, ctx.Err()
	case a := <-resultCh:
		if a.err != nil && a.line == "" {
			return models.HITLReject, a.err
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "y", "yes":
			return models.HITLApprove, nil
		default:
			return models.HITLReject, nil
		}
	}
}
