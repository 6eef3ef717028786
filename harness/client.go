package harness

import (
	"bytes"
	"context"
	stderrors "errors"
	"os/exec"
	"time"

	"github.com/kballard/go-shellquote"

	"netbench/errors"
)

// ClientRunner runs the benchmark client to completion and returns its
// standard output.
type ClientRunner interface {
	Run(ctx context.Context, dir string) (string, error)
}

// ExecClient runs a configured command line with a time limit.
type ExecClient struct {
	args    []string
	timeout time.Duration
}

func NewExecClient(command string, timeout time.Duration) (*ExecClient, error) {
	args, err := shellquote.Split(command)
	if err != nil || len(args) == 0 {
		return nil, errors.New(errors.ErrConfigInvalid, "invalid command line",
			map[string]interface{}{
				"command": command,
			}, err)
	}
	return &ExecClient{args: args, timeout: timeout}, nil
}

// Run returns whatever the client printed even when it fails, so a run that
// printed its metrics before exiting nonzero is still usable.
func (c *ExecClient) Run(ctx context.Context, dir string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, c.args[0], c.args[1:]...)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}

	ctxMap := map[string]interface{}{
		"command": shellquote.Join(c.args...),
		"dir":     dir,
		"stderr":  string(tail(stderr.Bytes(), 1024)),
	}
	if stderrors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		ctxMap["timeout"] = c.timeout.String()
		return stdout.String(), errors.New(errors.ErrTimedOut, "client did not finish in time", ctxMap, err)
	}
	return stdout.String(), errors.New(errors.ErrProcess, "client failed", ctxMap, err)
}
