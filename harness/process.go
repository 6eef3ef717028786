package harness

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/kballard/go-shellquote"

	"netbench/errors"
)

// pipeDrain bounds how long Wait keeps reading output after the process
// exits, in case a grandchild still holds the pipes.
const pipeDrain = 2 * time.Second

// Process is a spawned benchmark binary under supervision.
type Process interface {
	// Stdout returns everything the process wrote to standard output so far.
	Stdout() string
	// Stderr returns everything the process wrote to standard error so far.
	Stderr() string
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	Interrupt() error
	Kill() error
	// Wait blocks until exit and returns the exit error.
	Wait() error
}

// Launcher spawns the server binary in a directory.
type Launcher interface {
	Start(ctx context.Context, dir string) (Process, error)
}

// ExecLauncher starts a configured command line as a child process.
type ExecLauncher struct {
	args   []string
	stdout io.Writer
}

// NewExecLauncher splits command with shell quoting rules. The child's
// standard output is captured and also forwarded to stdout when it is not
// nil.
func NewExecLauncher(command string, stdout io.Writer) (*ExecLauncher, error) {
	args, err := shellquote.Split(command)
	if err != nil || len(args) == 0 {
		return nil, errors.New(errors.ErrConfigInvalid, "invalid command line",
			map[string]interface{}{
				"command": command,
			}, err)
	}
	return &ExecLauncher{args: args, stdout: stdout}, nil
}

func (l *ExecLauncher) Start(ctx context.Context, dir string) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := &execProcess{done: make(chan struct{})}
	p.cmd = exec.Command(l.args[0], l.args[1:]...)
	p.cmd.Dir = dir
	p.cmd.Stdout = &p.stdout
	if l.stdout != nil {
		p.cmd.Stdout = io.MultiWriter(l.stdout, &p.stdout)
	}
	p.cmd.Stderr = &p.stderr
	p.cmd.WaitDelay = pipeDrain

	if err := p.cmd.Start(); err != nil {
		return nil, errors.New(errors.ErrProcess, "failed to start process",
			map[string]interface{}{
				"command": shellquote.Join(l.args...),
				"dir":     dir,
			}, err)
	}
	go func() {
		p.exitErr = p.cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

type execProcess struct {
	cmd     *exec.Cmd
	stdout  lockedBuffer
	stderr  lockedBuffer
	done    chan struct{}
	exitErr error
}

func (p *execProcess) Stdout() string {
	return p.stdout.String()
}

func (p *execProcess) Stderr() string {
	return p.stderr.String()
}

func (p *execProcess) Done() <-chan struct{} {
	return p.done
}

func (p *execProcess) Interrupt() error {
	if exited(p) {
		return nil
	}
	return p.cmd.Process.Signal(os.Interrupt)
}

func (p *execProcess) Kill() error {
	if exited(p) {
		return nil
	}
	return p.cmd.Process.Kill()
}

func (p *execProcess) Wait() error {
	<-p.done
	return p.exitErr
}

// processOutput joins everything p printed on both streams.
func processOutput(p Process) string {
	return p.Stdout() + "\n" + p.Stderr()
}

// exited reports whether p has exited without blocking.
func exited(p Process) bool {
	select {
	case <-p.Done():
		return true
	default:
		return false
	}
}

// lockedBuffer is a bytes.Buffer safe for one writer and concurrent readers.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
