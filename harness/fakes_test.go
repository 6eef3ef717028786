package harness

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"netbench/sweep/models"
)

type fakeProcess struct {
	mu          sync.Mutex
	stdout      []string
	stderr      string
	exitErr     error
	done        chan struct{}
	once        sync.Once
	killed      int32
	interrupted int32
}

func newFakeProcess(stderr string, alreadyExited bool) *fakeProcess {
	p := &fakeProcess{stderr: stderr, done: make(chan struct{})}
	if alreadyExited {
		p.finish()
	}
	return p
}

// printing sets what successive Stdout calls return; the last value sticks.
func (p *fakeProcess) printing(stdout ...string) *fakeProcess {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stdout = stdout
	return p
}

func (p *fakeProcess) finish() {
	p.once.Do(func() { close(p.done) })
}

func (p *fakeProcess) Stdout() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.stdout) == 0 {
		return ""
	}
	out := p.stdout[0]
	if len(p.stdout) > 1 {
		p.stdout = p.stdout[1:]
	}
	return out
}

func (p *fakeProcess) Stderr() string        { return p.stderr }
func (p *fakeProcess) Done() <-chan struct{} { return p.done }

func (p *fakeProcess) Interrupt() error {
	atomic.AddInt32(&p.interrupted, 1)
	p.finish()
	return nil
}

func (p *fakeProcess) Kill() error {
	atomic.AddInt32(&p.killed, 1)
	p.finish()
	return nil
}

func (p *fakeProcess) Wait() error {
	<-p.done
	return p.exitErr
}

// fakeLauncher hands out processes in order, repeating the last one.
type fakeLauncher struct {
	procs  []*fakeProcess
	starts int
}

func (l *fakeLauncher) Start(ctx context.Context, dir string) (Process, error) {
	i := l.starts
	if i >= len(l.procs) {
		i = len(l.procs) - 1
	}
	l.starts++
	return l.procs[i], nil
}

type fakeBuilder struct {
	mu     sync.Mutex
	builds []models.SweepConfiguration
	fail   func(models.SweepConfiguration) bool
}

func (b *fakeBuilder) Build(ctx context.Context, cfg models.SweepConfiguration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.builds = append(b.builds, cfg)
	if b.fail != nil && b.fail(cfg) {
		return fmt.Errorf("make: *** [all] Error 2")
	}
	return nil
}

type proberFunc func(ctx context.Context, host string, port int) bool

func (f proberFunc) Ready(ctx context.Context, host string, port int) bool {
	return f(ctx, host, port)
}

type portsFunc func(port int) bool

func (f portsFunc) InUse(port int) bool {
	return f(port)
}

// fakeServer stands in for the supervisor in sweep tests.
type fakeServer struct {
	procs     []*fakeProcess
	ports     []int
	exited    bool
	fail      func(models.SweepConfiguration) bool
	bumpPorts bool
}

func (s *fakeServer) RunServer(ctx context.Context, buildDir string, cfg *models.SweepConfiguration) (Process, error) {
	if s.fail != nil && s.fail(*cfg) {
		return nil, fmt.Errorf("server failed to start")
	}
	if s.bumpPorts {
		cfg.Port++
	}
	s.ports = append(s.ports, cfg.Port)
	p := newFakeProcess("", s.exited)
	s.procs = append(s.procs, p)
	return p, nil
}

type fakeClient struct {
	outputs []string
	errs    []error
	calls   int
}

func (c *fakeClient) Run(ctx context.Context, dir string) (string, error) {
	i := c.calls
	c.calls++
	var out string
	var err error
	if len(c.outputs) > 0 {
		out = c.outputs[i%len(c.outputs)]
	}
	if len(c.errs) > 0 {
		err = c.errs[i%len(c.errs)]
	}
	return out, err
}

type failingWriter struct{}

func (failingWriter) Write(r models.BenchmarkResult) error {
	return fmt.Errorf("disk full")
}
