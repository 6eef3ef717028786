package harness

import (
	"context"
	"time"

	"go.uber.org/zap"

	"netbench/errors"
	"netbench/sweep/models"
)

const (
	packageName = "harness"

	stopGrace = 5 * time.Second
)

// Supervisor starts the benchmark server and holds it until the server
// announces that it listens on its port, moving to the next port whenever the
// port is taken. The port is compiled into the binaries, so every move
// rebuilds before respawning. Readiness comes from the server's own output:
// the server serves a fixed number of clients, so a test connection would
// take one of their places.
type Supervisor struct {
	builder         Builder
	launcher        Launcher
	conflicts       ConflictDetector
	readiness       ReadinessDetector
	ports           PortChecker
	pollAttempts    int
	pollBackoff     time.Duration
	maxBindAttempts int
	logger          *zap.Logger
}

// SupervisorOptions bound the readiness wait and the bind retries.
type SupervisorOptions struct {
	ProbeAttempts   int
	ProbeBackoff    time.Duration
	MaxBindAttempts int
}

// NewSupervisor returns a supervisor. ports may be nil, in which case every
// port is tried by spawning the server.
func NewSupervisor(builder Builder, launcher Launcher, conflicts ConflictDetector, readiness ReadinessDetector, ports PortChecker, opts SupervisorOptions) *Supervisor {
	return &Supervisor{
		builder:         builder,
		launcher:        launcher,
		conflicts:       conflicts,
		readiness:       readiness,
		ports:           ports,
		pollAttempts:    opts.ProbeAttempts,
		pollBackoff:     opts.ProbeBackoff,
		maxBindAttempts: opts.MaxBindAttempts,
		logger:          zap.L().With(zap.String("package", packageName), zap.String("component", "supervisor")),
	}
}

// RunServer spawns the server from buildDir and returns it once it reports
// listening on cfg.Port. The caller has already built cfg. On a bind
// conflict cfg.Port is incremented, so callers observe the port actually in
// use.
func (s *Supervisor) RunServer(ctx context.Context, buildDir string, cfg *models.SweepConfiguration) (Process, error) {
	built := cfg.Port
	for attempt := 1; attempt <= s.maxBindAttempts; attempt++ {
		if attempt > 1 {
			cfg.Port++
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if s.ports != nil && s.ports.InUse(cfg.Port) {
			s.logger.Warn("Port already held by another process, skipping",
				zap.String("operation", "run_server"),
				zap.Int("port", cfg.Port),
				zap.Int("attempt", attempt),
			)
			continue
		}

		if cfg.Port != built {
			if err := s.builder.Build(ctx, *cfg); err != nil {
				return nil, err
			}
			built = cfg.Port
		}

		proc, err := s.launcher.Start(ctx, buildDir)
		if err != nil {
			return nil, err
		}

		err = s.awaitListening(ctx, proc, cfg.Port)
		if err == nil {
			s.logger.Info("Server ready",
				zap.String("operation", "run_server"),
				zap.Int("port", cfg.Port),
				zap.Int("attempt", attempt),
			)
			return proc, nil
		}
		kill(proc)
		if !errors.Is(err, errors.ErrBindConflict) {
			return nil, err
		}
		s.logger.Warn("Server port in use, retrying on next port",
			zap.String("operation", "run_server"),
			zap.Int("port", cfg.Port),
			zap.Int("next_port", cfg.Port+1),
			zap.Int("attempt", attempt),
		)
	}

	return nil, errors.New(errors.ErrMaxAttempts, "server could not bind a free port",
		map[string]interface{}{
			"attempts":  s.maxBindAttempts,
			"last_port": cfg.Port,
		}, nil)
}

// awaitListening polls the server's output until it announces port, reports
// a bind conflict, exits or runs out of attempts. A conflict is returned as
// BIND_CONFLICT_ERROR.
func (s *Supervisor) awaitListening(ctx context.Context, proc Process, port int) error {
	backoff := s.pollBackoff
	for round := 1; round <= s.pollAttempts; round++ {
		out := processOutput(proc)
		if s.conflicts.BindConflict(out) {
			return conflictError(port, out)
		}
		if exited(proc) {
			return s.exitError(proc, port)
		}
		if s.readiness.Listening(out, port) {
			return nil
		}

		if round == s.pollAttempts {
			break
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-proc.Done():
			timer.Stop()
		case <-timer.C:
		}
		backoff = nextBackoff(backoff)
	}

	return errors.New(errors.ErrTimedOut, "server never reported listening",
		map[string]interface{}{
			"port":     port,
			"attempts": s.pollAttempts,
		}, nil)
}

func (s *Supervisor) exitError(proc Process, port int) error {
	exitErr := proc.Wait()
	out := processOutput(proc)
	if s.conflicts.BindConflict(out) {
		return conflictError(port, out)
	}
	return errors.New(errors.ErrProcess, "server exited before listening",
		map[string]interface{}{
			"port":   port,
			"output": string(tail([]byte(out), 1024)),
		}, exitErr)
}

func conflictError(port int, out string) error {
	return errors.New(errors.ErrBindConflict, "server port already in use",
		map[string]interface{}{
			"port":   port,
			"output": string(tail([]byte(out), 1024)),
		}, nil)
}

// stop interrupts proc and kills it if it has not exited after a grace
// period.
func stop(proc Process) {
	if exited(proc) {
		return
	}
	_ = proc.Interrupt()
	select {
	case <-proc.Done():
	case <-time.After(stopGrace):
		_ = proc.Kill()
		<-proc.Done()
	}
}

func kill(proc Process) {
	if exited(proc) {
		return
	}
	_ = proc.Kill()
	<-proc.Done()
}
