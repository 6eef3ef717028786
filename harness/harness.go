package harness

import (
	"context"
	"time"

	"go.uber.org/zap"

	"netbench/configuration"
	"netbench/sweep"
	"netbench/sweep/models"
)

// ServerRunner starts a benchmark server that is ready for a client.
type ServerRunner interface {
	RunServer(ctx context.Context, buildDir string, cfg *models.SweepConfiguration) (Process, error)
}

// Harness runs one build, serve and measure trial per sweep point.
type Harness struct {
	mode       string
	buildDir   string
	serverAddr string

	builder Builder
	server  ServerRunner
	client  ClientRunner
	parser  MetricsParser
	results ResultWriter

	prober           Prober
	probeAttempts    int
	probeBackoff     time.Duration
	remoteStartDelay time.Duration

	logger *zap.Logger
}

// Options wires a Harness. The remaining fields are used in client mode,
// where the server runs on ServerAddr: with a Prober the client waits until
// the server accepts a connection, which the server must tolerate;
// without one it waits RemoteStartDelay before every point.
type Options struct {
	Mode       string
	BuildDir   string
	ServerAddr string

	Builder Builder
	Server  ServerRunner
	Client  ClientRunner
	Parser  MetricsParser
	Results ResultWriter

	Prober           Prober
	ProbeAttempts    int
	ProbeBackoff     time.Duration
	RemoteStartDelay time.Duration
}

func New(opts Options) *Harness {
	parser := opts.Parser
	if parser == nil {
		parser = RegexParser{}
	}
	return &Harness{
		mode:             opts.Mode,
		buildDir:         opts.BuildDir,
		serverAddr:       opts.ServerAddr,
		builder:          opts.Builder,
		server:           opts.Server,
		client:           opts.Client,
		parser:           parser,
		results:          opts.Results,
		prober:           opts.Prober,
		probeAttempts:    opts.ProbeAttempts,
		probeBackoff:     opts.ProbeBackoff,
		remoteStartDelay: opts.RemoteStartDelay,
		logger:           zap.L().With(zap.String("package", packageName), zap.String("mode", opts.Mode)),
	}
}

// RunSweep runs every point of domains in order. A point that fails to
// build, start or measure still yields a row with missing metrics; only a
// cancelled context or a failure to record a row stops the sweep. Server
// mode records no rows.
func (h *Harness) RunSweep(ctx context.Context, domains sweep.Domains) ([]models.BenchmarkResult, error) {
	points := domains.Points()
	h.logger.Info("Starting sweep",
		zap.String("operation", "run_sweep"),
		zap.Int("points", len(points)),
	)

	var results []models.BenchmarkResult
	for i, point := range points {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		// Split-host runs cannot negotiate ports, so both sides advance
		// one port per point.
		if h.mode != configuration.ModeLocal {
			point.Port = domains.InitialPort + i
		}

		h.logger.Info("Running experiment",
			zap.String("operation", "run_sweep"),
			zap.Int("index", i+1),
			zap.Int("of", len(points)),
			zap.String("config", point.String()),
		)

		switch h.mode {
		case configuration.ModeServer:
			if err := h.servePoint(ctx, point); err != nil {
				if ctx.Err() != nil {
					return results, ctx.Err()
				}
				h.logPointFailure(point, err)
			}
			continue
		case configuration.ModeClient:
			result := h.clientPoint(ctx, point)
			if err := ctx.Err(); err != nil {
				return results, err
			}
			if err := h.results.Write(result); err != nil {
				return results, err
			}
			results = append(results, result)
		default:
			result := h.localPoint(ctx, point)
			if err := ctx.Err(); err != nil {
				return results, err
			}
			if err := h.results.Write(result); err != nil {
				return results, err
			}
			results = append(results, result)
		}
	}

	h.logger.Info("Sweep complete",
		zap.String("operation", "run_sweep"),
		zap.Int("rows", len(results)),
	)
	return results, nil
}

func (h *Harness) localPoint(ctx context.Context, point models.SweepConfiguration) models.BenchmarkResult {
	if err := h.builder.Build(ctx, point); err != nil {
		h.logPointFailure(point, err)
		return resultFor(point, Metrics{})
	}

	cfg := point
	proc, err := h.server.RunServer(ctx, h.buildDir, &cfg)
	if err != nil {
		h.logPointFailure(cfg, err)
		return resultFor(point, Metrics{})
	}
	defer stop(proc)

	return h.measure(ctx, point, cfg)
}

func (h *Harness) clientPoint(ctx context.Context, point models.SweepConfiguration) models.BenchmarkResult {
	if err := h.builder.Build(ctx, point); err != nil {
		h.logPointFailure(point, err)
		return resultFor(point, Metrics{})
	}
	if err := h.awaitRemote(ctx, point.Port); err != nil {
		h.logPointFailure(point, err)
		return resultFor(point, Metrics{})
	}
	return h.measure(ctx, point, point)
}

// awaitRemote waits for the server on the other host to come up on port.
func (h *Harness) awaitRemote(ctx context.Context, port int) error {
	if h.prober != nil {
		return waitReady(ctx, h.prober, h.serverAddr, port, h.probeAttempts, h.probeBackoff)
	}
	if h.remoteStartDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(h.remoteStartDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// measure runs the client and parses whatever it printed. running is the
// configuration the server actually uses.
func (h *Harness) measure(ctx context.Context, point, running models.SweepConfiguration) models.BenchmarkResult {
	output, err := h.client.Run(ctx, h.buildDir)
	if err != nil {
		h.logPointFailure(running, err)
	}
	metrics := h.parser.Parse(output)
	if metrics.RatePerSecond == "" || metrics.Gbps == "" {
		h.logger.Warn("Metrics missing from client output",
			zap.String("operation", "parse_output"),
			zap.String("config", running.String()),
			zap.String("rate_per_second", metrics.RatePerSecond),
			zap.String("gbps", metrics.Gbps),
		)
	}
	return resultFor(point, metrics)
}

// servePoint builds and serves one point, returning when the remote client
// has finished with the server and it exits.
func (h *Harness) servePoint(ctx context.Context, point models.SweepConfiguration) error {
	if err := h.builder.Build(ctx, point); err != nil {
		return err
	}

	cfg := point
	proc, err := h.server.RunServer(ctx, h.buildDir, &cfg)
	if err != nil {
		return err
	}
	if cfg.Port != point.Port {
		h.logger.Warn("Server moved off the agreed port; the remote client will not find it",
			zap.String("operation", "serve_point"),
			zap.Int("agreed_port", point.Port),
			zap.Int("port", cfg.Port),
		)
	}

	select {
	case <-proc.Done():
	case <-ctx.Done():
		stop(proc)
		return ctx.Err()
	}
	if err := proc.Wait(); err != nil {
		h.logger.Warn("Server exited with error",
			zap.String("operation", "serve_point"),
			zap.String("config", cfg.String()),
			zap.Error(err),
		)
	}
	return nil
}

func (h *Harness) logPointFailure(point models.SweepConfiguration, err error) {
	h.logger.Error("Experiment failed",
		zap.String("operation", "run_sweep"),
		zap.String("config", point.String()),
		zap.Error(err),
	)
}
