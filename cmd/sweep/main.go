package main

import (
	"context"
	stderrors "errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"netbench/configuration"
	"netbench/errors"
	"netbench/harness"
	"netbench/logger"
	"netbench/sweep"
)

const (
	packageName = "main"

	probeDialTimeout = time.Second
)

func main() {
	// Initialize logger
	if err := logger.Initialize("info"); err != nil {
		panic(errors.New(errors.ErrConfigParse, "Failed to initialize logger",
			map[string]interface{}{
				"operation": "logger_init",
			}, err))
	}
	defer logger.Sync()

	log := zap.L().With(zap.String("package", packageName))
	log.Info("Sweep runner starting",
		zap.String("operation", "startup"),
	)

	// Load configuration
	config, err := configuration.Initialize()
	if err != nil {
		log.Error("Failed to load configuration",
			zap.String("operation", "config_load"),
			zap.Error(err),
		)
		os.Exit(1)
	}
	if config.LogLevel != "info" {
		if err := logger.Initialize(config.LogLevel); err != nil {
			log.Warn("Invalid log level, keeping info",
				zap.String("operation", "logger_init"),
				zap.String("level", config.LogLevel),
				zap.Error(err),
			)
		}
		log = zap.L().With(zap.String("package", packageName))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config, os.Stdout); err != nil {
		if stderrors.Is(err, context.Canceled) {
			log.Info("Received signal, shutting down",
				zap.String("operation", "shutdown"),
			)
			return
		}
		log.Error("Sweep failed",
			zap.String("operation", "run_sweep"),
			zap.Error(err),
		)
		logger.Sync()
		os.Exit(1)
	}
}

// run loads the sweep, opens the results file and runs every point. Server
// output goes to out.
func run(ctx context.Context, config *configuration.Config, out io.Writer) error {
	domains, err := loadDomains(config)
	if err != nil {
		return err
	}

	results, err := openResults(config)
	if err != nil {
		return err
	}
	defer results.Close()

	h, err := newHarness(ctx, config, results, out)
	if err != nil {
		return err
	}

	rows, err := h.RunSweep(ctx, domains)
	if err != nil {
		return err
	}
	zap.L().With(zap.String("package", packageName)).Info("Results written",
		zap.String("operation", "run_sweep"),
		zap.Int("rows", len(rows)),
		zap.String("results_file", config.ResultsFile),
	)
	return nil
}

// loadDomains reads SWEEP_FILE when set and falls back to the built-in
// sweep otherwise.
func loadDomains(config *configuration.Config) (sweep.Domains, error) {
	if config.SweepFile != "" {
		return sweep.LoadFile(config.SweepFile, config.NumRequests, config.InitialPort)
	}
	domains := sweep.DefaultDomains(config.NumRequests, config.InitialPort)
	if err := domains.Validate(); err != nil {
		return sweep.Domains{}, err
	}
	return domains, nil
}

// openResults creates the CSV file. A server-mode run records nothing, so it
// leaves any existing results file alone.
func openResults(config *configuration.Config) (*harness.CSVWriter, error) {
	if config.SweepMode == configuration.ModeServer {
		return harness.NewCSVWriter(io.Discard)
	}
	return harness.CreateCSVFile(config.ResultsFile)
}

// newHarness wires the builder, server supervisor and client for the
// configured mode.
func newHarness(ctx context.Context, config *configuration.Config, results harness.ResultWriter, out io.Writer) (*harness.Harness, error) {
	serverAddr := ""
	if config.SweepMode == configuration.ModeClient {
		addr, err := harness.ResolveServerAddr(ctx, config.ServerAddr)
		if err != nil {
			return nil, err
		}
		serverAddr = addr
	}

	builder, err := harness.NewCMakeBuilder(config.SourceDir, config.BuildDir, config.MakeJobs, serverAddr)
	if err != nil {
		return nil, err
	}
	opts := harness.Options{
		Mode:             config.SweepMode,
		BuildDir:         config.BuildDir,
		ServerAddr:       serverAddr,
		Builder:          builder,
		Parser:           harness.RegexParser{},
		Results:          results,
		ProbeAttempts:    config.ReadyProbeAttempts,
		ProbeBackoff:     config.ReadyProbeBackoff,
		RemoteStartDelay: config.RemoteStartDelay,
	}
	// A readiness dial takes one of the server's client slots, so dialing the
	// remote server is opt-in for servers that tolerate it.
	if config.RemoteReadyProbe {
		opts.Prober = harness.NewTCPProber(probeDialTimeout)
	}

	if config.SweepMode != configuration.ModeClient {
		launcher, err := harness.NewExecLauncher(config.ServerBinary, out)
		if err != nil {
			return nil, err
		}
		opts.Server = harness.NewSupervisor(builder, launcher,
			harness.NewMarkerDetector(), harness.NewListenDetector(nil), harness.ListenChecker{},
			harness.SupervisorOptions{
				ProbeAttempts:   config.ReadyProbeAttempts,
				ProbeBackoff:    config.ReadyProbeBackoff,
				MaxBindAttempts: config.MaxBindAttempts,
			})
	}
	if config.SweepMode != configuration.ModeServer {
		client, err := harness.NewExecClient(config.ClientBinary, config.ClientTimeout)
		if err != nil {
			return nil, err
		}
		opts.Client = client
	}

	return harness.New(opts), nil
}
