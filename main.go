package main

import (
	"context"
	stderrors "errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"netbench/awsd"
	"netbench/configuration"
	"netbench/driver"
	"netbench/errors"
	"netbench/logger"
	"netbench/remote"
	"netbench/store"
)

const (
	packageName = "main"
)

func main() {
	resetTopology := flag.Bool("reset-topology", false, "forget the stored network topology and provision a new one")
	flag.Parse()

	// Initialize logger
	if err := logger.Initialize("info"); err != nil {
		panic(errors.New(errors.ErrConfigParse, "Failed to initialize logger",
			map[string]interface{}{
				"operation": "logger_init",
			}, err))
	}
	defer logger.Sync()

	log := zap.L().With(zap.String("package", packageName))

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

	// Cancel on SIGINT/SIGTERM so in-flight AWS calls and sessions unwind
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, resources, err := newDriver(config, os.Stdout)
	if err != nil {
		log.Error("Failed to create AWS client",
			zap.String("operation", "aws_client_creation"),
			zap.Error(err),
		)
		os.Exit(1)
	}

	if *resetTopology {
		if err := resources.Delete(ctx); err != nil {
			log.Error("Failed to reset stored topology",
				zap.String("operation", "reset_topology"),
				zap.String("path", resources.Path()),
				zap.Error(err),
			)
			os.Exit(1)
		}
		log.Info("Stored topology removed",
			zap.String("operation", "reset_topology"),
			zap.String("path", resources.Path()),
		)
	}

	if err := d.Run(ctx, os.Stdin); err != nil {
		if stderrors.Is(err, context.Canceled) {
			log.Info("Received signal, shutting down",
				zap.String("operation", "shutdown"),
			)
			return
		}
		log.Error("Driver stopped",
			zap.String("operation", "driver_run"),
			zap.Error(err),
		)
		logger.Sync()
		os.Exit(1)
	}
}

// newDriver wires the EC2-backed components, the topology file and the SSH
// client into a driver writing to out.
func newDriver(config *configuration.Config, out io.Writer) (*driver.Driver, *store.File, error) {
	awsClient, err := awsd.NewAWSClient(config)
	if err != nil {
		return nil, nil, err
	}

	resources := store.NewFile(config.ResourceFile)
	addresses := awsd.NewAddressManager(awsClient, config)
	d := driver.New(driver.Dependencies{
		Store:       resources,
		Provisioner: awsd.NewProvisioner(awsClient, config),
		Instances:   awsd.NewInstanceManager(awsClient, config),
		Addresses:   addresses,
		Cleaner:     awsd.NewCleaner(awsClient, addresses),
		Remote:      remote.NewSSH(config, out),
	}, config, out)
	return d, resources, nil
}
