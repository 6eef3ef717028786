package harness

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"

	"netbench/errors"
	"netbench/sweep/models"
)

// Builder produces server and client binaries for one sweep point.
type Builder interface {
	Build(ctx context.Context, cfg models.SweepConfiguration) error
}

// CMakeBuilder configures the benchmark project with cmake, passing every
// sweep parameter as a cache variable, then runs make.
type CMakeBuilder struct {
	sourceDir  string
	buildDir   string
	jobs       int
	serverAddr string
	run        func(ctx context.Context, dir string, args []string) ([]byte, error)
	logger     *zap.Logger
}

// NewCMakeBuilder returns a builder for sourceDir writing into buildDir.
// serverAddr is compiled into the client and left out when empty.
func NewCMakeBuilder(sourceDir, buildDir string, jobs int, serverAddr string) (*CMakeBuilder, error) {
	src, err := filepath.Abs(sourceDir)
	if err != nil {
		return nil, errors.New(errors.ErrBuild, "invalid source directory",
			map[string]interface{}{
				"source_dir": sourceDir,
			}, err)
	}
	return &CMakeBuilder{
		sourceDir:  src,
		buildDir:   buildDir,
		jobs:       jobs,
		serverAddr: serverAddr,
		run:        runCommand,
		logger:     zap.L().With(zap.String("package", packageName), zap.String("component", "builder")),
	}, nil
}

// Commands returns the command lines Build runs for cfg, in order.
func (b *CMakeBuilder) Commands(cfg models.SweepConfiguration) [][]string {
	cmake := []string{
		"cmake", b.sourceDir,
		"-DCMAKE_BUILD_TYPE=Release",
		"-DPAGE_SIZE=" + strconv.Itoa(cfg.PageSize),
		"-DRING_SIZE=" + strconv.Itoa(cfg.RingSize),
		"-DNUM_REQUESTS=" + strconv.Itoa(cfg.NumRequests),
		"-DCLIENT_THREADS=" + strconv.Itoa(cfg.ClientThreads),
		"-DPORT=" + strconv.Itoa(cfg.Port),
	}
	if b.serverAddr != "" {
		cmake = append(cmake, fmt.Sprintf("-DSERVER_ADDR=%q", b.serverAddr))
	}
	return [][]string{
		cmake,
		{"make", "-j" + strconv.Itoa(b.jobs)},
	}
}

func (b *CMakeBuilder) Build(ctx context.Context, cfg models.SweepConfiguration) error {
	if err := os.MkdirAll(b.buildDir, 0o755); err != nil {
		return errors.New(errors.ErrBuild, "failed to create build directory",
			map[string]interface{}{
				"build_dir": b.buildDir,
			}, err)
	}

	for _, args := range b.Commands(cfg) {
		b.logger.Debug("Running build step",
			zap.String("operation", "build"),
			zap.String("command", shellquote.Join(args...)),
		)
		out, err := b.run(ctx, b.buildDir, args)
		if err != nil {
			b.logger.Error("Build step failed",
				zap.String("operation", "build"),
				zap.String("command", args[0]),
				zap.String("config", cfg.String()),
				zap.ByteString("output", tail(out, 2048)),
				zap.Error(err),
			)
			return errors.New(errors.ErrBuild, "build step failed",
				map[string]interface{}{
					"command": shellquote.Join(args...),
					"config":  cfg.String(),
				}, err)
		}
	}

	b.logger.Info("Build complete",
		zap.String("operation", "build"),
		zap.String("config", cfg.String()),
	)
	return nil
}

func runCommand(ctx context.Context, dir string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

func tail(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[len(b)-n:]
}

// ResolveServerAddr returns the first IPv4 address of host. IP literals are
// returned unchanged.
func ResolveServerAddr(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}
	ips, err := net.DefaultResolver.LookupIP(ctx, "ip4", host)
	if err != nil || len(ips) == 0 {
		return "", errors.New(errors.ErrConfigInvalid, "failed to resolve server address",
			map[string]interface{}{
				"server_addr": host,
			}, err)
	}
	return ips[0].String(), nil
}
