package main

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netbench/configuration"
	"netbench/errors"
	"netbench/harness"
)

func testConfig(t *testing.T, mode string) *configuration.Config {
	t.Helper()
	dir := t.TempDir()
	return &configuration.Config{
		SweepMode:          mode,
		SourceDir:          dir,
		BuildDir:           filepath.Join(dir, "build"),
		MakeJobs:           2,
		ServerBinary:       "./simple_iou_server",
		ClientBinary:       "./simple_iou_client",
		ServerAddr:         "127.0.0.1",
		InitialPort:        12348,
		NumRequests:        1048576,
		ResultsFile:        filepath.Join(dir, "experiment_results.csv"),
		ReadyProbeAttempts: 2,
		ReadyProbeBackoff:  time.Millisecond,
		MaxBindAttempts:    2,
		ClientTimeout:      time.Second,
	}
}

func writeSweepFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sweep.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDomains(t *testing.T) {
	t.Run("built-in sweep", func(t *testing.T) {
		config := testConfig(t, configuration.ModeLocal)
		domains, err := loadDomains(config)
		require.NoError(t, err)
		assert.Equal(t, 120, domains.Len())
		assert.Equal(t, []int{1048576}, domains.NumRequests)
		assert.Equal(t, 12348, domains.InitialPort)
	})

	t.Run("sweep file", func(t *testing.T) {
		config := testConfig(t, configuration.ModeLocal)
		config.SweepFile = writeSweepFile(t, `
page_sizes     = [16]
ring_sizes     = [8, 32]
client_threads = [4]
initial_port   = 20000
`)
		domains, err := loadDomains(config)
		require.NoError(t, err)
		assert.Equal(t, 2, domains.Len())
		assert.Equal(t, 20000, domains.InitialPort)
		assert.Equal(t, []int{1048576}, domains.NumRequests)
	})

	t.Run("missing sweep file", func(t *testing.T) {
		config := testConfig(t, configuration.ModeLocal)
		config.SweepFile = filepath.Join(t.TempDir(), "absent.hcl")
		_, err := loadDomains(config)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrSweepFile))
	})
}

func TestOpenResults_ServerModeLeavesFileAlone(t *testing.T) {
	config := testConfig(t, configuration.ModeServer)
	require.NoError(t, os.WriteFile(config.ResultsFile, []byte("previous run\n"), 0o644))

	results, err := openResults(config)
	require.NoError(t, err)
	require.NoError(t, results.Close())

	data, err := os.ReadFile(config.ResultsFile)
	require.NoError(t, err)
	assert.Equal(t, "previous run\n", string(data))
}

func TestNewHarness(t *testing.T) {
	for _, mode := range []string{configuration.ModeLocal, configuration.ModeServer, configuration.ModeClient} {
		t.Run(mode, func(t *testing.T) {
			config := testConfig(t, mode)
			results, err := harness.NewCSVWriter(&discard{})
			require.NoError(t, err)

			h, err := newHarness(context.Background(), config, results, &discard{})
			require.NoError(t, err)
			assert.NotNil(t, h)
		})
	}
}

func TestNewHarness_UnresolvableServer(t *testing.T) {
	config := testConfig(t, configuration.ModeClient)
	config.ServerAddr = "server.invalid"
	results, err := harness.NewCSVWriter(&discard{})
	require.NoError(t, err)

	_, err = newHarness(context.Background(), config, results, &discard{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfigInvalid))
}

func TestNewHarness_BadCommandLine(t *testing.T) {
	config := testConfig(t, configuration.ModeLocal)
	config.ServerBinary = `./server "unterminated`
	results, err := harness.NewCSVWriter(&discard{})
	require.NoError(t, err)

	_, err = newHarness(context.Background(), config, results, &discard{})
	require.Error(t, err)
}

// An empty source tree fails to build, so every point records missing
// metrics and the sweep still completes.
func TestRun_FailedBuildsStillWriteRows(t *testing.T) {
	config := testConfig(t, configuration.ModeLocal)
	config.SweepFile = writeSweepFile(t, `
page_sizes     = [16]
ring_sizes     = [8, 32]
client_threads = [1]
`)

	require.NoError(t, run(context.Background(), config, &discard{}))

	f, err := os.Open(config.ResultsFile)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, harness.ResultHeader, rows[0])
	assert.Equal(t, []string{"16", "8", "1048576", "1", "N/A", "N/A"}, rows[1])
	assert.Equal(t, []string{"16", "32", "1048576", "1", "N/A", "N/A"}, rows[2])
}

func TestRun_Cancelled(t *testing.T) {
	config := testConfig(t, configuration.ModeLocal)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := run(ctx, config, &discard{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
