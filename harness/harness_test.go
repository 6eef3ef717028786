package harness

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"netbench/configuration"
	"netbench/errors"
	"netbench/sweep"
	"netbench/sweep/models"
)

const sampleClientOutput = `Connecting to 127.0.0.1:12348
Sent 1048576 requests
Average rate: 123.45 it/s
Average Gbps: 9.87
`

func TestRegexParser(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   Metrics
	}{
		{name: "both metrics", output: sampleClientOutput, want: Metrics{RatePerSecond: "123.45", Gbps: "9.87"}},
		{name: "rate only", output: "Average rate: 123.45 it/s", want: Metrics{RatePerSecond: "123.45"}},
		{name: "integer values do not match", output: "Average rate: 123 it/s\nAverage Gbps: 9", want: Metrics{}},
		{name: "no metrics", output: "connection refused", want: Metrics{}},
		{name: "empty output", output: "", want: Metrics{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RegexParser{}.Parse(tt.output))
		})
	}
}

func TestMissingMetricRendersNotAvailable(t *testing.T) {
	result := resultFor(models.SweepConfiguration{PageSize: 16}, RegexParser{}.Parse("Average rate: 123.45 it/s"))
	assert.Equal(t, "123.45", result.Rate())
	assert.Equal(t, "N/A", result.Throughput())
}

func TestMarkerDetector(t *testing.T) {
	tests := []struct {
		name     string
		markers  []string
		stderr   string
		conflict bool
	}{
		{name: "bind failed", stderr: "bind failed\n", conflict: true},
		{name: "address in use mixed case", stderr: "Error: Address already in use", conflict: true},
		{name: "unrelated failure", stderr: "Segmentation fault", conflict: false},
		{name: "empty", stderr: "", conflict: false},
		{name: "custom marker", markers: []string{"EADDRINUSE"}, stderr: "listen: eaddrinuse", conflict: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.conflict, NewMarkerDetector(tt.markers...).BindConflict(tt.stderr))
		})
	}
}

func TestCMakeBuilder_Commands(t *testing.T) {
	cfg := models.SweepConfiguration{PageSize: 16, RingSize: 8, NumRequests: 1048576, ClientThreads: 4, Port: 12348}

	local, err := NewCMakeBuilder("/src/fast_net", "build", 32, "")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"cmake", "/src/fast_net", "-DCMAKE_BUILD_TYPE=Release", "-DPAGE_SIZE=16", "-DRING_SIZE=8",
			"-DNUM_REQUESTS=1048576", "-DCLIENT_THREADS=4", "-DPORT=12348"},
		{"make", "-j32"},
	}, local.Commands(cfg))

	remote, err := NewCMakeBuilder("/src/fast_net", "build", 8, "10.0.1.17")
	require.NoError(t, err)
	cmds := remote.Commands(cfg)
	assert.Equal(t, `-DSERVER_ADDR="10.0.1.17"`, cmds[0][len(cmds[0])-1])
	assert.Equal(t, []string{"make", "-j8"}, cmds[1])
}

func TestCMakeBuilder_Build(t *testing.T) {
	buildDir := filepath.Join(t.TempDir(), "build")
	b, err := NewCMakeBuilder(".", buildDir, 4, "")
	require.NoError(t, err)
	b.logger = zap.NewNop()

	var ran []string
	b.run = func(ctx context.Context, dir string, args []string) ([]byte, error) {
		assert.Equal(t, buildDir, dir)
		ran = append(ran, args[0])
		return nil, nil
	}
	require.NoError(t, b.Build(context.Background(), models.SweepConfiguration{PageSize: 16, Port: 1}))
	assert.Equal(t, []string{"cmake", "make"}, ran)
	assert.DirExists(t, buildDir)

	b.run = func(ctx context.Context, dir string, args []string) ([]byte, error) {
		return []byte("CMake Error: could not find CMakeLists.txt"), fmt.Errorf("exit status 1")
	}
	err = b.Build(context.Background(), models.SweepConfiguration{PageSize: 16, Port: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBuild))
}

func TestResolveServerAddr(t *testing.T) {
	addr, err := ResolveServerAddr(context.Background(), "10.0.1.17")
	require.NoError(t, err)
	assert.Equal(t, "10.0.1.17", addr)

	_, err = ResolveServerAddr(context.Background(), "server.invalid")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfigInvalid))
}

func TestCSVWriter(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewCSVWriter(&buf)
	require.NoError(t, err)

	require.NoError(t, w.Write(models.BenchmarkResult{
		SweepConfiguration: models.SweepConfiguration{PageSize: 16, RingSize: 8, NumRequests: 1048576, ClientThreads: 1, Port: 12348},
		RatePerSecond:      "123.45",
		Gbps:               "9.87",
	}))
	// Rows are flushed immediately.
	assert.Equal(t, "page_size,ring_size,num_requests,client_threads,rate_per_second,gbps\n16,8,1048576,1,123.45,9.87\n", buf.String())

	require.NoError(t, w.Write(models.BenchmarkResult{
		SweepConfiguration: models.SweepConfiguration{PageSize: 128, RingSize: 32, NumRequests: 1048576, ClientThreads: 4},
	}))
	assert.True(t, strings.HasSuffix(buf.String(), "128,32,1048576,4,N/A,N/A\n"))
	assert.NoError(t, w.Close())
}

func TestCreateCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "experiment_results.csv")
	w, err := CreateCSVFile(path)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.FileExists(t, path)

	_, err = CreateCSVFile(filepath.Join(t.TempDir(), "missing", "results.csv"))
	require.Error(t, err)
}

func TestExecClient(t *testing.T) {
	ok, err := NewExecClient(`sh -c "echo 'Average rate: 1.50 it/s'"`, 5*time.Second)
	require.NoError(t, err)
	out, err := ok.Run(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "1.50", RegexParser{}.Parse(out).RatePerSecond)

	failing, err := NewExecClient(`sh -c "echo 'Average Gbps: 2.00'; exit 1"`, 5*time.Second)
	require.NoError(t, err)
	out, err = failing.Run(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrProcess))
	assert.Equal(t, "2.00", RegexParser{}.Parse(out).Gbps, "output is kept on failure")

	slow, err := NewExecClient("sleep 5", 50*time.Millisecond)
	require.NoError(t, err)
	_, err = slow.Run(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTimedOut))
}

func testDomains() sweep.Domains {
	return sweep.Domains{
		PageSizes:     []int{16, 128},
		RingSizes:     []int{8, 32},
		NumRequests:   []int{1048576},
		ClientThreads: []int{1, 4},
		InitialPort:   12348,
	}
}

func newTestHarness(mode string, builder Builder, server ServerRunner, client ClientRunner, results ResultWriter, prober Prober) *Harness {
	h := New(Options{
		Mode:          mode,
		BuildDir:      "build",
		ServerAddr:    "10.0.1.17",
		Builder:       builder,
		Server:        server,
		Client:        client,
		Results:       results,
		Prober:        prober,
		ProbeAttempts: 2,
		ProbeBackoff:  time.Millisecond,
	})
	h.logger = zap.NewNop()
	return h
}

func TestRunSweep_LocalEightRows(t *testing.T) {
	var buf bytes.Buffer
	writer, err := NewCSVWriter(&buf)
	require.NoError(t, err)

	server := &fakeServer{}
	client := &fakeClient{outputs: []string{sampleClientOutput, "client crashed before reporting"}}
	h := newTestHarness(configuration.ModeLocal, &fakeBuilder{}, server, client, writer, nil)

	results, err := h.RunSweep(context.Background(), testDomains())
	require.NoError(t, err)
	require.Len(t, results, 8)

	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 9)
	assert.Equal(t, ResultHeader, rows[0])

	numeric := regexp.MustCompile(`^\d+(\.\d+)?$`)
	for _, row := range rows[1:] {
		require.Len(t, row, 6)
		for _, col := range row[:4] {
			assert.Regexp(t, numeric, col)
		}
		for _, col := range row[4:] {
			assert.True(t, col == "N/A" || numeric.MatchString(col), col)
		}
	}
	assert.Equal(t, []string{"16", "8", "1048576", "1", "123.45", "9.87"}, rows[1])
	assert.Equal(t, []string{"16", "8", "1048576", "4", "N/A", "N/A"}, rows[2])
	assert.Equal(t, []string{"128", "32", "1048576", "4", "N/A", "N/A"}, rows[8])

	for _, p := range server.procs {
		assert.Equal(t, int32(1), p.interrupted, "every server is stopped after its point")
	}
	for _, port := range server.ports {
		assert.Equal(t, 12348, port, "local points start from the initial port")
	}
}

func TestRunSweep_FailedPointsStillEmitRows(t *testing.T) {
	var buf bytes.Buffer
	writer, err := NewCSVWriter(&buf)
	require.NoError(t, err)

	builder := &fakeBuilder{fail: func(c models.SweepConfiguration) bool { return c.PageSize == 16 && c.RingSize == 8 }}
	server := &fakeServer{fail: func(c models.SweepConfiguration) bool { return c.PageSize == 128 && c.ClientThreads == 4 }}
	client := &fakeClient{outputs: []string{sampleClientOutput}, errs: []error{nil, errors.New(errors.ErrTimedOut, "client did not finish in time", nil, nil)}}
	h := newTestHarness(configuration.ModeLocal, builder, server, client, writer, nil)

	results, err := h.RunSweep(context.Background(), testDomains())
	require.NoError(t, err)
	require.Len(t, results, 8)

	assert.Equal(t, "N/A", results[0].Rate(), "build failure")
	assert.Equal(t, "N/A", results[1].Rate(), "build failure")
	assert.Equal(t, "N/A", results[5].Rate(), "server failure")
	assert.Equal(t, "N/A", results[7].Rate(), "server failure")
	assert.Equal(t, "123.45", results[2].Rate())
}

func TestRunSweep_ClientModeAdvancesPorts(t *testing.T) {
	var buf bytes.Buffer
	writer, err := NewCSVWriter(&buf)
	require.NoError(t, err)

	builder := &fakeBuilder{}
	var probed []string
	prober := proberFunc(func(ctx context.Context, host string, port int) bool {
		probed = append(probed, fmt.Sprintf("%s:%d", host, port))
		return port != 12350
	})
	h := newTestHarness(configuration.ModeClient, builder, nil, &fakeClient{outputs: []string{sampleClientOutput}}, writer, prober)

	results, err := h.RunSweep(context.Background(), testDomains())
	require.NoError(t, err)
	require.Len(t, results, 8)

	for i, b := range builder.builds {
		assert.Equal(t, 12348+i, b.Port)
	}
	assert.Contains(t, probed, "10.0.1.17:12348")
	assert.Equal(t, "N/A", results[2].Rate(), "remote server never came up")
	assert.Equal(t, "123.45", results[3].Rate())
}

func TestRunSweep_ServerModeWritesNoRows(t *testing.T) {
	var buf bytes.Buffer
	writer, err := NewCSVWriter(&buf)
	require.NoError(t, err)

	builder := &fakeBuilder{}
	server := &fakeServer{exited: true}
	h := newTestHarness(configuration.ModeServer, builder, server, nil, writer, nil)

	results, err := h.RunSweep(context.Background(), testDomains())
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, []int{12348, 12349, 12350, 12351, 12352, 12353, 12354, 12355}, server.ports)
	assert.Equal(t, strings.Join(ResultHeader, ",")+"\n", buf.String())
}

func TestRunSweep_WriterFailureAborts(t *testing.T) {
	client := &fakeClient{outputs: []string{sampleClientOutput}}
	h := newTestHarness(configuration.ModeLocal, &fakeBuilder{}, &fakeServer{}, client, failingWriter{}, nil)

	results, err := h.RunSweep(context.Background(), testDomains())
	require.Error(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 1, client.calls)
}

func TestRunSweep_Cancelled(t *testing.T) {
	var buf bytes.Buffer
	writer, err := NewCSVWriter(&buf)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := newTestHarness(configuration.ModeLocal, &fakeBuilder{}, &fakeServer{}, &fakeClient{}, writer, nil)

	results, err := h.RunSweep(ctx, testDomains())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}

func TestRunSweep_ClientModeWaitsWithoutDialing(t *testing.T) {
	var buf bytes.Buffer
	writer, err := NewCSVWriter(&buf)
	require.NoError(t, err)

	client := &fakeClient{outputs: []string{sampleClientOutput}}
	h := newTestHarness(configuration.ModeClient, &fakeBuilder{}, nil, client, writer, nil)
	h.remoteStartDelay = time.Millisecond

	results, err := h.RunSweep(context.Background(), testDomains())
	require.NoError(t, err)
	require.Len(t, results, 8)
	assert.Equal(t, 8, client.calls)
	assert.Equal(t, "123.45", results[0].Rate())
}

func TestRunSweep_ClientModeDelayCancelled(t *testing.T) {
	var buf bytes.Buffer
	writer, err := NewCSVWriter(&buf)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	client := &fakeClient{outputs: []string{sampleClientOutput}}
	h := newTestHarness(configuration.ModeClient, &fakeBuilder{}, nil, client, writer, nil)
	h.remoteStartDelay = time.Hour

	time.AfterFunc(10*time.Millisecond, cancel)
	results, err := h.RunSweep(ctx, testDomains())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
	assert.Zero(t, client.calls)
}
