package harness

import (
	"regexp"
	"strconv"
	"strings"

	"netbench/sweep/models"
)

// ConflictDetector decides from a server's output whether it failed to bind
// its port.
type ConflictDetector interface {
	BindConflict(output string) bool
}

// ReadinessDetector decides from a server's output whether it is listening
// on port. It must not need a connection to the server, which serves a fixed
// number of clients and then exits.
type ReadinessDetector interface {
	Listening(output string, port int) bool
}

// DefaultConflictMarkers are the substrings the server prints when its port
// is taken.
var DefaultConflictMarkers = []string{"address already in use", "bind failed"}

// MarkerDetector reports a conflict when the output contains any marker,
// ignoring case.
type MarkerDetector struct {
	markers []string
}

func NewMarkerDetector(markers ...string) *MarkerDetector {
	if len(markers) == 0 {
		markers = DefaultConflictMarkers
	}
	lowered := make([]string, 0, len(markers))
	for _, m := range markers {
		lowered = append(lowered, strings.ToLower(m))
	}
	return &MarkerDetector{markers: lowered}
}

func (d *MarkerDetector) BindConflict(output string) bool {
	output = strings.ToLower(output)
	for _, m := range d.markers {
		if strings.Contains(output, m) {
			return true
		}
	}
	return false
}

// DefaultListenPattern matches the line the server prints once it listens.
var DefaultListenPattern = regexp.MustCompile(`Listening on port (\d+)`)

// ListenDetector reports readiness when the output announces the expected
// port.
type ListenDetector struct {
	pattern *regexp.Regexp
}

// NewListenDetector uses pattern, whose first group captures the port, or
// DefaultListenPattern when pattern is nil.
func NewListenDetector(pattern *regexp.Regexp) *ListenDetector {
	if pattern == nil {
		pattern = DefaultListenPattern
	}
	return &ListenDetector{pattern: pattern}
}

func (d *ListenDetector) Listening(output string, port int) bool {
	want := strconv.Itoa(port)
	for _, match := range d.pattern.FindAllStringSubmatch(output, -1) {
		if len(match) > 1 && match[1] == want {
			return true
		}
	}
	return false
}

// Metrics are the values extracted from one client run. An empty field was
// not found in the output.
type Metrics struct {
	RatePerSecond string
	Gbps          string
}

// MetricsParser extracts throughput metrics from client output.
type MetricsParser interface {
	Parse(output string) Metrics
}

var (
	ratePattern = regexp.MustCompile(`Average rate: (\d+\.\d+) it/s`)
	gbpsPattern = regexp.MustCompile(`Average Gbps: (\d+\.\d+)`)
)

// RegexParser reads the "Average rate" and "Average Gbps" lines the
// benchmark client prints.
type RegexParser struct{}

func (RegexParser) Parse(output string) Metrics {
	var m Metrics
	if match := ratePattern.FindStringSubmatch(output); match != nil {
		m.RatePerSecond = match[1]
	}
	if match := gbpsPattern.FindStringSubmatch(output); match != nil {
		m.Gbps = match[1]
	}
	return m
}

func resultFor(cfg models.SweepConfiguration, m Metrics) models.BenchmarkResult {
	return models.BenchmarkResult{
		SweepConfiguration: cfg,
		RatePerSecond:      m.RatePerSecond,
		Gbps:               m.Gbps,
	}
}
