package models

import "fmt"

// NotAvailable is recorded for a metric the client output did not contain.
const NotAvailable = "N/A"

// SweepConfiguration is one point of a sweep. Port is the only field the
// harness changes after the point is created, and only to move past a bind
// conflict.
type SweepConfiguration struct {
	PageSize      int
	RingSize      int
	NumRequests   int
	ClientThreads int
	Port          int
}

func (c SweepConfiguration) String() string {
	return fmt.Sprintf("PAGE_SIZE=%d RING_SIZE=%d NUM_REQUESTS=%d CLIENT_THREADS=%d PORT=%d",
		c.PageSize, c.RingSize, c.NumRequests, c.ClientThreads, c.Port)
}

// BenchmarkResult pairs a point with the metrics measured for it. An empty
// metric means the value was not found.
type BenchmarkResult struct {
	SweepConfiguration
	RatePerSecond string
	Gbps          string
}

// Rate returns the rate column value.
func (r BenchmarkResult) Rate() string {
	return orNotAvailable(r.RatePerSecond)
}

// Throughput returns the gbps column value.
func (r BenchmarkResult) Throughput() string {
	return orNotAvailable(r.Gbps)
}

func orNotAvailable(v string) string {
	if v == "" {
		return NotAvailable
	}
	return v
}
