package harness

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"netbench/errors"
	"netbench/sweep/models"
)

// ResultHeader is the first row of every results file.
var ResultHeader = []string{"page_size", "ring_size", "num_requests", "client_threads", "rate_per_second", "gbps"}

// ResultWriter records one row per sweep point.
type ResultWriter interface {
	Write(r models.BenchmarkResult) error
}

// CSVWriter writes results as CSV and flushes after every row so a crash
// mid-sweep keeps every completed point.
type CSVWriter struct {
	w      *csv.Writer
	closer io.Closer
}

// NewCSVWriter writes the header to w.
func NewCSVWriter(w io.Writer) (*CSVWriter, error) {
	cw := &CSVWriter{w: csv.NewWriter(w)}
	if err := cw.writeRow(ResultHeader); err != nil {
		return nil, err
	}
	return cw, nil
}

// CreateCSVFile truncates or creates path and writes the header.
func CreateCSVFile(path string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.New(errors.ErrProcess, "failed to create results file",
			map[string]interface{}{
				"path": path,
			}, err)
	}
	cw, err := NewCSVWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	cw.closer = f
	return cw, nil
}

func (c *CSVWriter) Write(r models.BenchmarkResult) error {
	return c.writeRow([]string{
		strconv.Itoa(r.PageSize),
		strconv.Itoa(r.RingSize),
		strconv.Itoa(r.NumRequests),
		strconv.Itoa(r.ClientThreads),
		r.Rate(),
		r.Throughput(),
	})
}

func (c *CSVWriter) writeRow(row []string) error {
	if err := c.w.Write(row); err != nil {
		return errors.New(errors.ErrProcess, "failed to write result row", nil, err)
	}
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return errors.New(errors.ErrProcess, "failed to flush result row", nil, err)
	}
	return nil
}

// Close closes the underlying file when the writer owns one.
func (c *CSVWriter) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}
