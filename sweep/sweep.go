package sweep

import (
	"fmt"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"go.uber.org/zap"

	"netbench/errors"
	"netbench/sweep/models"
)

const (
	packageName = "sweep"
)

// Domains holds the values each sweep parameter ranges over.
type Domains struct {
	PageSizes     []int
	RingSizes     []int
	NumRequests   []int
	ClientThreads []int
	InitialPort   int
}

// DefaultDomains returns the grid used when no sweep file is configured.
func DefaultDomains(numRequests, initialPort int) Domains {
	return Domains{
		PageSizes:     []int{16, 128, 512, 1024, 2048, 4096},
		RingSizes:     []int{8, 32, 64, 256, 1024},
		NumRequests:   []int{numRequests},
		ClientThreads: []int{1, 4, 8, 16},
		InitialPort:   initialPort,
	}
}

// Len returns the number of points in the sweep.
func (d Domains) Len() int {
	return len(d.PageSizes) * len(d.RingSizes) * len(d.NumRequests) * len(d.ClientThreads)
}

// Points enumerates the Cartesian product of the domains with page size
// outermost and client threads innermost. Every point starts at InitialPort.
func (d Domains) Points() []models.SweepConfiguration {
	points := make([]models.SweepConfiguration, 0, d.Len())
	for _, pageSize := range d.PageSizes {
		for _, ringSize := range d.RingSizes {
			for _, numRequests := range d.NumRequests {
				for _, threads := range d.ClientThreads {
					points = append(points, models.SweepConfiguration{
						PageSize:      pageSize,
						RingSize:      ringSize,
						NumRequests:   numRequests,
						ClientThreads: threads,
						Port:          d.InitialPort,
					})
				}
			}
		}
	}
	return points
}

// Validate rejects empty domains, non-positive values and invalid ports.
func (d Domains) Validate() error {
	for name, values := range map[string][]int{
		"page_sizes":     d.PageSizes,
		"ring_sizes":     d.RingSizes,
		"num_requests":   d.NumRequests,
		"client_threads": d.ClientThreads,
	} {
		if len(values) == 0 {
			return errors.New(errors.ErrSweepFile, "sweep domain is empty",
				map[string]interface{}{
					"domain": name,
				}, nil)
		}
		for _, v := range values {
			if v <= 0 {
				return errors.New(errors.ErrSweepFile, "sweep domain values must be positive",
					map[string]interface{}{
						"domain": name,
						"value":  v,
					}, nil)
			}
		}
	}
	if d.InitialPort <= 0 || d.InitialPort > 65535 {
		return errors.New(errors.ErrSweepFile, "initial port out of range",
			map[string]interface{}{
				"initial_port": d.InitialPort,
			}, nil)
	}
	return nil
}

// file is the HCL shape of a sweep definition:
//
//	page_sizes     = [16, 128]
//	ring_sizes     = [8, 32]
//	client_threads = [1, 4]
//	num_requests   = [1048576]
//	initial_port   = 12348
type file struct {
	PageSizes     []int `hcl:"page_sizes"`
	RingSizes     []int `hcl:"ring_sizes"`
	ClientThreads []int `hcl:"client_threads"`
	NumRequests   []int `hcl:"num_requests,optional"`
	InitialPort   *int  `hcl:"initial_port,optional"`
}

// LoadFile decodes a sweep definition. num_requests and initial_port fall
// back to the given values when the file leaves them out.
func LoadFile(path string, numRequests, initialPort int) (Domains, error) {
	logger := zap.L().With(
		zap.String("package", packageName),
		zap.String("function", "LoadFile"),
	)

	var f file
	if err := hclsimple.DecodeFile(path, nil, &f); err != nil {
		return Domains{}, errors.New(errors.ErrSweepFile, "failed to decode sweep file",
			map[string]interface{}{
				"path": path,
			}, err)
	}

	d := Domains{
		PageSizes:     f.PageSizes,
		RingSizes:     f.RingSizes,
		NumRequests:   f.NumRequests,
		ClientThreads: f.ClientThreads,
		InitialPort:   initialPort,
	}
	if len(d.NumRequests) == 0 {
		d.NumRequests = []int{numRequests}
	}
	if f.InitialPort != nil {
		d.InitialPort = *f.InitialPort
	}
	if err := d.Validate(); err != nil {
		return Domains{}, err
	}

	logger.Info("Sweep file loaded",
		zap.String("operation", "load_sweep"),
		zap.String("path", path),
		zap.Int("points", d.Len()),
		zap.String("shape", fmt.Sprintf("%dx%dx%dx%d", len(d.PageSizes), len(d.RingSizes), len(d.NumRequests), len(d.ClientThreads))),
	)
	return d, nil
}
