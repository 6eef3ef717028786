package store

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"netbench/awsd/models"
	"netbench/errors"
)

const (
	packageName = "store"
)

// File persists a network topology as a JSON document at a fixed path.
type File struct {
	path   string
	logger *zap.Logger
}

func NewFile(path string) *File {
	return &File{
		path:   path,
		logger: zap.L().With(zap.String("package", packageName), zap.String("path", path)),
	}
}

// Path returns the location of the record.
func (f *File) Path() string {
	return f.path
}

// Load reads the stored topology. A missing or empty file reports
// (zero, false, nil). A record missing any identifier is a STORE_ERROR.
func (f *File) Load(ctx context.Context) (models.NetworkTopology, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.NetworkTopology{}, false, err
	}

	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		f.logger.Debug("No resource record found",
			zap.String("operation", "load"),
		)
		return models.NetworkTopology{}, false, nil
	}
	if err != nil {
		return models.NetworkTopology{}, false, errors.New(errors.ErrStore, "failed to read resource record",
			map[string]interface{}{
				"path": f.path,
			}, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return models.NetworkTopology{}, false, nil
	}

	var topo models.NetworkTopology
	if err := json.Unmarshal(data, &topo); err != nil {
		return models.NetworkTopology{}, false, errors.New(errors.ErrStore, "failed to parse resource record",
			map[string]interface{}{
				"path": f.path,
			}, err)
	}
	if !topo.Complete() {
		return models.NetworkTopology{}, false, errors.New(errors.ErrStore, "resource record is incomplete",
			map[string]interface{}{
				"path":     f.path,
				"topology": topo,
			}, nil)
	}

	f.logger.Info("Loaded resource record",
		zap.String("operation", "load"),
		zap.String("vpc_id", topo.VPCID),
		zap.String("subnet_id", topo.SubnetID),
	)
	return topo, true, nil
}

// Save writes topo, replacing any previous record. The file is written to a
// sibling temp file first and renamed into place.
func (f *File) Save(ctx context.Context, topo models.NetworkTopology) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !topo.Complete() {
		return errors.New(errors.ErrStore, "refusing to save an incomplete topology",
			map[string]interface{}{
				"path":     f.path,
				"topology": topo,
			}, nil)
	}

	data, err := json.MarshalIndent(topo, "", "    ")
	if err != nil {
		return errors.New(errors.ErrStore, "failed to encode resource record", nil, err)
	}

	fail := func(msg string, err error) error {
		return errors.New(errors.ErrStore, msg,
			map[string]interface{}{
				"path": f.path,
			}, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), "."+filepath.Base(f.path)+".*")
	if err != nil {
		return fail("failed to create temp record", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fail("failed to write resource record", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fail("failed to sync resource record", err)
	}
	if err := tmp.Close(); err != nil {
		return fail("failed to close resource record", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fail("failed to replace resource record", err)
	}

	f.logger.Info("Saved resource record",
		zap.String("operation", "save"),
		zap.String("vpc_id", topo.VPCID),
	)
	return nil
}

// Delete removes the record so the next run provisions a fresh topology.
// Deleting a missing record is not an error.
func (f *File) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return errors.New(errors.ErrStore, "failed to delete resource record",
			map[string]interface{}{
				"path": f.path,
			}, err)
	}
	f.logger.Info("Deleted resource record",
		zap.String("operation", "delete"),
	)
	return nil
}
