package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netbench/awsd/models"
	"netbench/errors"
)

var sampleTopology = models.NetworkTopology{
	VPCID:           "vpc-0a1b2c",
	InternetGateway: "igw-0a1b2c",
	RouteTableID:    "rtb-0a1b2c",
	SubnetID:        "subnet-0a1b2c",
	SecurityGroupID: "sg-0a1b2c",
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		content   *string
		wantFound bool
		wantErr   bool
	}{
		{name: "missing file"},
		{name: "empty file", content: strPtr("")},
		{name: "whitespace only", content: strPtr("  \n")},
		{
			name:      "complete record",
			content:   strPtr(`{"vpc_id":"vpc-0a1b2c","igw_id":"igw-0a1b2c","route_table_id":"rtb-0a1b2c","subnet_id":"subnet-0a1b2c","sg_id":"sg-0a1b2c"}`),
			wantFound: true,
		},
		{
			name:    "partial record",
			content: strPtr(`{"vpc_id":"vpc-0a1b2c","igw_id":"igw-0a1b2c"}`),
			wantErr: true,
		},
		{
			name:    "malformed json",
			content: strPtr(`{"vpc_id":`),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "aws_resources.json")
			if tt.content != nil {
				require.NoError(t, os.WriteFile(path, []byte(*tt.content), 0o644))
			}

			topo, found, err := NewFile(path).Load(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errors.ErrStore))
				assert.False(t, found)
				assert.True(t, topo.Empty())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantFound, found)
			if tt.wantFound {
				assert.Equal(t, sampleTopology, topo)
			} else {
				assert.True(t, topo.Empty())
			}
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aws_resources.json")
	f := NewFile(path)
	ctx := context.Background()

	require.NoError(t, f.Save(ctx, sampleTopology))

	topo, found, err := f.Load(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, sampleTopology, topo)

	// The on-disk keys stay readable by the older tooling.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]string
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, map[string]string{
		"vpc_id":         "vpc-0a1b2c",
		"igw_id":         "igw-0a1b2c",
		"route_table_id": "rtb-0a1b2c",
		"subnet_id":      "subnet-0a1b2c",
		"sg_id":          "sg-0a1b2c",
	}, doc)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files are left behind")
}

func TestSave_RejectsIncompleteTopology(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aws_resources.json")
	f := NewFile(path)
	ctx := context.Background()
	require.NoError(t, f.Save(ctx, sampleTopology))

	partial := sampleTopology
	partial.SecurityGroupID = ""
	err := f.Save(ctx, partial)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStore))

	topo, found, err := f.Load(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, sampleTopology, topo, "previous record is untouched")
}

func TestDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aws_resources.json")
	f := NewFile(path)
	ctx := context.Background()

	require.NoError(t, f.Delete(ctx), "deleting a missing record is fine")

	require.NoError(t, f.Save(ctx, sampleTopology))
	require.NoError(t, f.Delete(ctx))

	_, found, err := f.Load(ctx)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewFile(filepath.Join(t.TempDir(), "aws_resources.json"))
	_, _, err := f.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, f.Save(ctx, sampleTopology), context.Canceled)
	assert.ErrorIs(t, f.Delete(ctx), context.Canceled)
}

func strPtr(s string) *string {
	return &s
}
