package driver

import (
	"context"

	"netbench/awsd/models"
)

// TopologyStore persists the network topology between runs
type TopologyStore interface {
	Load(ctx context.Context) (models.NetworkTopology, bool, error)
	Save(ctx context.Context, topology models.NetworkTopology) error
}

// NetworkProvisioner creates a new network topology
type NetworkProvisioner interface {
	CreateNetwork(ctx context.Context) (models.NetworkTopology, error)
}

// InstanceLifecycle launches instances and drives their state transitions
type InstanceLifecycle interface {
	Launch(ctx context.Context, topology models.NetworkTopology, count int) ([]string, error)
	WaitUntil(ctx context.Context, instanceID string, state models.InstanceState) error
	Start(ctx context.Context, instanceID string) error
	Terminate(ctx context.Context, instanceID string) error
	List(ctx context.Context) ([]models.Instance, []models.Instance, error)
}

// AddressManager binds and reclaims elastic addresses
type AddressManager interface {
	AllocateAndBind(ctx context.Context, instanceID string) (models.ElasticAddress, error)
	GetPublicIP(ctx context.Context, instanceID string) (string, bool, error)
	Release(ctx context.Context, instanceID string) (int, error)
}

// CleanupCoordinator terminates every instance and reclaims addresses
type CleanupCoordinator interface {
	TerminateAll(ctx context.Context) ([]string, int, error)
}
