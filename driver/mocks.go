package driver

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"netbench/awsd/models"
)

// MockStore is a mock implementation of TopologyStore
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Load(ctx context.Context) (models.NetworkTopology, bool, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.NetworkTopology), args.Bool(1), args.Error(2)
}

func (m *MockStore) Save(ctx context.Context, topology models.NetworkTopology) error {
	args := m.Called(ctx, topology)
	return args.Error(0)
}

// MockProvisioner is a mock implementation of NetworkProvisioner
type MockProvisioner struct {
	mock.Mock
}

func (m *MockProvisioner) CreateNetwork(ctx context.Context) (models.NetworkTopology, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.NetworkTopology), args.Error(1)
}

// MockInstances is a mock implementation of InstanceLifecycle
type MockInstances struct {
	mock.Mock
}

func (m *MockInstances) Launch(ctx context.Context, topology models.NetworkTopology, count int) ([]string, error) {
	args := m.Called(ctx, topology, count)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockInstances) WaitUntil(ctx context.Context, instanceID string, state models.InstanceState) error {
	args := m.Called(ctx, instanceID, state)
	return args.Error(0)
}

func (m *MockInstances) Start(ctx context.Context, instanceID string) error {
	args := m.Called(ctx, instanceID)
	return args.Error(0)
}

func (m *MockInstances) Terminate(ctx context.Context, instanceID string) error {
	args := m.Called(ctx, instanceID)
	return args.Error(0)
}

func (m *MockInstances) List(ctx context.Context) ([]models.Instance, []models.Instance, error) {
	args := m.Called(ctx)
	var running, stopped []models.Instance
	if args.Get(0) != nil {
		running = args.Get(0).([]models.Instance)
	}
	if args.Get(1) != nil {
		stopped = args.Get(1).([]models.Instance)
	}
	return running, stopped, args.Error(2)
}

// MockAddresses is a mock implementation of AddressManager
type MockAddresses struct {
	mock.Mock
}

func (m *MockAddresses) AllocateAndBind(ctx context.Context, instanceID string) (models.ElasticAddress, error) {
	args := m.Called(ctx, instanceID)
	return args.Get(0).(models.ElasticAddress), args.Error(1)
}

func (m *MockAddresses) GetPublicIP(ctx context.Context, instanceID string) (string, bool, error) {
	args := m.Called(ctx, instanceID)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockAddresses) Release(ctx context.Context, instanceID string) (int, error) {
	args := m.Called(ctx, instanceID)
	return args.Int(0), args.Error(1)
}

// MockCleaner is a mock implementation of CleanupCoordinator
type MockCleaner struct {
	mock.Mock
}

func (m *MockCleaner) TerminateAll(ctx context.Context) ([]string, int, error) {
	args := m.Called(ctx)
	var ids []string
	if args.Get(0) != nil {
		ids = args.Get(0).([]string)
	}
	return ids, args.Int(1), args.Error(2)
}

// MockRemote is a mock implementation of remote.Client
type MockRemote struct {
	mock.Mock
}

func (m *MockRemote) CopyFile(ctx context.Context, host, localPath, remotePath string) error {
	args := m.Called(ctx, host, localPath, remotePath)
	return args.Error(0)
}

func (m *MockRemote) Run(ctx context.Context, host, command string) error {
	args := m.Called(ctx, host, command)
	return args.Error(0)
}

func (m *MockRemote) Shell(ctx context.Context, host string, in io.Reader, out, errOut io.Writer) error {
	args := m.Called(ctx, host, in, out, errOut)
	return args.Error(0)
}
