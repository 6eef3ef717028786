package awsd

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"netbench/awsd/models"
	"netbench/configuration"
	"netbench/errors"
)

const (
	defaultPollMinDelay = 5 * time.Second
	defaultPollMaxDelay = 15 * time.Second
)

// InstanceManager launches benchmark hosts and drives them between states.
type InstanceManager struct {
	client       EC2API
	amiID        string
	instanceType string
	keyName      string
	waitTimeout  time.Duration
	pollMinDelay time.Duration
	pollMaxDelay time.Duration
	logger       *zap.Logger
}

func NewInstanceManager(c *AwsClient, cfg *configuration.Config) *InstanceManager {
	return &InstanceManager{
		client:       c.API(),
		amiID:        cfg.AMIID,
		instanceType: cfg.InstanceType,
		keyName:      cfg.KeyName,
		waitTimeout:  cfg.WaitTimeout,
		pollMinDelay: defaultPollMinDelay,
		pollMaxDelay: defaultPollMaxDelay,
		logger:       zap.L().With(zap.String("package", packageName), zap.String("component", "instances")),
	}
}

var (
	ErrInstanceCreate            = fmt.Errorf("failed to create EC2 instances")
	ErrInstanceCreateNoInstances = fmt.Errorf("encountered no error during instance launch, but no instance was actually created")
	ErrInstanceCreateIDNil       = fmt.Errorf("encountered no error during instance launch, but a returned instance ID was nil")
)

// Launch requests count instances inside topo, each with a single public
// interface in the topology's subnet and security group. The returned ids
// refer to instances that are typically still pending.
func (m *InstanceManager) Launch(ctx context.Context, topo models.NetworkTopology, count int) ([]string, error) {
	if !topo.Complete() {
		return nil, errors.New(errors.ErrInstanceLifecycle, "cannot launch into an incomplete topology",
			map[string]interface{}{
				"topology": topo,
			}, nil)
	}
	if count < 1 {
		return nil, errors.New(errors.ErrInstanceLifecycle, "instance count must be positive",
			map[string]interface{}{
				"count": count,
			}, nil)
	}

	runID := uuid.NewString()
	input := &ec2.RunInstancesInput{
		ImageId:      aws.String(m.amiID),
		InstanceType: types.InstanceType(m.instanceType),
		MinCount:     aws.Int32(int32(count)),
		MaxCount:     aws.Int32(int32(count)),
		ClientToken:  aws.String(runID),
		NetworkInterfaces: []types.InstanceNetworkInterfaceSpecification{
			{
				DeviceIndex:              aws.Int32(0),
				SubnetId:                 aws.String(topo.SubnetID),
				Groups:                   []string{topo.SecurityGroupID},
				AssociatePublicIpAddress: aws.Bool(true),
				DeleteOnTermination:      aws.Bool(true),
			},
		},
		TagSpecifications: tagSpecificationWithDefaults(types.ResourceTypeInstance,
			nameTag(resourcePrefix+"-host"),
			tag(tagKeyRunID, runID),
		),
	}
	if m.keyName != "" {
		input.KeyName = aws.String(m.keyName)
	}

	m.logger.Info("Launching instances",
		zap.String("operation", "launch"),
		zap.Int("count", count),
		zap.String("instance_type", m.instanceType),
		zap.String("ami", m.amiID),
		zap.String("run_id", runID),
	)

	result, err := m.client.RunInstances(ctx, input)
	if err != nil {
		return nil, errors.New(errors.ErrInstanceLifecycle, "failed to launch instances",
			map[string]interface{}{
				"count":  count,
				"run_id": runID,
			}, fmt.Errorf("%w: %w", ErrInstanceCreate, err))
	}
	if len(result.Instances) == 0 {
		return nil, errors.New(errors.ErrInstanceLifecycle, "failed to launch instances",
			map[string]interface{}{
				"count": count,
			}, ErrInstanceCreateNoInstances)
	}

	ids := make([]string, 0, len(result.Instances))
	for _, inst := range result.Instances {
		if inst.InstanceId == nil {
			return nil, errors.New(errors.ErrInstanceLifecycle, "failed to launch instances",
				map[string]interface{}{
					"count": count,
				}, ErrInstanceCreateIDNil)
		}
		ids = append(ids, *inst.InstanceId)
	}

	m.logger.Info("Instances launched",
		zap.String("operation", "launch"),
		zap.Strings("instance_ids", ids),
	)
	return ids, nil
}

// WaitUntil blocks until the instance reaches state or the configured wait
// timeout expires. Only running, stopped and terminated are valid targets.
func (m *InstanceManager) WaitUntil(ctx context.Context, instanceID string, state models.InstanceState) error {
	params := &ec2.DescribeInstancesInput{InstanceIds: []string{instanceID}}

	m.logger.Debug("Waiting for instance state",
		zap.String("operation", "wait_until"),
		zap.String("instance_id", instanceID),
		zap.String("state", string(state)),
		zap.Duration("timeout", m.waitTimeout),
	)

	var err error
	switch state {
	case models.StateRunning:
		err = ec2.NewInstanceRunningWaiter(m.client, func(o *ec2.InstanceRunningWaiterOptions) {
			o.MinDelay, o.MaxDelay = m.pollMinDelay, m.pollMaxDelay
		}).Wait(ctx, params, m.waitTimeout)
	case models.StateStopped:
		err = ec2.NewInstanceStoppedWaiter(m.client, func(o *ec2.InstanceStoppedWaiterOptions) {
			o.MinDelay, o.MaxDelay = m.pollMinDelay, m.pollMaxDelay
		}).Wait(ctx, params, m.waitTimeout)
	case models.StateTerminated:
		err = ec2.NewInstanceTerminatedWaiter(m.client, func(o *ec2.InstanceTerminatedWaiterOptions) {
			o.MinDelay, o.MaxDelay = m.pollMinDelay, m.pollMaxDelay
		}).Wait(ctx, params, m.waitTimeout)
	default:
		return errors.New(errors.ErrInstanceLifecycle, "unsupported target state",
			map[string]interface{}{
				"instance_id": instanceID,
				"state":       state,
			}, nil)
	}
	if err == nil {
		m.logger.Info("Instance reached state",
			zap.String("operation", "wait_until"),
			zap.String("instance_id", instanceID),
			zap.String("state", string(state)),
		)
		return nil
	}

	ctxMap := map[string]interface{}{
		"instance_id": instanceID,
		"state":       state,
		"timeout":     m.waitTimeout.String(),
	}
	if timedOut(ctx, err) {
		m.logger.Error("Timed out waiting for instance state",
			zap.String("operation", "wait_until"),
			zap.String("instance_id", instanceID),
			zap.String("state", string(state)),
			zap.Error(err),
		)
		return errors.New(errors.ErrTimedOut, "timed out waiting for instance state", ctxMap, err)
	}
	return errors.New(errors.ErrInstanceLifecycle, "instance did not reach state", ctxMap, err)
}

// timedOut reports whether a waiter error stems from its own deadline rather
// than a failure state or a cancelled caller.
func timedOut(ctx context.Context, err error) bool {
	if ctx.Err() == context.Canceled {
		return false
	}
	return stderrors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "exceeded max wait time")
}

// Start starts a stopped instance and waits for it to be running.
func (m *InstanceManager) Start(ctx context.Context, instanceID string) error {
	m.logger.Info("Starting instance",
		zap.String("operation", "start"),
		zap.String("instance_id", instanceID),
	)
	if _, err := m.client.StartInstances(ctx, &ec2.StartInstancesInput{
		InstanceIds: []string{instanceID},
	}); err != nil {
		return errors.New(errors.ErrInstanceLifecycle, "failed to start instance",
			map[string]interface{}{
				"instance_id": instanceID,
			}, err)
	}
	return m.WaitUntil(ctx, instanceID, models.StateRunning)
}

// Stop stops a running instance and waits for it to be stopped.
func (m *InstanceManager) Stop(ctx context.Context, instanceID string) error {
	m.logger.Info("Stopping instance",
		zap.String("operation", "stop"),
		zap.String("instance_id", instanceID),
	)
	if _, err := m.client.StopInstances(ctx, &ec2.StopInstancesInput{
		InstanceIds: []string{instanceID},
	}); err != nil {
		return errors.New(errors.ErrInstanceLifecycle, "failed to stop instance",
			map[string]interface{}{
				"instance_id": instanceID,
			}, err)
	}
	return m.WaitUntil(ctx, instanceID, models.StateStopped)
}

// Terminate terminates an instance and waits until it is gone.
func (m *InstanceManager) Terminate(ctx context.Context, instanceID string) error {
	m.logger.Info("Terminating instance",
		zap.String("operation", "terminate"),
		zap.String("instance_id", instanceID),
	)
	if _, err := m.client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{instanceID},
	}); err != nil {
		return errors.New(errors.ErrInstanceLifecycle, "failed to terminate instance",
			map[string]interface{}{
				"instance_id": instanceID,
			}, err)
	}
	return m.WaitUntil(ctx, instanceID, models.StateTerminated)
}

// List returns the account's running and stopped instances. Instances in
// any other state are left out.
func (m *InstanceManager) List(ctx context.Context) ([]models.Instance, []models.Instance, error) {
	var running, stopped []models.Instance

	paginator := ec2.NewDescribeInstancesPaginator(m.client, &ec2.DescribeInstancesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, nil, errors.New(errors.ErrInstanceLifecycle, "failed to describe instances",
				map[string]interface{}{
					"operation": "list",
				}, err)
		}
		for _, reservation := range page.Reservations {
			for _, inst := range reservation.Instances {
				instance := toInstance(inst)
				switch instance.State {
				case models.StateRunning:
					running = append(running, instance)
				case models.StateStopped:
					stopped = append(stopped, instance)
				}
			}
		}
	}

	m.logger.Debug("Listed instances",
		zap.String("operation", "list"),
		zap.Int("running", len(running)),
		zap.Int("stopped", len(stopped)),
	)
	return running, stopped, nil
}

func toInstance(inst types.Instance) models.Instance {
	instance := models.Instance{
		InstanceID:   aws.ToString(inst.InstanceId),
		InstanceType: string(inst.InstanceType),
		LaunchTime:   aws.ToTime(inst.LaunchTime),
		PublicIP:     aws.ToString(inst.PublicIpAddress),
	}
	if inst.State != nil {
		instance.State = models.InstanceState(inst.State.Name)
	}
	if ni, ok := primaryInterface(inst.NetworkInterfaces); ok && ni.Association != nil && ni.Association.PublicIp != nil {
		instance.PublicIP = *ni.Association.PublicIp
	}
	return instance
}

// primaryInterface returns the interface attached at device index 0, falling
// back to the first listed interface.
func primaryInterface(interfaces []types.InstanceNetworkInterface) (types.InstanceNetworkInterface, bool) {
	if len(interfaces) == 0 {
		return types.InstanceNetworkInterface{}, false
	}
	for _, ni := range interfaces {
		if ni.Attachment != nil && aws.ToInt32(ni.Attachment.DeviceIndex) == 0 {
			return ni, true
		}
	}
	return interfaces[0], true
}
