package awsd

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"go.uber.org/zap"

	"netbench/errors"
)

// AddressReleaser is the part of AddressManager the cleaner depends on.
type AddressReleaser interface {
	ReleaseAll(ctx context.Context) (int, error)
}

// Cleaner tears down every running or stopped instance in the account.
type Cleaner struct {
	client    EC2API
	addresses AddressReleaser
	logger    *zap.Logger
}

func NewCleaner(c *AwsClient, addresses AddressReleaser) *Cleaner {
	return &Cleaner{
		client:    c.API(),
		addresses: addresses,
		logger:    zap.L().With(zap.String("package", packageName), zap.String("component", "cleanup")),
	}
}

// TerminateAll issues one batch termination for every running or stopped
// instance without waiting for it to settle, then releases addresses. It
// returns the ids it asked to terminate and the number of released addresses.
func (c *Cleaner) TerminateAll(ctx context.Context) ([]string, int, error) {
	var ids []string
	paginator := ec2.NewDescribeInstancesPaginator(c.client, &ec2.DescribeInstancesInput{
		Filters: []types.Filter{
			{
				Name:   aws.String("instance-state-name"),
				Values: []string{string(types.InstanceStateNameRunning), string(types.InstanceStateNameStopped)},
			},
		},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, 0, errors.New(errors.ErrInstanceLifecycle, "failed to describe instances",
				map[string]interface{}{
					"operation": "terminate_all",
				}, err)
		}
		for _, reservation := range page.Reservations {
			for _, inst := range reservation.Instances {
				if inst.InstanceId != nil {
					ids = append(ids, *inst.InstanceId)
				}
			}
		}
	}

	if len(ids) > 0 {
		c.logger.Info("Terminating instances",
			zap.String("operation", "terminate_all"),
			zap.Strings("instance_ids", ids),
		)
		if _, err := c.client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
			InstanceIds: ids,
		}); err != nil {
			return nil, 0, errors.New(errors.ErrInstanceLifecycle, "failed to terminate instances",
				map[string]interface{}{
					"instance_ids": ids,
				}, err)
		}
	} else {
		c.logger.Info("No instances to terminate",
			zap.String("operation", "terminate_all"),
		)
	}

	released, err := c.addresses.ReleaseAll(ctx)
	return ids, released, err
}
