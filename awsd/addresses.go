package awsd

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"go.uber.org/zap"

	"netbench/awsd/models"
	"netbench/configuration"
	"netbench/errors"
)

const (
	codeInstanceNotFound    = "InvalidInstanceID.NotFound"
	codeAllocationNotFound  = "InvalidAllocationID.NotFound"
	codeAssociationNotFound = "InvalidAssociationID.NotFound"
)

// AddressManager allocates elastic IPs for benchmark hosts and reclaims them.
type AddressManager struct {
	client EC2API
	scope  models.ReleaseScope
	logger *zap.Logger
}

func NewAddressManager(c *AwsClient, cfg *configuration.Config) *AddressManager {
	scope := models.ReleaseAccount
	if cfg.AddressReleaseScope == configuration.ScopeManaged {
		scope = models.ReleaseManaged
	}
	return &AddressManager{
		client: c.API(),
		scope:  scope,
		logger: zap.L().With(zap.String("package", packageName), zap.String("component", "addresses")),
	}
}

var (
	ErrElasticIPCreate = fmt.Errorf("failed to create public IP address")
	ErrElasticIPIDNil  = fmt.Errorf("encountered no error in elastic IP address creation, but the returned allocation ID was nil")
)

func elasticIPCreate(ctx context.Context, client EC2API, tags ...types.Tag) (string, error) {
	result, err := client.AllocateAddress(ctx, &ec2.AllocateAddressInput{
		Domain:            types.DomainTypeVpc,
		TagSpecifications: tagSpecificationWithDefaults(types.ResourceTypeElasticIp, tags...),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrElasticIPCreate, err)
	}
	if result.AllocationId == nil {
		return "", ErrElasticIPIDNil
	}
	return *result.AllocationId, nil
}

var (
	ErrElasticIPAttach      = fmt.Errorf("failed to attach the elastic IP address to the network interface")
	ErrElasticIPAttachIDNil = fmt.Errorf("encountered no error in elastic IP address association, but the returned association ID was nil")
)

func elasticIPAttach(ctx context.Context, client EC2API, allocationID, interfaceID string) (string, error) {
	result, err := client.AssociateAddress(ctx, &ec2.AssociateAddressInput{
		AllocationId:       &allocationID,
		NetworkInterfaceId: &interfaceID,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrElasticIPAttach, err)
	}
	if result.AssociationId == nil {
		return "", ErrElasticIPAttachIDNil
	}
	return *result.AssociationId, nil
}

var ErrElasticIPDetach = fmt.Errorf("failed to detach elastic IP address")

func elasticIPDetach(ctx context.Context, client EC2API, associationID string) error {
	_, err := client.DisassociateAddress(ctx, &ec2.DisassociateAddressInput{
		AssociationId: &associationID,
	})
	if err != nil && apiErrorCode(err) != codeAssociationNotFound {
		return fmt.Errorf("%w: %w", ErrElasticIPDetach, err)
	}
	return nil
}

var ErrElasticIPDelete = fmt.Errorf("failed to delete elastic IP address")

func elasticIPDelete(ctx context.Context, client EC2API, allocationID string) error {
	_, err := client.ReleaseAddress(ctx, &ec2.ReleaseAddressInput{
		AllocationId: &allocationID,
	})
	if err != nil && apiErrorCode(err) != codeAllocationNotFound {
		return fmt.Errorf("%w: %w", ErrElasticIPDelete, err)
	}
	return nil
}

// describeInstance returns the instance, or false when EC2 does not know it.
func describeInstance(ctx context.Context, client EC2API, instanceID string) (types.Instance, bool, error) {
	result, err := client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		if apiErrorCode(err) == codeInstanceNotFound {
			return types.Instance{}, false, nil
		}
		return types.Instance{}, false, err
	}
	for _, reservation := range result.Reservations {
		for _, inst := range reservation.Instances {
			if aws.ToString(inst.InstanceId) == instanceID {
				return inst, true, nil
			}
		}
	}
	return types.Instance{}, false, nil
}

// AllocateAndBind allocates a VPC elastic IP tagged with the owning instance
// and associates it with the instance's primary network interface.
func (a *AddressManager) AllocateAndBind(ctx context.Context, instanceID string) (models.ElasticAddress, error) {
	fail := func(msg string, allocationID string, err error) (models.ElasticAddress, error) {
		// The allocation is not rolled back; name it so the operator can
		// release it by hand.
		if allocationID != "" {
			msg = fmt.Sprintf("%s (elastic IP %s is still allocated)", msg, allocationID)
		}
		a.logger.Error(msg,
			zap.String("operation", "allocate_and_bind"),
			zap.String("instance_id", instanceID),
			zap.String("allocation_id", allocationID),
			zap.Error(err),
		)
		return models.ElasticAddress{}, errors.New(errors.ErrAddress, msg,
			map[string]interface{}{
				"instance_id":   instanceID,
				"allocation_id": allocationID,
			}, err)
	}

	inst, found, err := describeInstance(ctx, a.client, instanceID)
	if err != nil {
		return fail("failed to describe instance", "", err)
	}
	if !found {
		return fail("instance not found", "", nil)
	}
	ni, ok := primaryInterface(inst.NetworkInterfaces)
	if !ok || ni.NetworkInterfaceId == nil {
		return fail("instance has no network interfaces", "", nil)
	}

	allocationID, err := elasticIPCreate(ctx, a.client,
		nameTag(resourcePrefix+"-eip"),
		tag(tagKeyInstanceID, instanceID),
	)
	if err != nil {
		return fail("failed to allocate elastic IP", "", err)
	}

	associationID, err := elasticIPAttach(ctx, a.client, allocationID, *ni.NetworkInterfaceId)
	if err != nil {
		return fail("failed to associate elastic IP", allocationID, err)
	}

	described, err := a.client.DescribeAddresses(ctx, &ec2.DescribeAddressesInput{
		AllocationIds: []string{allocationID},
	})
	if err != nil {
		return fail("failed to describe elastic IP", allocationID, err)
	}
	if len(described.Addresses) == 0 || described.Addresses[0].PublicIp == nil {
		return fail("elastic IP has no public address", allocationID, nil)
	}

	address := models.ElasticAddress{
		AllocationID:       allocationID,
		PublicIP:           *described.Addresses[0].PublicIp,
		AssociationID:      associationID,
		NetworkInterfaceID: *ni.NetworkInterfaceId,
		InstanceID:         instanceID,
	}
	a.logger.Info("Elastic IP bound",
		zap.String("operation", "allocate_and_bind"),
		zap.String("instance_id", instanceID),
		zap.String("allocation_id", allocationID),
		zap.String("public_ip", address.PublicIP),
	)
	return address, nil
}

// GetPublicIP returns the public address associated with the instance's
// primary interface. A missing instance, interface or association is
// reported as ("", false, nil).
func (a *AddressManager) GetPublicIP(ctx context.Context, instanceID string) (string, bool, error) {
	inst, found, err := describeInstance(ctx, a.client, instanceID)
	if err != nil {
		return "", false, errors.New(errors.ErrAddress, "failed to describe instance",
			map[string]interface{}{
				"instance_id": instanceID,
			}, err)
	}
	if !found {
		return "", false, nil
	}
	ni, ok := primaryInterface(inst.NetworkInterfaces)
	if !ok || ni.Association == nil || aws.ToString(ni.Association.PublicIp) == "" {
		return "", false, nil
	}
	return *ni.Association.PublicIp, true, nil
}

// Release reclaims addresses after instanceID is terminated. With the account
// scope every address in the account is released, not only the instance's.
func (a *AddressManager) Release(ctx context.Context, instanceID string) (int, error) {
	input := &ec2.DescribeAddressesInput{}
	if a.scope == models.ReleaseManaged {
		input.Filters = []types.Filter{
			{
				Name:   aws.String("tag:" + tagKeyInstanceID),
				Values: []string{instanceID},
			},
		}
	}
	return a.sweep(ctx, "release", input)
}

// ReleaseAll reclaims every address in scope.
func (a *AddressManager) ReleaseAll(ctx context.Context) (int, error) {
	input := &ec2.DescribeAddressesInput{}
	if a.scope == models.ReleaseManaged {
		input.Filters = []types.Filter{
			{
				Name:   aws.String("tag-key"),
				Values: []string{tagKeyManaged},
			},
		}
	}
	return a.sweep(ctx, "release_all", input)
}

func (a *AddressManager) sweep(ctx context.Context, operation string, input *ec2.DescribeAddressesInput) (int, error) {
	if a.scope == models.ReleaseAccount {
		a.logger.Warn("Releasing every elastic IP in the account",
			zap.String("operation", operation),
			zap.String("scope", string(a.scope)),
		)
	}

	described, err := a.client.DescribeAddresses(ctx, input)
	if err != nil {
		return 0, errors.New(errors.ErrAddress, "failed to describe addresses",
			map[string]interface{}{
				"scope": a.scope,
			}, err)
	}

	released := 0
	var errs []error
	for _, addr := range described.Addresses {
		address := toElasticAddress(addr)
		if address.Associated() {
			if err := elasticIPDetach(ctx, a.client, address.AssociationID); err != nil {
				errs = append(errs, err)
				continue
			}
		}
		if err := elasticIPDelete(ctx, a.client, address.AllocationID); err != nil {
			errs = append(errs, err)
			continue
		}
		released++
		a.logger.Info("Elastic IP released",
			zap.String("operation", operation),
			zap.String("allocation_id", address.AllocationID),
			zap.String("public_ip", address.PublicIP),
		)
	}

	if len(errs) > 0 {
		return released, errors.New(errors.ErrAddress, "failed to release some addresses",
			map[string]interface{}{
				"scope":    a.scope,
				"released": released,
				"failed":   len(errs),
			}, stderrors.Join(errs...))
	}
	return released, nil
}

func toElasticAddress(addr types.Address) models.ElasticAddress {
	return models.ElasticAddress{
		AllocationID:       aws.ToString(addr.AllocationId),
		PublicIP:           aws.ToString(addr.PublicIp),
		AssociationID:      aws.ToString(addr.AssociationId),
		NetworkInterfaceID: aws.ToString(addr.NetworkInterfaceId),
		InstanceID:         aws.ToString(addr.InstanceId),
	}
}
