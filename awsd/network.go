package awsd

import (
	"context"
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
	// Provisioning step names reported in PROVISIONING_ERROR context.
	stepCreateVPC          = "create_vpc"
	stepEnableDNSSupport   = "enable_dns_support"
	stepEnableDNSHostnames = "enable_dns_hostnames"
	stepCreateIGW          = "create_internet_gateway"
	stepAttachIGW          = "attach_internet_gateway"
	stepCreateRouteTable   = "create_route_table"
	stepCreateRoute        = "create_default_route"
	stepCreateSubnet       = "create_subnet"
	stepMapPublicIP        = "enable_map_public_ip"
	stepAssociateRoute     = "associate_route_table"
	stepCreateSG           = "create_security_group"
	stepAuthorizeIngress   = "authorize_ingress"

	defaultRouteCIDR = "0.0.0.0/0"
	resourcePrefix   = "netbench"
)

// Provisioner creates the network topology benchmark hosts are launched into.
type Provisioner struct {
	client            EC2API
	vpcCIDR           string
	subnetCIDR        string
	availabilityZone  string
	securityGroupName string
	logger            *zap.Logger
}

func NewProvisioner(c *AwsClient, cfg *configuration.Config) *Provisioner {
	return &Provisioner{
		client:            c.API(),
		vpcCIDR:           cfg.VPCCIDR,
		subnetCIDR:        cfg.SubnetCIDR,
		availabilityZone:  cfg.AvailabilityZone,
		securityGroupName: cfg.SecurityGroupName,
		logger:            zap.L().With(zap.String("package", packageName), zap.String("component", "provisioner")),
	}
}

// CreateNetwork provisions a VPC with DNS enabled, an attached internet
// gateway, a route table with a default route through it, a public subnet
// associated to that table and a security group open to itself plus SSH from
// anywhere. Steps run strictly in that order. The first failure aborts with a
// PROVISIONING_ERROR naming the step and every identifier created so far;
// nothing is rolled back.
func (p *Provisioner) CreateNetwork(ctx context.Context) (models.NetworkTopology, error) {
	var topo models.NetworkTopology

	fail := func(step string, err error) (models.NetworkTopology, error) {
		p.logger.Error("Network provisioning failed",
			zap.String("operation", "create_network"),
			zap.String("step", step),
			zap.Any("created", topo),
			zap.Error(err),
		)
		return models.NetworkTopology{}, errors.New(errors.ErrProvisioning, "failed to provision network",
			map[string]interface{}{
				"step":              step,
				"vpc_id":            topo.VPCID,
				"igw_id":            topo.InternetGateway,
				"route_table_id":    topo.RouteTableID,
				"subnet_id":         topo.SubnetID,
				"security_group_id": topo.SecurityGroupID,
			}, err)
	}

	p.logger.Info("Provisioning network",
		zap.String("operation", "create_network"),
		zap.String("vpc_cidr", p.vpcCIDR),
		zap.String("subnet_cidr", p.subnetCIDR),
		zap.String("availability_zone", p.availabilityZone),
	)

	var err error
	if topo.VPCID, err = vpcCreate(ctx, p.client, resourcePrefix+"-vpc", p.vpcCIDR); err != nil {
		return fail(stepCreateVPC, err)
	}
	if err = vpcEnableDNSSupport(ctx, p.client, topo.VPCID); err != nil {
		return fail(stepEnableDNSSupport, err)
	}
	if err = vpcEnableDNSHostnames(ctx, p.client, topo.VPCID); err != nil {
		return fail(stepEnableDNSHostnames, err)
	}

	if topo.InternetGateway, err = internetGatewayCreate(ctx, p.client, nameTag(resourcePrefix+"-igw")); err != nil {
		return fail(stepCreateIGW, err)
	}
	if err = internetGatewayAttach(ctx, p.client, topo.VPCID, topo.InternetGateway); err != nil {
		return fail(stepAttachIGW, err)
	}

	if topo.RouteTableID, err = routeTableCreate(ctx, p.client, topo.VPCID, nameTag(resourcePrefix+"-rtb")); err != nil {
		return fail(stepCreateRouteTable, err)
	}
	if err = routeTableIGWRouteCreate(ctx, p.client, topo.RouteTableID, defaultRouteCIDR, topo.InternetGateway); err != nil {
		return fail(stepCreateRoute, err)
	}

	if topo.SubnetID, err = subnetCreate(ctx, p.client, topo.VPCID, p.subnetCIDR, p.availabilityZone, nameTag(resourcePrefix+"-subnet")); err != nil {
		return fail(stepCreateSubnet, err)
	}
	if err = subnetMapPublicIPOnLaunch(ctx, p.client, topo.SubnetID); err != nil {
		return fail(stepMapPublicIP, err)
	}
	if err = routeTableAssociate(ctx, p.client, topo.RouteTableID, topo.SubnetID); err != nil {
		return fail(stepAssociateRoute, err)
	}

	if topo.SecurityGroupID, err = securityGroupCreate(ctx, p.client, topo.VPCID, p.securityGroupName); err != nil {
		return fail(stepCreateSG, err)
	}
	if err = securityGroupAuthorize(ctx, p.client, topo.SecurityGroupID); err != nil {
		return fail(stepAuthorizeIngress, err)
	}

	p.logger.Info("Network provisioned",
		zap.String("operation", "create_network"),
		zap.String("vpc_id", topo.VPCID),
		zap.String("igw_id", topo.InternetGateway),
		zap.String("route_table_id", topo.RouteTableID),
		zap.String("subnet_id", topo.SubnetID),
		zap.String("security_group_id", topo.SecurityGroupID),
	)
	return topo, nil
}

var (
	ErrVPCCreate = fmt.Errorf("failed VPC creation")
	ErrNilVPCID  = fmt.Errorf("received no error in VPC create, but the VPC ID returned was nil")
)

func vpcCreate(ctx context.Context, client EC2API, vpcName, vpcCIDR string) (string, error) {
	result, err := client.CreateVpc(ctx, &ec2.CreateVpcInput{
		CidrBlock:         aws.String(vpcCIDR),
		TagSpecifications: tagSpecificationWithDefaults(types.ResourceTypeVpc, nameTag(vpcName)),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrVPCCreate, err)
	}
	if result.Vpc == nil || result.Vpc.VpcId == nil {
		return "", ErrNilVPCID
	}
	return *result.Vpc.VpcId, nil
}

var ErrVPCModify = fmt.Errorf("failed to modify VPC attribute")

func vpcEnableDNSSupport(ctx context.Context, client EC2API, vpcID string) error {
	_, err := client.ModifyVpcAttribute(ctx, &ec2.ModifyVpcAttributeInput{
		VpcId:            aws.String(vpcID),
		EnableDnsSupport: &types.AttributeBooleanValue{Value: aws.Bool(true)},
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrVPCModify, err)
	}
	return nil
}

func vpcEnableDNSHostnames(ctx context.Context, client EC2API, vpcID string) error {
	_, err := client.ModifyVpcAttribute(ctx, &ec2.ModifyVpcAttributeInput{
		VpcId:              aws.String(vpcID),
		EnableDnsHostnames: &types.AttributeBooleanValue{Value: aws.Bool(true)},
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrVPCModify, err)
	}
	return nil
}

var (
	ErrInternetGatewayCreate = fmt.Errorf("failed to create internet gateway")
	ErrNilInternetGatewayID  = fmt.Errorf("received no error in internet gateway create, but the internet gateway ID returned was nil")
)

func internetGatewayCreate(ctx context.Context, client EC2API, tags ...types.Tag) (string, error) {
	result, err := client.CreateInternetGateway(ctx, &ec2.CreateInternetGatewayInput{
		TagSpecifications: tagSpecificationWithDefaults(types.ResourceTypeInternetGateway, tags...),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInternetGatewayCreate, err)
	}
	if result.InternetGateway == nil || result.InternetGateway.InternetGatewayId == nil {
		return "", ErrNilInternetGatewayID
	}
	return *result.InternetGateway.InternetGatewayId, nil
}

var ErrInternetGatewayAttach = fmt.Errorf("failed to attach internet gateway to VPC")

func internetGatewayAttach(ctx context.Context, client EC2API, vpcID, igwID string) error {
	_, err := client.AttachInternetGateway(ctx, &ec2.AttachInternetGatewayInput{
		VpcId:             &vpcID,
		InternetGatewayId: &igwID,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInternetGatewayAttach, err)
	}
	return nil
}

var (
	ErrRouteTableCreate = fmt.Errorf("failed to create route table")
	ErrNilRouteTableID  = fmt.Errorf("received no error in route table create, but the route table ID returned was nil")
)

func routeTableCreate(ctx context.Context, client EC2API, vpcID string, tags ...types.Tag) (string, error) {
	result, err := client.CreateRouteTable(ctx, &ec2.CreateRouteTableInput{
		VpcId:             &vpcID,
		TagSpecifications: tagSpecificationWithDefaults(types.ResourceTypeRouteTable, tags...),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRouteTableCreate, err)
	}
	if result.RouteTable == nil || result.RouteTable.RouteTableId == nil {
		return "", ErrNilRouteTableID
	}
	return *result.RouteTable.RouteTableId, nil
}

var ErrRouteTableRouteCreate = fmt.Errorf("failed to add route to route table")

func routeTableIGWRouteCreate(ctx context.Context, client EC2API, rtbID, destCIDR, igwID string) error {
	result, err := client.CreateRoute(ctx, &ec2.CreateRouteInput{
		RouteTableId:         &rtbID,
		GatewayId:            &igwID,
		DestinationCidrBlock: &destCIDR,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRouteTableRouteCreate, err)
	}
	if result.Return != nil && !*result.Return {
		return ErrRouteTableRouteCreate
	}
	return nil
}

var ErrRouteTableAssociate = fmt.Errorf("failed to associate route table with subnet")

func routeTableAssociate(ctx context.Context, client EC2API, rtbID, subnetID string) error {
	_, err := client.AssociateRouteTable(ctx, &ec2.AssociateRouteTableInput{
		RouteTableId: &rtbID,
		SubnetId:     &subnetID,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRouteTableAssociate, err)
	}
	return nil
}

var (
	ErrSubnetCreate = fmt.Errorf("failed to create subnet")
	ErrNilSubnetID  = fmt.Errorf("received no error in subnet create, but the subnet ID returned was nil")
)

func subnetCreate(ctx context.Context, client EC2API, vpcID, cidr, az string, tags ...types.Tag) (string, error) {
	input := &ec2.CreateSubnetInput{
		VpcId:             &vpcID,
		CidrBlock:         &cidr,
		TagSpecifications: tagSpecificationWithDefaults(types.ResourceTypeSubnet, tags...),
	}
	if az != "" {
		input.AvailabilityZone = aws.String(az)
	}
	result, err := client.CreateSubnet(ctx, input)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSubnetCreate, err)
	}
	if result.Subnet == nil || result.Subnet.SubnetId == nil {
		return "", ErrNilSubnetID
	}
	return *result.Subnet.SubnetId, nil
}

var ErrSubnetModify = fmt.Errorf("failed to enable public IP mapping on subnet")

func subnetMapPublicIPOnLaunch(ctx context.Context, client EC2API, subnetID string) error {
	_, err := client.ModifySubnetAttribute(ctx, &ec2.ModifySubnetAttributeInput{
		SubnetId:            &subnetID,
		MapPublicIpOnLaunch: &types.AttributeBooleanValue{Value: aws.Bool(true)},
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSubnetModify, err)
	}
	return nil
}

var (
	ErrSecurityGroupCreate = fmt.Errorf("failed to create security group")
	ErrNilSecurityGroupID  = fmt.Errorf("received no error in security group create, but the group ID returned was nil")
)

func securityGroupCreate(ctx context.Context, client EC2API, vpcID, name string) (string, error) {
	result, err := client.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:         aws.String(name),
		Description:       aws.String("Security group allowing all traffic between members and SSH from anywhere"),
		VpcId:             &vpcID,
		TagSpecifications: tagSpecificationWithDefaults(types.ResourceTypeSecurityGroup, nameTag(name)),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSecurityGroupCreate, err)
	}
	if result.GroupId == nil {
		return "", ErrNilSecurityGroupID
	}
	return *result.GroupId, nil
}

var ErrSecurityGroupInboundRuleCreate = fmt.Errorf("failed to add security group rules")

// securityGroupAuthorize opens every TCP and UDP port to members of the group
// itself and TCP 22 to the world.
func securityGroupAuthorize(ctx context.Context, client EC2API, sgID string) error {
	self := []types.UserIdGroupPair{{GroupId: aws.String(sgID)}}
	_, err := client.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId: &sgID,
		IpPermissions: []types.IpPermission{
			{
				IpProtocol:       aws.String("tcp"),
				FromPort:         aws.Int32(0),
				ToPort:           aws.Int32(65535),
				UserIdGroupPairs: self,
			},
			{
				IpProtocol:       aws.String("udp"),
				FromPort:         aws.Int32(0),
				ToPort:           aws.Int32(65535),
				UserIdGroupPairs: self,
			},
			{
				IpProtocol: aws.String("tcp"),
				FromPort:   aws.Int32(22),
				ToPort:     aws.Int32(22),
				IpRanges:   []types.IpRange{{CidrIp: aws.String(defaultRouteCIDR)}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSecurityGroupInboundRuleCreate, err)
	}
	return nil
}
