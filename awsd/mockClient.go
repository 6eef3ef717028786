package awsd

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
)

// MockEC2Client is a func-field EC2API fake. Calling a method whose func is
// unset returns an error naming the method.
type MockEC2Client struct {
	CreateVpcFunc                     func(ctx context.Context, params *ec2.CreateVpcInput, optFns ...func(*ec2.Options)) (*ec2.CreateVpcOutput, error)
	ModifyVpcAttributeFunc            func(ctx context.Context, params *ec2.ModifyVpcAttributeInput, optFns ...func(*ec2.Options)) (*ec2.ModifyVpcAttributeOutput, error)
	CreateInternetGatewayFunc         func(ctx context.Context, params *ec2.CreateInternetGatewayInput, optFns ...func(*ec2.Options)) (*ec2.CreateInternetGatewayOutput, error)
	AttachInternetGatewayFunc         func(ctx context.Context, params *ec2.AttachInternetGatewayInput, optFns ...func(*ec2.Options)) (*ec2.AttachInternetGatewayOutput, error)
	CreateRouteTableFunc              func(ctx context.Context, params *ec2.CreateRouteTableInput, optFns ...func(*ec2.Options)) (*ec2.CreateRouteTableOutput, error)
	CreateRouteFunc                   func(ctx context.Context, params *ec2.CreateRouteInput, optFns ...func(*ec2.Options)) (*ec2.CreateRouteOutput, error)
	CreateSubnetFunc                  func(ctx context.Context, params *ec2.CreateSubnetInput, optFns ...func(*ec2.Options)) (*ec2.CreateSubnetOutput, error)
	ModifySubnetAttributeFunc         func(ctx context.Context, params *ec2.ModifySubnetAttributeInput, optFns ...func(*ec2.Options)) (*ec2.ModifySubnetAttributeOutput, error)
	AssociateRouteTableFunc           func(ctx context.Context, params *ec2.AssociateRouteTableInput, optFns ...func(*ec2.Options)) (*ec2.AssociateRouteTableOutput, error)
	CreateSecurityGroupFunc           func(ctx context.Context, params *ec2.CreateSecurityGroupInput, optFns ...func(*ec2.Options)) (*ec2.CreateSecurityGroupOutput, error)
	AuthorizeSecurityGroupIngressFunc func(ctx context.Context, params *ec2.AuthorizeSecurityGroupIngressInput, optFns ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupIngressOutput, error)
	RunInstancesFunc                  func(ctx context.Context, params *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error)
	StartInstancesFunc                func(ctx context.Context, params *ec2.StartInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error)
	StopInstancesFunc                 func(ctx context.Context, params *ec2.StopInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error)
	TerminateInstancesFunc            func(ctx context.Context, params *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error)
	DescribeInstancesFunc             func(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	AllocateAddressFunc               func(ctx context.Context, params *ec2.AllocateAddressInput, optFns ...func(*ec2.Options)) (*ec2.AllocateAddressOutput, error)
	AssociateAddressFunc              func(ctx context.Context, params *ec2.AssociateAddressInput, optFns ...func(*ec2.Options)) (*ec2.AssociateAddressOutput, error)
	DescribeAddressesFunc             func(ctx context.Context, params *ec2.DescribeAddressesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeAddressesOutput, error)
	DisassociateAddressFunc           func(ctx context.Context, params *ec2.DisassociateAddressInput, optFns ...func(*ec2.Options)) (*ec2.DisassociateAddressOutput, error)
	ReleaseAddressFunc                func(ctx context.Context, params *ec2.ReleaseAddressInput, optFns ...func(*ec2.Options)) (*ec2.ReleaseAddressOutput, error)
}

var _ EC2API = (*MockEC2Client)(nil)

func (m *MockEC2Client) CreateVpc(ctx context.Context, params *ec2.CreateVpcInput, optFns ...func(*ec2.Options)) (*ec2.CreateVpcOutput, error) {
	if m.CreateVpcFunc == nil {
		return nil, unexpectedCall("CreateVpc")
	}
	return m.CreateVpcFunc(ctx, params, optFns...)
}

func (m *MockEC2Client) ModifyVpcAttribute(ctx context.Context, params *ec2.ModifyVpcAttributeInput, optFns ...func(*ec2.Options)) (*ec2.ModifyVpcAttributeOutput, error) {
	if m.ModifyVpcAttributeFunc == nil {
		return nil, unexpectedCall("ModifyVpcAttribute")
	}
	return m.ModifyVpcAttributeFunc(ctx, params, optFns...)
}

func (m *MockEC2Client) CreateInternetGateway(ctx context.Context, params *ec2.CreateInternetGatewayInput, optFns ...func(*ec2.Options)) (*ec2.CreateInternetGatewayOutput, error) {
	if m.CreateInternetGatewayFunc == nil {
		return nil, unexpectedCall("CreateInternetGateway")
	}
	return m.CreateInternetGatewayFunc(ctx, params, optFns...)
}

func (m *MockEC2Client) AttachInternetGateway(ctx context.Context, params *ec2.AttachInternetGatewayInput, optFns ...func(*ec2.Options)) (*ec2.AttachInternetGatewayOutput, error) {
	if m.AttachInternetGatewayFunc == nil {
		return nil, unexpectedCall("AttachInternetGateway")
	}
	return m.AttachInternetGatewayFunc(ctx, params, optFns...)
}

func (m *MockEC2Client) CreateRouteTable(ctx context.Context, params *ec2.CreateRouteTableInput, optFns ...func(*ec2.Options)) (*ec2.CreateRouteTableOutput, error) {
	if m.CreateRouteTableFunc == nil {
		return nil, unexpectedCall("CreateRouteTable")
	}
	return m.CreateRouteTableFunc(ctx, params, optFns...)
}

func (m *MockEC2Client) CreateRoute(ctx context.Context, params *ec2.CreateRouteInput, optFns ...func(*ec2.Options)) (*ec2.CreateRouteOutput, error) {
	if m.CreateRouteFunc == nil {
		return nil, unexpectedCall("CreateRoute")
	}
	return m.CreateRouteFunc(ctx, params, optFns...)
}

func (m *MockEC2Client) CreateSubnet(ctx context.Context, params *ec2.CreateSubnetInput, optFns ...func(*ec2.Options)) (*ec2.CreateSubnetOutput, error) {
	if m.CreateSubnetFunc == nil {
		return nil, unexpectedCall("CreateSubnet")
	}
	return m.CreateSubnetFunc(ctx, params, optFns...)
}

func (m *MockEC2Client) ModifySubnetAttribute(ctx context.Context, params *ec2.ModifySubnetAttributeInput, optFns ...func(*ec2.Options)) (*ec2.ModifySubnetAttributeOutput, error) {
	if m.ModifySubnetAttributeFunc == nil {
		return nil, unexpectedCall("ModifySubnetAttribute")
	}
	return m.ModifySubnetAttributeFunc(ctx, params, optFns...)
}

func (m *MockEC2Client) AssociateRouteTable(ctx context.Context, params *ec2.AssociateRouteTableInput, optFns ...func(*ec2.Options)) (*ec2.AssociateRouteTableOutput, error) {
	if m.AssociateRouteTableFunc == nil {
		return nil, unexpectedCall("AssociateRouteTable")
	}
	return m.AssociateRouteTableFunc(ctx, params, optFns...)
}

func (m *MockEC2Client) CreateSecurityGroup(ctx context.Context, params *ec2.CreateSecurityGroupInput, optFns ...func(*ec2.Options)) (*ec2.CreateSecurityGroupOutput, error) {
	if m.CreateSecurityGroupFunc == nil {
		return nil, unexpectedCall("CreateSecurityGroup")
	}
	return m.CreateSecurityGroupFunc(ctx, params, optFns...)
}

func (m *MockEC2Client) AuthorizeSecurityGroupIngress(ctx context.Context, params *ec2.AuthorizeSecurityGroupIngressInput, optFns ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupIngressOutput, error) {
	if m.AuthorizeSecurityGroupIngressFunc == nil {
		return nil, unexpectedCall("AuthorizeSecurityGroupIngress")
	}
	return m.AuthorizeSecurityGroupIngressFunc(ctx, params, optFns...)
}

func (m *MockEC2Client) RunInstances(ctx context.Context, params *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error) {
	if m.RunInstancesFunc == nil {
		return nil, unexpectedCall("RunInstances")
	}
	return m.RunInstancesFunc(ctx, params, optFns...)
}

func (m *MockEC2Client) StartInstances(ctx context.Context, params *ec2.StartInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error) {
	if m.StartInstancesFunc == nil {
		return nil, unexpectedCall("StartInstances")
	}
	return m.StartInstancesFunc(ctx, params, optFns...)
}

func (m *MockEC2Client) StopInstances(ctx context.Context, params *ec2.StopInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error) {
	if m.StopInstancesFunc == nil {
		return nil, unexpectedCall("StopInstances")
	}
	return m.StopInstancesFunc(ctx, params, optFns...)
}

func (m *MockEC2Client) TerminateInstances(ctx context.Context, params *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error) {
	if m.TerminateInstancesFunc == nil {
		return nil, unexpectedCall("TerminateInstances")
	}
	return m.TerminateInstancesFunc(ctx, params, optFns...)
}

func (m *MockEC2Client) DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	if m.DescribeInstancesFunc == nil {
		return nil, unexpectedCall("DescribeInstances")
	}
	return m.DescribeInstancesFunc(ctx, params, optFns...)
}

func (m *MockEC2Client) AllocateAddress(ctx context.Context, params *ec2.AllocateAddressInput, optFns ...func(*ec2.Options)) (*ec2.AllocateAddressOutput, error) {
	if m.AllocateAddressFunc == nil {
		return nil, unexpectedCall("AllocateAddress")
	}
	return m.AllocateAddressFunc(ctx, params, optFns...)
}

func (m *MockEC2Client) AssociateAddress(ctx context.Context, params *ec2.AssociateAddressInput, optFns ...func(*ec2.Options)) (*ec2.AssociateAddressOutput, error) {
	if m.AssociateAddressFunc == nil {
		return nil, unexpectedCall("AssociateAddress")
	}
	return m.AssociateAddressFunc(ctx, params, optFns...)
}

func (m *MockEC2Client) DescribeAddresses(ctx context.Context, params *ec2.DescribeAddressesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeAddressesOutput, error) {
	if m.DescribeAddressesFunc == nil {
		return nil, unexpectedCall("DescribeAddresses")
	}
	return m.DescribeAddressesFunc(ctx, params, optFns...)
}

func (m *MockEC2Client) DisassociateAddress(ctx context.Context, params *ec2.DisassociateAddressInput, optFns ...func(*ec2.Options)) (*ec2.DisassociateAddressOutput, error) {
	if m.DisassociateAddressFunc == nil {
		return nil, unexpectedCall("DisassociateAddress")
	}
	return m.DisassociateAddressFunc(ctx, params, optFns...)
}

func (m *MockEC2Client) ReleaseAddress(ctx context.Context, params *ec2.ReleaseAddressInput, optFns ...func(*ec2.Options)) (*ec2.ReleaseAddressOutput, error) {
	if m.ReleaseAddressFunc == nil {
		return nil, unexpectedCall("ReleaseAddress")
	}
	return m.ReleaseAddressFunc(ctx, params, optFns...)
}

func unexpectedCall(method string) error {
	return fmt.Errorf("unexpected call to %s", method)
}
