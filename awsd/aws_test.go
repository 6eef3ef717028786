package awsd

import (
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netbench/awsd/models"
	"netbench/configuration"
)

// apiError builds the error EC2 returns for the given error code.
func apiError(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: code}
}

func TestNewAWSClient(t *testing.T) {
	tests := []struct {
		name string
		cfg  *configuration.Config
	}{
		{
			name: "static credentials with endpoint override",
			cfg: &configuration.Config{
				AWSRegion:    "us-east-1",
				AcessKeyID:   "AKIAEXAMPLE",
				AccessSecret: "secret",
				EndpointURL:  "http://localhost:4566",
			},
		},
		{
			name: "default credential chain",
			cfg:  &configuration.Config{AWSRegion: "eu-west-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AWS_CONFIG_FILE", t.TempDir()+"/config")
			t.Setenv("AWS_SHARED_CREDENTIALS_FILE", t.TempDir()+"/credentials")

			client, err := NewAWSClient(tt.cfg)
			require.NoError(t, err)
			require.NotNil(t, client)
			assert.NotNil(t, client.API())
		})
	}
}

func TestAPIErrorCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "api error", err: apiError(codeInstanceNotFound), expected: codeInstanceNotFound},
		{name: "wrapped api error", err: fmt.Errorf("%w: %w", ErrElasticIPDelete, apiError(codeAllocationNotFound)), expected: codeAllocationNotFound},
		{name: "plain error", err: fmt.Errorf("boom"), expected: ""},
		{name: "nil", err: nil, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, apiErrorCode(tt.err))
		})
	}
}

func TestToInstance(t *testing.T) {
	launched := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		input    types.Instance
		expected models.Instance
	}{
		{
			name: "public ip from primary interface association",
			input: types.Instance{
				InstanceId:      aws.String("i-1"),
				InstanceType:    types.InstanceType("c7gn.16xlarge"),
				LaunchTime:      aws.Time(launched),
				State:           &types.InstanceState{Name: types.InstanceStateNameRunning},
				PublicIpAddress: aws.String("54.0.0.9"),
				NetworkInterfaces: []types.InstanceNetworkInterface{
					{
						Attachment:  &types.InstanceNetworkInterfaceAttachment{DeviceIndex: aws.Int32(1)},
						Association: &types.InstanceNetworkInterfaceAssociation{PublicIp: aws.String("54.0.0.2")},
					},
					{
						Attachment:  &types.InstanceNetworkInterfaceAttachment{DeviceIndex: aws.Int32(0)},
						Association: &types.InstanceNetworkInterfaceAssociation{PublicIp: aws.String("54.0.0.1")},
					},
				},
			},
			expected: models.Instance{
				InstanceID:   "i-1",
				InstanceType: "c7gn.16xlarge",
				State:        models.StateRunning,
				LaunchTime:   launched,
				PublicIP:     "54.0.0.1",
			},
		},
		{
			name: "falls back to instance public ip",
			input: types.Instance{
				InstanceId:      aws.String("i-2"),
				InstanceType:    types.InstanceTypeT3Micro,
				State:           &types.InstanceState{Name: types.InstanceStateNameStopped},
				PublicIpAddress: aws.String("3.3.3.3"),
			},
			expected: models.Instance{
				InstanceID:   "i-2",
				InstanceType: "t3.micro",
				State:        models.StateStopped,
				PublicIP:     "3.3.3.3",
			},
		},
		{
			name: "no address at all",
			input: types.Instance{
				InstanceId: aws.String("i-3"),
				State:      &types.InstanceState{Name: types.InstanceStateNameStopped},
			},
			expected: models.Instance{
				InstanceID: "i-3",
				State:      models.StateStopped,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, toInstance(tt.input))
		})
	}
}

func TestPrimaryInterface(t *testing.T) {
	_, ok := primaryInterface(nil)
	assert.False(t, ok)

	ni, ok := primaryInterface([]types.InstanceNetworkInterface{
		{NetworkInterfaceId: aws.String("eni-first")},
		{NetworkInterfaceId: aws.String("eni-second")},
	})
	require.True(t, ok)
	assert.Equal(t, "eni-first", aws.ToString(ni.NetworkInterfaceId))
}

func TestTagSpecificationWithDefaults(t *testing.T) {
	specs := tagSpecificationWithDefaults(types.ResourceTypeVpc, nameTag("netbench-vpc"))
	require.Len(t, specs, 1)
	assert.Equal(t, types.ResourceTypeVpc, specs[0].ResourceType)
	assert.Equal(t, "netbench-vpc", tagValue(specs[0].Tags, tagKeyName))
	assert.Equal(t, "netbench", tagValue(specs[0].Tags, tagKeyProject))
	assert.Equal(t, "true", tagValue(specs[0].Tags, tagKeyManaged))
	assert.Equal(t, "", tagValue(specs[0].Tags, tagKeyInstanceID))
}
