package configuration

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"netbench/errors"
)

const (
	packageName = "configuration"
)

// Address release scopes.
const (
	ScopeAccount = "account"
	ScopeManaged = "managed"
)

// Sweep modes.
const (
	ModeLocal  = "local"
	ModeServer = "server"
	ModeClient = "client"
)

// Config holds the application configuration
type Config struct {
	// Cloud
	AWSRegion           string
	AcessKeyID          string
	AccessSecret        string
	EndpointURL         string
	AMIID               string
	InstanceType        string
	KeyName             string
	LaunchCount         int
	VPCCIDR             string
	SubnetCIDR          string
	AvailabilityZone    string
	SecurityGroupName   string
	WaitTimeout         time.Duration
	AddressReleaseScope string
	ResourceFile        string

	// Remote hosts
	SSHKeyPath  string
	SSHUser     string
	SSHPort     int
	SetupScript string

	// Sweep
	SweepFile          string
	SweepMode          string
	SourceDir          string
	BuildDir           string
	MakeJobs           int
	ServerBinary       string
	ClientBinary       string
	ServerAddr         string
	InitialPort        int
	NumRequests        int
	ResultsFile        string
	ReadyProbeAttempts int
	ReadyProbeBackoff  time.Duration
	MaxBindAttempts    int
	ClientTimeout      time.Duration
	RemoteReadyProbe   bool
	RemoteStartDelay   time.Duration

	LogLevel string
}

// Initialize sets up the configuration system
func Initialize() (*Config, error) {
	logger := zap.L().With(
		zap.String("package", packageName),
		zap.String("function", "Initialize"),
	)

	// Set default values
	viper.SetDefault("AWS_REGION", "us-east-1")
	viper.SetDefault("AMI_ID", "ami-0c14ff330901e49ff")
	viper.SetDefault("INSTANCE_TYPE", "c7gn.16xlarge")
	viper.SetDefault("KEY_NAME", "main")
	viper.SetDefault("LAUNCH_COUNT", 2)
	viper.SetDefault("VPC_CIDR", "10.0.0.0/16")
	viper.SetDefault("SUBNET_CIDR", "10.0.1.0/24")
	viper.SetDefault("AVAILABILITY_ZONE", "us-east-1f")
	viper.SetDefault("SECURITY_GROUP_NAME", "all_traffic_sg")
	viper.SetDefault("WAIT_TIMEOUT_SECONDS", 900)
	viper.SetDefault("ADDRESS_RELEASE_SCOPE", ScopeAccount)
	viper.SetDefault("RESOURCE_FILE", "aws_resources.json")
	viper.SetDefault("SSH_KEY_PATH", "~/.ssh/id_rsa")
	viper.SetDefault("SSH_USER", "ubuntu")
	viper.SetDefault("SSH_PORT", 22)
	viper.SetDefault("SETUP_SCRIPT", "aws_setup.sh")
	viper.SetDefault("SWEEP_MODE", ModeLocal)
	viper.SetDefault("SOURCE_DIR", ".")
	viper.SetDefault("BUILD_DIR", "build")
	viper.SetDefault("MAKE_JOBS", 32)
	viper.SetDefault("SERVER_BINARY", "./simple_iou_server")
	viper.SetDefault("CLIENT_BINARY", "./simple_iou_client")
	viper.SetDefault("SERVER_ADDR", "127.0.0.1")
	viper.SetDefault("INITIAL_PORT", 12348)
	viper.SetDefault("NUM_REQUESTS", 1024*1024)
	viper.SetDefault("RESULTS_FILE", "experiment_results.csv")
	viper.SetDefault("READY_PROBE_ATTEMPTS", 20)
	viper.SetDefault("READY_PROBE_BACKOFF_MS", 100)
	viper.SetDefault("MAX_BIND_ATTEMPTS", 16)
	viper.SetDefault("CLIENT_TIMEOUT_SECONDS", 60)
	viper.SetDefault("REMOTE_READY_PROBE", false)
	viper.SetDefault("REMOTE_START_DELAY_MS", 2000)
	viper.SetDefault("LOG_LEVEL", "info")

	// Configure Viper to read from environment
	viper.AutomaticEnv()

	// Read from .env file unless a test or caller already pointed viper elsewhere
	if viper.ConfigFileUsed() == "" {
		viper.SetConfigFile(".env")
	}
	if err := viper.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !os.IsNotExist(err) {
			return nil, errors.New(errors.ErrConfigParse, "error reading config file",
				map[string]interface{}{
					"config_file": viper.ConfigFileUsed(),
				}, err)
		}
		logger.Info("No .env file found, using environment variables and defaults",
			zap.String("operation", "config_loading"),
		)
	}

	// Validate cloud settings
	for _, key := range []string{"AWS_REGION", "AMI_ID", "INSTANCE_TYPE", "VPC_CIDR", "SUBNET_CIDR", "SECURITY_GROUP_NAME", "RESOURCE_FILE"} {
		if _, err := requireString(logger, key); err != nil {
			return nil, err
		}
	}

	scope := strings.ToLower(viper.GetString("ADDRESS_RELEASE_SCOPE"))
	if scope != ScopeAccount && scope != ScopeManaged {
		return nil, errors.New(errors.ErrConfigInvalid, "invalid ADDRESS_RELEASE_SCOPE",
			map[string]interface{}{
				"config_key": "ADDRESS_RELEASE_SCOPE",
				"value":      scope,
			}, nil)
	}
	if scope == ScopeAccount {
		logger.Warn("Address sweeps release every elastic IP in the account, not only the ones this tool allocated",
			zap.String("operation", "config_validation"),
			zap.String("scope", scope),
		)
	}

	mode := strings.ToLower(viper.GetString("SWEEP_MODE"))
	if mode != ModeLocal && mode != ModeServer && mode != ModeClient {
		return nil, errors.New(errors.ErrConfigInvalid, "invalid SWEEP_MODE",
			map[string]interface{}{
				"config_key": "SWEEP_MODE",
				"value":      mode,
			}, nil)
	}

	// Validate paths used by the harness
	for _, key := range []string{"SOURCE_DIR", "BUILD_DIR", "SERVER_BINARY", "CLIENT_BINARY", "RESULTS_FILE"} {
		if _, err := requireString(logger, key); err != nil {
			return nil, err
		}
	}

	// Validate numeric settings
	ints := map[string]int{}
	for _, key := range []string{
		"LAUNCH_COUNT", "WAIT_TIMEOUT_SECONDS", "SSH_PORT", "MAKE_JOBS", "INITIAL_PORT",
		"NUM_REQUESTS", "READY_PROBE_ATTEMPTS", "READY_PROBE_BACKOFF_MS", "MAX_BIND_ATTEMPTS",
		"CLIENT_TIMEOUT_SECONDS",
	} {
		value, err := requirePositive(logger, key)
		if err != nil {
			return nil, err
		}
		ints[key] = value
	}
	remoteStartDelay := viper.GetInt("REMOTE_START_DELAY_MS")
	if remoteStartDelay < 0 {
		return nil, errors.New(errors.ErrConfigInvalid, "invalid REMOTE_START_DELAY_MS",
			map[string]interface{}{
				"config_key": "REMOTE_START_DELAY_MS",
				"value":      remoteStartDelay,
			}, nil)
	}
	if ints["INITIAL_PORT"] > 65535 || ints["SSH_PORT"] > 65535 {
		return nil, errors.New(errors.ErrConfigInvalid, "port out of range",
			map[string]interface{}{
				"initial_port": ints["INITIAL_PORT"],
				"ssh_port":     ints["SSH_PORT"],
			}, nil)
	}

	config := &Config{
		AWSRegion:           viper.GetString("AWS_REGION"),
		AcessKeyID:          viper.GetString("AWS_ACCESS_KEY_ID"),
		AccessSecret:        viper.GetString("AWS_SECRET_ACCESS_KEY"),
		EndpointURL:         viper.GetString("LOCALSTACK_URL"),
		AMIID:               viper.GetString("AMI_ID"),
		InstanceType:        viper.GetString("INSTANCE_TYPE"),
		KeyName:             viper.GetString("KEY_NAME"),
		LaunchCount:         ints["LAUNCH_COUNT"],
		VPCCIDR:             viper.GetString("VPC_CIDR"),
		SubnetCIDR:          viper.GetString("SUBNET_CIDR"),
		AvailabilityZone:    viper.GetString("AVAILABILITY_ZONE"),
		SecurityGroupName:   viper.GetString("SECURITY_GROUP_NAME"),
		WaitTimeout:         time.Duration(ints["WAIT_TIMEOUT_SECONDS"]) * time.Second,
		AddressReleaseScope: scope,
		ResourceFile:        viper.GetString("RESOURCE_FILE"),
		SSHKeyPath:          viper.GetString("SSH_KEY_PATH"),
		SSHUser:             viper.GetString("SSH_USER"),
		SSHPort:             ints["SSH_PORT"],
		SetupScript:         viper.GetString("SETUP_SCRIPT"),
		SweepFile:           viper.GetString("SWEEP_FILE"),
		SweepMode:           mode,
		SourceDir:           viper.GetString("SOURCE_DIR"),
		BuildDir:            viper.GetString("BUILD_DIR"),
		MakeJobs:            ints["MAKE_JOBS"],
		ServerBinary:        viper.GetString("SERVER_BINARY"),
		ClientBinary:        viper.GetString("CLIENT_BINARY"),
		ServerAddr:          viper.GetString("SERVER_ADDR"),
		InitialPort:         ints["INITIAL_PORT"],
		NumRequests:         ints["NUM_REQUESTS"],
		ResultsFile:         viper.GetString("RESULTS_FILE"),
		ReadyProbeAttempts:  ints["READY_PROBE_ATTEMPTS"],
		ReadyProbeBackoff:   time.Duration(ints["READY_PROBE_BACKOFF_MS"]) * time.Millisecond,
		MaxBindAttempts:     ints["MAX_BIND_ATTEMPTS"],
		ClientTimeout:       time.Duration(ints["CLIENT_TIMEOUT_SECONDS"]) * time.Second,
		RemoteReadyProbe:    viper.GetBool("REMOTE_READY_PROBE"),
		RemoteStartDelay:    time.Duration(remoteStartDelay) * time.Millisecond,
		LogLevel:            viper.GetString("LOG_LEVEL"),
	}

	logger.Info("Configuration loaded successfully",
		zap.String("operation", "config_complete"),
	)
	return config, nil
}

func requireString(logger *zap.Logger, key string) (string, error) {
	value := strings.TrimSpace(viper.GetString(key))
	if value == "" {
		return "", errors.New(errors.ErrConfigInvalid, "invalid "+key,
			map[string]interface{}{
				"config_key": key,
			}, nil)
	}
	logger.Debug("Setting configured",
		zap.String("key", key),
		zap.String("value", value),
		zap.String("operation", "config_validation"),
	)
	return value, nil
}

func requirePositive(logger *zap.Logger, key string) (int, error) {
	value := viper.GetInt(key)
	if value <= 0 {
		return 0, errors.New(errors.ErrConfigInvalid, "invalid "+key,
			map[string]interface{}{
				"config_key": key,
				"value":      viper.GetString(key),
			}, nil)
	}
	logger.Debug("Setting configured",
		zap.String("key", key),
		zap.Int("value", value),
		zap.String("operation", "config_validation"),
	)
	return value, nil
}
