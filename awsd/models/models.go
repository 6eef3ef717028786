package models

import "time"

// NetworkTopology holds the identifiers of the network resources instances are
// launched into. A topology is only valid with all five identifiers set.
type NetworkTopology struct {
	VPCID           string `json:"vpc_id"`
	InternetGateway string `json:"igw_id"`
	RouteTableID    string `json:"route_table_id"`
	SubnetID        string `json:"subnet_id"`
	SecurityGroupID string `json:"sg_id"`
}

// Complete reports whether every identifier is populated.
func (t NetworkTopology) Complete() bool {
	return t.VPCID != "" && t.InternetGateway != "" && t.RouteTableID != "" &&
		t.SubnetID != "" && t.SecurityGroupID != ""
}

// Empty reports whether no identifier is populated.
func (t NetworkTopology) Empty() bool {
	return t == NetworkTopology{}
}

// InstanceState mirrors the EC2 instance state names this tool reasons about.
type InstanceState string

const (
	StatePending    InstanceState = "pending"
	StateRunning    InstanceState = "running"
	StateStopping   InstanceState = "stopping"
	StateStopped    InstanceState = "stopped"
	StateTerminated InstanceState = "terminated"
)

// Instance is a cached observation of an EC2 instance. State and PublicIP may
// be stale between polls; an empty PublicIP means no address is associated.
type Instance struct {
	InstanceID   string
	InstanceType string
	State        InstanceState
	LaunchTime   time.Time
	PublicIP     string
}

// ElasticAddress represents an allocated public IPv4 address. AssociationID is
// set iff the address is currently bound to a network interface.
type ElasticAddress struct {
	AllocationID       string
	PublicIP           string
	AssociationID      string
	NetworkInterfaceID string
	InstanceID         string
}

// Associated reports whether the address is bound to an interface.
func (a ElasticAddress) Associated() bool {
	return a.AssociationID != ""
}

// ReleaseScope selects which addresses an address sweep reclaims.
type ReleaseScope string

const (
	// ReleaseAccount reclaims every address in the account.
	ReleaseAccount ReleaseScope = "account"
	// ReleaseManaged reclaims only addresses tagged by this tool.
	ReleaseManaged ReleaseScope = "managed"
)
