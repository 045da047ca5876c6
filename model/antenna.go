package model

// AntennaType distinguishes local hardware from antennas that reach the
// network.
type AntennaType int

const (
	// AntennaInternal is short-range hardware: it draws power but never adds
	// to the transmit rate.
	AntennaInternal AntennaType = iota
	AntennaDirect
	AntennaRelay
)

func (t AntennaType) String() string {
	switch t {
	case AntennaInternal:
		return "internal"
	case AntennaDirect:
		return "direct"
	case AntennaRelay:
		return "relay"
	default:
		return "unknown"
	}
}

// DeployerKind describes how an antenna is deployed, if at all.
type DeployerKind int

const (
	DeployerNone DeployerKind = iota
	DeployerDeployable
	DeployerAnimated
)

// DeployState mirrors the state machine of deployable parts.
type DeployState string

const (
	DeployRetracted  DeployState = "RETRACTED"
	DeployExtending  DeployState = "EXTENDING"
	DeployExtended   DeployState = "EXTENDED"
	DeployRetracting DeployState = "RETRACTING"
	DeployBroken     DeployState = "BROKEN"
)

// Persisted module and field names used for dormant vessels.
const (
	ModuleDeployableAntenna = "ModuleDeployableAntenna"
	ModuleAnimateGeneric    = "ModuleAnimateGeneric"

	FieldDeployState = "deployState"
	FieldAnimSpeed   = "animSpeed"
)

// Antenna is one communication device on a vessel. For dormant vessels the
// live deployment fields are not meaningful; deployment is read from the
// persisted part modules instead.
type Antenna struct {
	PartID string
	Type   AntennaType

	DataRate         float64 // bits/s
	DataResourceCost float64 // energy per unit of rate

	TransmitPower float64
	RelayPower    float64

	Deployer    DeployerKind
	DeployState DeployState
	AnimSpeed   float64
}
