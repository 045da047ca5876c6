package model

// ExperimentState is the lifecycle state of a science experiment.
type ExperimentState int

const (
	ExperimentUnknown ExperimentState = iota
	ExperimentStopped
	ExperimentWaiting
	ExperimentRunning
	ExperimentIssue
)

func (s ExperimentState) String() string {
	switch s {
	case ExperimentStopped:
		return "stopped"
	case ExperimentWaiting:
		return "waiting"
	case ExperimentRunning:
		return "running"
	case ExperimentIssue:
		return "issue"
	default:
		return "unknown"
	}
}
