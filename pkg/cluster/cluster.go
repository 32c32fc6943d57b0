package cluster

import (
	"errors"
)

// Constants for workload ready status. These are defined here so that
// no-one has to drag in Kubernetes dependencies to be able to use
// them.
const (
	StatusUnknown  = "unknown"
	StatusError    = "error"
	StatusReady    = "ready"
	StatusUpdating = "updating"
	StatusStarted  = "started"
)

// ErrNotFound is the cause when the object asked about doesn't exist.
var ErrNotFound = errors.New("not found in cluster")

// RolloutStatus describes numbers of pods in different states and
// the messages about unexpected rollout progress
// a rollout status might be:
// - in progress: Updated, Ready or Available numbers are not equal to Desired, or Outdated not equal to 0
// - stuck: Messages contains info if deployment unavailable or exceeded its progress deadline
// - complete: Updated, Ready and Available numbers are equal to Desired and Outdated equal to 0
// See https://kubernetes.io/docs/concepts/workloads/controllers/deployment/#deployment-status
type RolloutStatus struct {
	// Desired number of pods as defined in spec.
	Desired int32
	// Updated number of pods that are on the desired pod spec.
	Updated int32
	// Ready number of pods targeted by this deployment.
	Ready int32
	// Available number of available pods (ready for at least minReadySeconds) targeted by this deployment.
	Available int32
	// Outdated number of pods that are on a different pod spec.
	Outdated int32
	// Messages about unexpected rollout progress
	// if there's a message here, the rollout will not make progress without intervention
	Messages []string
}

// Workload is the deployment a release runs as.
type Workload struct {
	Namespace string
	Name      string
	Status    string // one of the Status* constants
	Rollout   RolloutStatus
	Images    []string
	// Selector picks out the workload's pods, in label selector syntax.
	Selector string
}

type Pod struct {
	Name  string
	Phase string
	Ready bool
}

type Service struct {
	Name           string
	ReadyEndpoints int
}

type VolumeClaim struct {
	Name  string
	Phase string
}

func (v VolumeClaim) Bound() bool {
	return v.Phase == "Bound"
}

// Usage is the average resource consumption per pod.
type Usage struct {
	Pods      int
	CPUMillis int64
	MemoryMiB int64
}
