// Package health decides whether a release is healthy, from six
// checks run against it, and raises alerts when it stays unhealthy.
package health

import (
	"time"
)

// Check names. These appear in reports, metrics and alerts, so they
// must not change.
const (
	CheckDeployment  = "deployment"
	CheckPods        = "pods"
	CheckService     = "service"
	CheckApplication = "application"
	CheckResources   = "resources"
	CheckStorage     = "storage"
)

// CheckNames lists the checks in the order they run.
var CheckNames = []string{
	CheckDeployment,
	CheckPods,
	CheckService,
	CheckApplication,
	CheckResources,
	CheckStorage,
}

type Status string

const (
	OK     Status = "OK"
	Failed Status = "FAILED"
)

// Result is the outcome of one check.
type Result struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

func (r Result) Passed() bool {
	return r.Status == OK
}

type Classification string

const (
	Healthy  Classification = "healthy"
	Warning  Classification = "warning"
	Critical Classification = "critical"
)

// warningRatio is the fraction of checks that must pass for a
// release to be no worse than Warning.
const warningRatio = 0.8

// ExitCode is what `check` exits with.
func (c Classification) ExitCode() int {
	switch c {
	case Healthy:
		return 0
	case Warning:
		return 1
	default:
		return 2
	}
}

// Level orders classifications, for the metrics gauge.
func (c Classification) Level() float64 {
	return float64(c.ExitCode())
}

// Classify aggregates results. All passing is Healthy; at least 80%
// passing is Warning; anything less, or a missing deployment, is
// Critical.
func Classify(results []Result, deploymentMissing bool) Classification {
	if deploymentMissing || len(results) == 0 {
		return Critical
	}
	passed := 0
	for _, r := range results {
		if r.Passed() {
			passed++
		}
	}
	switch ratio := float64(passed) / float64(len(results)); {
	case passed == len(results):
		return Healthy
	case ratio >= warningRatio:
		return Warning
	default:
		return Critical
	}
}

// Snapshot is the outcome of evaluating every check once.
type Snapshot struct {
	Time              time.Time      `json:"time"`
	Release           string         `json:"release"`
	Namespace         string         `json:"namespace"`
	Results           []Result       `json:"results"`
	Passed            int            `json:"passed"`
	Total             int            `json:"total"`
	Classification    Classification `json:"classification"`
	DeploymentMissing bool           `json:"deploymentMissing,omitempty"`
	// Consecutive critical evaluations, including this one. Only set
	// by Tick.
	Consecutive int  `json:"consecutiveCritical"`
	Alerted     bool `json:"alerted,omitempty"`
}

// Failed returns the names and messages of the checks that failed.
func (s Snapshot) Failed() (names, messages []string) {
	for _, r := range s.Results {
		if !r.Passed() {
			names = append(names, r.Name)
			messages = append(messages, r.Message)
		}
	}
	return names, messages
}
