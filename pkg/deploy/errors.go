package deploy

import (
	"fmt"

	"github.com/pkg/errors"
)

// Stage names a step of the pipeline.
type Stage string

const (
	StageLock      Stage = "lock"
	StagePreflight Stage = "preflight"
	StageSync      Stage = "sync"
	StageRelease   Stage = "release"
	StageVerify    Stage = "verify"
	StageCleanup   Stage = "cleanup"
)

// Kind says what sort of failure stopped the pipeline.
type Kind string

const (
	KindToolUnavailable Kind = "ToolUnavailable"
	KindConfigInvalid   Kind = "ConfigInvalid"
	KindAuthFailure     Kind = "AuthFailure"
	KindPullFailure     Kind = "PullFailure"
	KindTagFailure      Kind = "TagFailure"
	KindPushFailure     Kind = "PushFailure"
	KindChartInvalid    Kind = "ChartInvalid"
	KindReleaseFailure  Kind = "ReleaseFailure"
	KindRolloutTimeout  Kind = "RolloutTimeout"
	KindLockContention  Kind = "LockContention"
	KindCancelled       Kind = "Cancelled"
)

// Sentinels for each Kind, so callers can use errors.Is on whatever
// Deploy returns.
var (
	ErrToolUnavailable = errors.New("required tool unavailable")
	ErrConfigInvalid   = errors.New("invalid configuration")
	ErrAuthFailure     = errors.New("registry login failed")
	ErrPullFailure     = errors.New("image pull failed")
	ErrTagFailure      = errors.New("image tag failed")
	ErrPushFailure     = errors.New("image push failed")
	ErrChartInvalid    = errors.New("invalid chart")
	ErrReleaseFailure  = errors.New("release failed")
	ErrRolloutTimeout  = errors.New("rollout did not complete")
	ErrLockContention  = errors.New("another promotion holds the lock")
	ErrCancelled       = errors.New("promotion cancelled")
)

var kindErrors = map[Kind]error{
	KindToolUnavailable: ErrToolUnavailable,
	KindConfigInvalid:   ErrConfigInvalid,
	KindAuthFailure:     ErrAuthFailure,
	KindPullFailure:     ErrPullFailure,
	KindTagFailure:      ErrTagFailure,
	KindPushFailure:     ErrPushFailure,
	KindChartInvalid:    ErrChartInvalid,
	KindReleaseFailure:  ErrReleaseFailure,
	KindRolloutTimeout:  ErrRolloutTimeout,
	KindLockContention:  ErrLockContention,
	KindCancelled:       ErrCancelled,
}

// StageError is what Deploy returns when a stage fails.
type StageError struct {
	Stage Stage
	Kind  Kind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's Kind.
func (e *StageError) Is(target error) bool {
	return kindErrors[e.Kind] == target
}

func stageError(stage Stage, kind Kind, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}
