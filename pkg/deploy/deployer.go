// Package deploy promotes an image from one registry to another and
// releases it to the cluster.
package deploy

import (
	"context"
	"strconv"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/fluxcd/imagepromote/pkg/audit"
	"github.com/fluxcd/imagepromote/pkg/config"
	"github.com/fluxcd/imagepromote/pkg/credentials"
	"github.com/fluxcd/imagepromote/pkg/lock"
	promotemetrics "github.com/fluxcd/imagepromote/pkg/metrics"
	"github.com/fluxcd/imagepromote/pkg/registry"
	"github.com/fluxcd/imagepromote/pkg/release"
	"github.com/fluxcd/imagepromote/pkg/retry"
)

const pullAttempts = 3

type Outcome string

const (
	Succeeded  Outcome = "succeeded"
	Failed     Outcome = "failed"
	RolledBack Outcome = "rolled-back"
)

// Attempt is the record of one promotion, passed to the audit sink
// when it finishes.
type Attempt struct {
	// ID ties together the log lines and audit record of an attempt.
	ID        string    `json:"id"`
	Tag       string    `json:"tag"`
	Source    string    `json:"source,omitempty"`
	Target    string    `json:"target,omitempty"`
	Chart     string    `json:"chart,omitempty"`
	Release   string    `json:"release,omitempty"`
	Namespace string    `json:"namespace,omitempty"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished"`
	Outcome   Outcome   `json:"outcome"`
	Stage     Stage     `json:"stage,omitempty"`
	Error     string    `json:"error,omitempty"`
	DryRun    bool      `json:"dryRun,omitempty"`
	Backup    string    `json:"backup,omitempty"`
}

// Locker keeps promotions from overlapping.
type Locker interface {
	Acquire() error
	Release() error
}

// Snapshotter describes a release as currently deployed.
type Snapshotter interface {
	Current(ctx context.Context, release, namespace string) (release.Snapshot, error)
}

// Deployer runs the promotion pipeline: preflight, sync, release,
// verify and cleanup, strictly in that order.
type Deployer struct {
	Config   config.ReleaseConfig
	Registry registry.Client
	Release  release.Client
	Lock     Locker
	Audit    audit.Sink
	Logger   log.Logger
	// DryRun logs the plan and does nothing else.
	DryRun bool
	// BackupDir, if set along with Snapshotter, is where the release
	// is snapshotted before it is changed.
	BackupDir   string
	Snapshotter Snapshotter
	Now         func() time.Time
}

func (d *Deployer) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Deployer) logger() log.Logger {
	if d.Logger == nil {
		return log.NewNopLogger()
	}
	return d.Logger
}

// Plan works out what promoting tag would do.
func (d *Deployer) Plan(tag, imageOverride string) (Plan, error) {
	return MakePlan(d.Config, tag, imageOverride)
}

// Deploy promotes tag. The returned Attempt is filled in whether or
// not it succeeds; the error, if any, is a *StageError.
func (d *Deployer) Deploy(ctx context.Context, tag, imageOverride string, creds credentials.Credentials) (attempt Attempt, err error) {
	attempt = Attempt{ID: uuid.New().String(), Tag: tag, Started: d.now(), DryRun: d.DryRun, Namespace: d.Config.Namespace}
	logger := log.With(d.logger(), "attempt", attempt.ID, "tag", tag)
	rolledBack := false

	defer func() {
		attempt.Finished = d.now()
		attempt.Outcome = Succeeded
		if err != nil {
			attempt.Outcome = Failed
			if rolledBack {
				attempt.Outcome = RolledBack
			}
			attempt.Error = err.Error()
			if se, ok := err.(*StageError); ok {
				attempt.Stage = se.Stage
				stageFailures.With(promotemetrics.LabelStage, string(se.Stage)).Add(1)
			}
			logger.Log("outcome", attempt.Outcome, "stage", attempt.Stage, "err", err)
		} else {
			logger.Log("outcome", attempt.Outcome, "took", attempt.Finished.Sub(attempt.Started).String())
		}
		if !d.DryRun {
			pipelineDuration.With(promotemetrics.LabelOutcome, string(attempt.Outcome)).Observe(attempt.Finished.Sub(attempt.Started).Seconds())
		}
		if d.Audit != nil {
			if auditErr := d.Audit.Record(ctx, audit.Event{Kind: audit.KindDeployment, Time: attempt.Finished, Data: attempt}); auditErr != nil {
				logger.Log("audit", "failed", "err", auditErr)
			}
		}
	}()

	plan, planErr := resolvePlan(d.Config, tag, imageOverride)
	if planErr != nil {
		return attempt, stageError(StagePreflight, KindConfigInvalid, planErr)
	}
	attempt.Source, attempt.Target = plan.Source.String(), plan.Target.String()
	attempt.Chart, attempt.Release = plan.Chart, plan.Release
	tagErr := CheckTag(d.Config, plan.Tag)

	if d.DryRun {
		logger.Log("dry_run", true, "source", plan.Source, "target", plan.Target, "chart", plan.Chart, "release", plan.Release)
		steps := plan.Steps
		if tagErr != nil {
			// a real run stops in preflight
			steps = []string{steps[0], "stop: " + tagErr.Error()}
		}
		for i, step := range steps {
			logger.Log("step", i+1, "would", step)
		}
		return attempt, nil
	}
	if tagErr != nil {
		return attempt, stageError(StagePreflight, KindConfigInvalid, tagErr)
	}

	if err := d.Lock.Acquire(); err != nil {
		if errors.Is(err, lock.ErrContention) {
			return attempt, stageError(StageLock, KindLockContention, err)
		}
		return attempt, stageError(StageLock, KindToolUnavailable, err)
	}
	defer func() {
		if err := d.Lock.Release(); err != nil {
			logger.Log("lock", "release failed", "err", err)
		}
	}()

	if err := d.preflight(ctx, logger); err != nil {
		return attempt, err
	}
	if err := d.sync(ctx, log.With(logger, "stage", StageSync), plan, creds); err != nil {
		return attempt, err
	}
	if err := d.release(ctx, log.With(logger, "stage", StageRelease), plan, &attempt, &rolledBack); err != nil {
		return attempt, err
	}
	if err := d.verify(ctx, log.With(logger, "stage", StageVerify), plan); err != nil {
		return attempt, err
	}
	d.cleanup(ctx, log.With(logger, "stage", StageCleanup), plan)
	return attempt, nil
}

func cancelled(ctx context.Context, stage Stage) error {
	if err := ctx.Err(); err != nil {
		return stageError(stage, KindCancelled, err)
	}
	return nil
}

func (d *Deployer) preflight(ctx context.Context, logger log.Logger) error {
	if err := cancelled(ctx, StagePreflight); err != nil {
		return err
	}
	for _, check := range []struct {
		what string
		f    func(context.Context) error
	}{
		{"registry client", d.Registry.CheckAvailable},
		{"release tool", d.Release.CheckAvailable},
		{"cluster access", d.Release.CheckClusterAccess},
	} {
		if err := check.f(ctx); err != nil {
			return stageError(StagePreflight, KindToolUnavailable, errors.Wrap(err, check.what))
		}
	}
	logger.Log("stage", StagePreflight, "status", "ok")
	return nil
}

func (d *Deployer) sync(ctx context.Context, logger log.Logger, plan Plan, creds credentials.Credentials) error {
	if err := cancelled(ctx, StageSync); err != nil {
		return err
	}
	if err := d.Registry.Login(ctx, plan.Source.Registry(), creds.Source); err != nil {
		return stageError(StageSync, KindAuthFailure, err)
	}
	err := retry.Do(pullAttempts, func(attempt int) error {
		err := d.Registry.Pull(ctx, plan.Source)
		pullAttemptsTotal.With(promotemetrics.LabelSuccess, strconv.FormatBool(err == nil)).Add(1)
		if err != nil {
			logger.Log("pull", plan.Source, "attempt", attempt, "err", err)
		}
		return err
	})
	if err != nil {
		return stageError(StageSync, KindPullFailure, err)
	}
	if err := d.Registry.Tag(ctx, plan.Source, plan.Target); err != nil {
		return stageError(StageSync, KindTagFailure, err)
	}
	if err := d.Registry.Login(ctx, plan.Target.Registry(), creds.Target); err != nil {
		return stageError(StageSync, KindAuthFailure, err)
	}
	if err := d.Registry.Push(ctx, plan.Target); err != nil {
		return stageError(StageSync, KindPushFailure, err)
	}
	logger.Log("promoted", plan.Source, "to", plan.Target)
	return nil
}

func (d *Deployer) release(ctx context.Context, logger log.Logger, plan Plan, attempt *Attempt, rolledBack *bool) error {
	if err := cancelled(ctx, StageRelease); err != nil {
		return err
	}
	if err := d.Release.CheckChartPath(plan.Chart); err != nil {
		return stageError(StageRelease, KindChartInvalid, err)
	}
	attempt.Backup = d.snapshot(ctx, logger, plan)

	err := d.Release.Deploy(ctx, plan.Chart, plan.Release, plan.Namespace, plan.Tag, d.Config.Timeout)
	if err == nil {
		logger.Log("release", plan.Release, "status", "applied")
		return nil
	}
	if d.Config.EnableRollback {
		// ctx may be the reason Deploy failed; the rollback gets its own.
		rbCtx, cancel := context.WithTimeout(context.Background(), d.Config.Timeout)
		defer cancel()
		if rbErr := d.Release.Rollback(rbCtx, plan.Release, 0); rbErr != nil {
			logger.Log("rollback", "failed", "err", rbErr)
		} else {
			*rolledBack = true
			logger.Log("rollback", "succeeded")
		}
	}
	return stageError(StageRelease, KindReleaseFailure, err)
}

// snapshot saves the current state of the release, if asked to,
// returning the file written. Failing to is not fatal.
func (d *Deployer) snapshot(ctx context.Context, logger log.Logger, plan Plan) string {
	if d.BackupDir == "" || d.Snapshotter == nil {
		return ""
	}
	snap, err := d.Snapshotter.Current(ctx, plan.Release, plan.Namespace)
	if err != nil {
		if errors.Is(err, release.ErrNoRelease) {
			logger.Log("backup", "skipped", "reason", "release not installed yet")
		} else {
			logger.Log("backup", "failed", "err", err)
		}
		return ""
	}
	snap.ChartPath = plan.Chart
	snap.Taken = d.now()
	path, err := snap.Save(d.BackupDir)
	if err != nil {
		logger.Log("backup", "failed", "err", err)
		return ""
	}
	logger.Log("backup", path, "revision", snap.Revision, "tag", snap.Tag)
	return path
}

func (d *Deployer) verify(ctx context.Context, logger log.Logger, plan Plan) error {
	if err := cancelled(ctx, StageVerify); err != nil {
		return err
	}
	if err := d.Release.RolloutStatus(ctx, plan.Release, plan.Namespace, d.Config.Timeout); err != nil {
		return stageError(StageVerify, KindRolloutTimeout, err)
	}
	logger.Log("rollout", "complete")
	return nil
}

func (d *Deployer) cleanup(ctx context.Context, logger log.Logger, plan Plan) {
	if !d.Config.EnableCleanup {
		return
	}
	if err := d.Registry.Remove(ctx, plan.Target); err != nil {
		logger.Log("cleanup", "failed", "image", plan.Target, "err", err)
		return
	}
	logger.Log("removed", plan.Target)
}
