package kubernetes

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	apiapps "k8s.io/api/apps/v1"
	apiv1 "k8s.io/api/core/v1"
	meta_v1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/fluxcd/imagepromote/pkg/cluster"
	fluxerr "github.com/fluxcd/imagepromote/pkg/errors"
)

// PollInterval is how often WaitForRollout looks at the deployment.
var PollInterval = 2 * time.Second

// ErrRolloutTimeout is the cause when a rollout doesn't finish in time.
var ErrRolloutTimeout = errors.New("timed out waiting for rollout")

func deploymentErrors(d *apiapps.Deployment) []string {
	var errs []string
	for _, cond := range d.Status.Conditions {
		if (cond.Type == apiapps.DeploymentProgressing && cond.Status == apiv1.ConditionFalse) ||
			(cond.Type == apiapps.DeploymentReplicaFailure && cond.Status == apiv1.ConditionTrue) {
			errs = append(errs, cond.Message)
		}
	}
	return errs
}

func makeDeploymentWorkload(deployment *apiapps.Deployment) (cluster.Workload, error) {
	objectMeta, deploymentStatus := deployment.ObjectMeta, deployment.Status

	desired := int32(1)
	if deployment.Spec.Replicas != nil {
		desired = *deployment.Spec.Replicas
	}
	rollout := cluster.RolloutStatus{
		Desired:   desired,
		Updated:   deploymentStatus.UpdatedReplicas,
		Ready:     deploymentStatus.ReadyReplicas,
		Available: deploymentStatus.AvailableReplicas,
		Outdated:  deploymentStatus.Replicas - deploymentStatus.UpdatedReplicas,
		Messages:  deploymentErrors(deployment),
	}

	status := cluster.StatusStarted
	if deploymentStatus.ObservedGeneration >= objectMeta.Generation {
		// the definition has been updated; now let's see about the replicas
		status = cluster.StatusUpdating
		if rollout.Updated == rollout.Desired && rollout.Available == rollout.Desired && rollout.Outdated == 0 {
			status = cluster.StatusReady
		}
		if len(rollout.Messages) != 0 {
			status = cluster.StatusError
		}
	}

	w := cluster.Workload{
		Namespace: objectMeta.Namespace,
		Name:      objectMeta.Name,
		Status:    status,
		Rollout:   rollout,
	}
	for _, c := range deployment.Spec.Template.Spec.Containers {
		w.Images = append(w.Images, c.Image)
	}
	if deployment.Spec.Selector != nil {
		selector, err := meta_v1.LabelSelectorAsSelector(deployment.Spec.Selector)
		if err != nil {
			return w, errors.Wrapf(err, "reading selector of deployment %s", objectMeta.Name)
		}
		w.Selector = selector.String()
	}
	return w, nil
}

// WaitForRollout polls the deployment until it is ready, it reports
// it cannot make progress, or timeout passes.
func (c *Cluster) WaitForRollout(ctx context.Context, namespace, name string, timeout time.Duration) error {
	start := time.Now()
	var last cluster.Workload
	err := wait.PollImmediate(PollInterval, timeout, func() (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		w, err := c.Workload(ctx, namespace, name)
		if fluxerr.IsMissing(err) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		last = w
		switch w.Status {
		case cluster.StatusReady:
			return true, nil
		case cluster.StatusError:
			return false, errors.Errorf("rollout of deployment %s/%s is stuck: %s", namespace, name, strings.Join(w.Rollout.Messages, "; "))
		}
		return false, nil
	})
	observeRollout(err == nil, time.Since(start))
	if err == wait.ErrWaitTimeout {
		r := last.Rollout
		return RolloutTimeoutError("deployment/"+name, errors.Wrapf(ErrRolloutTimeout,
			"deployment %s/%s after %s: %d/%d updated, %d/%d available, %d outdated",
			namespace, name, timeout, r.Updated, r.Desired, r.Available, r.Desired, r.Outdated))
	}
	if err == nil {
		c.logger.Log("deployment", namespace+"/"+name, "rollout", "complete", "took", time.Since(start).String())
	}
	return err
}
