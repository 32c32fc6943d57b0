package kubernetes

import (
	"context"

	"github.com/pkg/errors"
	apiv1 "k8s.io/api/core/v1"
	meta_v1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"

	"github.com/fluxcd/imagepromote/pkg/cluster"
)

var ErrNoMetrics = errors.New("no pod metrics available")

// PodUsage averages the CPU and memory use of the pods matching
// selector, as reported by the metrics API.
func (c *Cluster) PodUsage(ctx context.Context, namespace, selector string) (cluster.Usage, error) {
	if err := ctx.Err(); err != nil {
		return cluster.Usage{}, err
	}
	if c.metrics == nil {
		return cluster.Usage{}, ErrNoMetrics
	}
	list, err := c.metrics.MetricsV1beta1().PodMetricses(namespace).List(meta_v1.ListOptions{LabelSelector: selector})
	if err != nil {
		return cluster.Usage{}, errors.Wrapf(err, "reading pod metrics in %s", namespace)
	}
	return averageUsage(list.Items)
}

func averageUsage(pods []metricsv1beta1.PodMetrics) (cluster.Usage, error) {
	if len(pods) == 0 {
		return cluster.Usage{}, ErrNoMetrics
	}
	var cpu, mem int64
	for _, pod := range pods {
		for _, container := range pod.Containers {
			if q, ok := container.Usage[apiv1.ResourceCPU]; ok {
				cpu += q.MilliValue()
			}
			if q, ok := container.Usage[apiv1.ResourceMemory]; ok {
				mem += q.Value()
			}
		}
	}
	n := int64(len(pods))
	return cluster.Usage{
		Pods:      len(pods),
		CPUMillis: cpu / n,
		MemoryMiB: mem / n / (1024 * 1024),
	}, nil
}
