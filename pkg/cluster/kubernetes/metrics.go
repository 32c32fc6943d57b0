package kubernetes

import (
	"strconv"
	"time"

	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	promotemetrics "github.com/fluxcd/imagepromote/pkg/metrics"
)

var rolloutDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
	Namespace: promotemetrics.Namespace,
	Subsystem: "cluster",
	Name:      "rollout_wait_duration_seconds",
	Help:      "Time spent waiting for deployments to roll out, in seconds.",
	Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
}, []string{promotemetrics.LabelSuccess})

func observeRollout(success bool, took time.Duration) {
	rolloutDuration.With(promotemetrics.LabelSuccess, strconv.FormatBool(success)).Observe(took.Seconds())
}
