package deploy

import (
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	promotemetrics "github.com/fluxcd/imagepromote/pkg/metrics"
)

var (
	pipelineDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: promotemetrics.Namespace,
		Subsystem: "deploy",
		Name:      "duration_seconds",
		Help:      "Duration of promotions, in seconds.",
		Buckets:   []float64{1, 10, 30, 60, 120, 300, 600, 1200},
	}, []string{promotemetrics.LabelOutcome})
	stageFailures = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: promotemetrics.Namespace,
		Subsystem: "deploy",
		Name:      "stage_failures_total",
		Help:      "Promotions that failed, by the stage they failed in.",
	}, []string{promotemetrics.LabelStage})
	pullAttemptsTotal = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: promotemetrics.Namespace,
		Subsystem: "deploy",
		Name:      "pull_attempts_total",
		Help:      "Attempts at pulling the source image.",
	}, []string{promotemetrics.LabelSuccess})
)
