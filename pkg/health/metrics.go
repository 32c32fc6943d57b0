package health

import (
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	promotemetrics "github.com/fluxcd/imagepromote/pkg/metrics"
)

var (
	classificationGauge = prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
		Namespace: promotemetrics.Namespace,
		Subsystem: "health",
		Name:      "classification",
		Help:      "Latest classification: 0 healthy, 1 warning, 2 critical.",
	}, []string{})
	consecutiveGauge = prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
		Namespace: promotemetrics.Namespace,
		Subsystem: "health",
		Name:      "consecutive_critical",
		Help:      "Critical evaluations since the release was last healthy.",
	}, []string{})
	checkGauge = prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
		Namespace: promotemetrics.Namespace,
		Subsystem: "health",
		Name:      "check_passing",
		Help:      "Whether each check passed on the latest evaluation (1) or not (0).",
	}, []string{promotemetrics.LabelCheck})
	alertsTotal = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: promotemetrics.Namespace,
		Subsystem: "health",
		Name:      "alerts_total",
		Help:      "Alerts raised, by whether they were delivered.",
	}, []string{promotemetrics.LabelSuccess})
	evaluationDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: promotemetrics.Namespace,
		Subsystem: "health",
		Name:      "evaluation_duration_seconds",
		Help:      "Duration of running all checks, in seconds.",
		Buckets:   stdprometheus.DefBuckets,
	}, []string{})
)

func observeSnapshot(s Snapshot) {
	classificationGauge.Set(s.Classification.Level())
	for _, r := range s.Results {
		v := 0.0
		if r.Passed() {
			v = 1
		}
		checkGauge.With(promotemetrics.LabelCheck, r.Name).Set(v)
	}
}
