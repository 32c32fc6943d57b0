package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/weaveworks/common/middleware"

	"github.com/fluxcd/imagepromote/pkg/health"
	promotemetrics "github.com/fluxcd/imagepromote/pkg/metrics"
)

var requestDuration = stdprometheus.NewHistogramVec(stdprometheus.HistogramOpts{
	Namespace: promotemetrics.Namespace,
	Subsystem: "monitor",
	Name:      "request_duration_seconds",
	Help:      "Time (in seconds) spent serving HTTP requests.",
	Buckets:   stdprometheus.DefBuckets,
}, []string{promotemetrics.LabelMethod, promotemetrics.LabelRoute, "status_code", "ws"})

func init() {
	stdprometheus.MustRegister(requestDuration)
}

// Status is what the monitor exposes over HTTP. *health.Monitor
// implements it.
type Status interface {
	Last() (health.Snapshot, bool)
	State() health.State
}

// NewHandler attaches handlers to the routes from NewRouter.
func NewHandler(s Status, r *mux.Router) http.Handler {
	handle := statusServer{s}

	r.Get(Metrics).Handler(promhttp.Handler())
	r.Get(Healthz).HandlerFunc(handle.Healthz)
	r.Get(Health).HandlerFunc(handle.Health)
	r.Get(State).HandlerFunc(handle.State)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusNotFound, MakeNotFound(r.URL.Path))
	})

	return middleware.Instrument{
		RouteMatcher: r,
		Duration:     requestDuration,
	}.Wrap(r)
}

type statusServer struct {
	status Status
}

// Healthz says the monitor itself is up, whatever the state of the
// release.
func (s statusServer) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// Health serves the latest snapshot. A critical release is served
// with 503, so the endpoint can be used by load balancer checks.
func (s statusServer) Health(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := s.status.Last()
	if !ok {
		ErrorResponse(w, r, ErrNoSnapshot)
		return
	}
	code := http.StatusOK
	if snapshot.Classification == health.Critical {
		code = http.StatusServiceUnavailable
	}
	Respond(w, r, code, snapshot)
}

type stateResponse struct {
	Consecutive int       `json:"consecutiveCritical"`
	LastAlert   time.Time `json:"lastAlert"`
	Threshold   int       `json:"alertThreshold"`
	Cooldown    string    `json:"alertCooldown"`
}

func (s statusServer) State(w http.ResponseWriter, r *http.Request) {
	state := s.status.State()
	Respond(w, r, http.StatusOK, stateResponse{
		Consecutive: state.Consecutive,
		LastAlert:   state.LastAlert,
		Threshold:   state.Threshold,
		Cooldown:    state.Cooldown.String(),
	})
}

// ListenAndServe serves handler on addr until stop is closed, then
// shuts the server down gracefully.
func ListenAndServe(addr string, handler http.Handler, logger log.Logger, stop <-chan struct{}) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: time.Minute,
		IdleTimeout:  15 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Log("listening", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-stop:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log("shutdown", "failed", "err", err)
		return err
	}
	logger.Log("shutdown", "complete")
	return nil
}
