package http

import (
	"github.com/gorilla/mux"
)

// Route names, also used to label request metrics.
const (
	Metrics = "Metrics"
	Healthz = "Healthz"
	Health  = "Health"
	State   = "State"
)

func NewRouter() *mux.Router {
	r := mux.NewRouter()
	r.NewRoute().Name(Metrics).Methods("GET").Path("/metrics")
	r.NewRoute().Name(Healthz).Methods("GET").Path("/healthz")
	r.NewRoute().Name(Health).Methods("GET").Path("/api/v1/health")
	r.NewRoute().Name(State).Methods("GET").Path("/api/v1/state")
	return r
}
