// Package metrics wires the reconciler's counters and gauges through
// armon/go-metrics into a Prometheus registry, the way
// agent/consul/leader_metrics.go feeds certificate-expiry gauges through
// the same library (spec.md's ambient observability surface; not a
// subject of the core spec itself, but carried regardless per the
// ambient-stack rule).
package metrics

import (
	"net/http"
	"time"

	gometrics "github.com/armon/go-metrics"
	gometricsprom "github.com/armon/go-metrics/prometheus"
	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"
	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	keySweepTotal       = []string{"reconciler", "sweep", "total"}
	keySweepErrors      = []string{"reconciler", "sweep", "errors"}
	keySweepDuration    = []string{"reconciler", "sweep", "duration"}
	keyMaterializeTotal = []string{"reconciler", "materialize", "total"}
	keyShardsUpdated    = []string{"reconciler", "shards", "updated"}
)

// CounterDefinitions and SummaryDefinitions declare every metric up front
// so the Prometheus sink can report a help string even before the
// metric is first emitted, mirroring CertExpirationGauges in the
// teacher's leader_metrics.go.
var CounterDefinitions = []gometricsprom.CounterDefinition{
	{Name: keySweepTotal, Help: "Total number of completed C4 sweeps."},
	{Name: keySweepErrors, Help: "Total number of C4 sweeps that returned an aggregate error."},
	{Name: keyMaterializeTotal, Help: "Total number of completed C3 materialize passes."},
	{Name: keyShardsUpdated, Help: "Total number of shard updateShard calls issued."},
}

var SummaryDefinitions = []gometricsprom.SummaryDefinition{
	{Name: keySweepDuration, Help: "Duration of a single C4 sweep, in milliseconds."},
}

// Sink owns the process-wide metrics.Metrics handle and exposes recording
// helpers used by internal/controlloop (sweep and materialize passes) and
// internal/mapper (shard updates).
type Sink struct {
	logger hclog.Logger
}

// New installs a Prometheus-backed go-metrics sink as the global
// default (mirroring how InitTelemetry wires armon/go-metrics in the
// teacher's agent package) and returns a Sink for recording.
func New(serviceName string, logger hclog.Logger) (*Sink, error) {
	promSink, err := gometricsprom.NewPrometheusSinkFrom(gometricsprom.PrometheusOpts{
		Expiration:         0,
		CounterDefinitions: CounterDefinitions,
		SummaryDefinitions: SummaryDefinitions,
	})
	if err != nil {
		return nil, err
	}

	cfg := gometrics.DefaultConfig(serviceName)
	cfg.EnableHostname = false
	cfg.EnableRuntimeMetrics = false
	if _, err := gometrics.NewGlobal(cfg, promSink); err != nil {
		return nil, err
	}

	return &Sink{logger: logger.Named("metrics")}, nil
}

// RecordSweep emits a sweep counter and duration sample.
func (s *Sink) RecordSweep(d time.Duration, err error) {
	gometrics.IncrCounter(keySweepTotal, 1)
	gometrics.AddSample(keySweepDuration, float32(d.Milliseconds()))
	if err != nil {
		gometrics.IncrCounter(keySweepErrors, 1)
	}
}

// RecordMaterialize emits a materialize-pass counter.
func (s *Sink) RecordMaterialize() {
	gometrics.IncrCounter(keyMaterializeTotal, 1)
}

// RecordShardUpdate emits a shard-update counter.
func (s *Sink) RecordShardUpdate() {
	gometrics.IncrCounter(keyShardsUpdated, 1)
}

// Server exposes /metrics (Prometheus exposition) and /healthz (plain
// liveness) over gorilla/mux, the way the teacher's agent HTTP server
// registers routes on a mux.Router.
func Server(addr string, logger hclog.Logger) *http.Server {
	router := mux.NewRouter()
	router.Handle("/metrics", promclient.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	return &http.Server{
		Addr:    addr,
		Handler: router,
	}
}
