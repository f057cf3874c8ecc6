package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Stages reported by campusfeed_last_run_events
const (
	StageFetched   = "fetched"
	StageFiltered  = "filtered"
	StageDuplicate = "duplicate"
	StageAppended  = "appended"
)

// Snapshot is what a finished run reports
type Snapshot struct {
	Finished    time.Time
	Duration    time.Duration
	Outcome     string
	Outcomes    []string // every possible outcome, so stale ones read 0
	Fetched     int
	Filtered    int
	Duplicates  int
	Appended    int
	DatasetRows int
}

// Recorder holds last-run gauges in a private registry
type Recorder struct {
	reg         *prometheus.Registry
	timestamp   prometheus.Gauge
	duration    prometheus.Gauge
	events      *prometheus.GaugeVec
	outcome     *prometheus.GaugeVec
	datasetRows prometheus.Gauge
}

func NewRecorder() *Recorder {
	r := &Recorder{reg: prometheus.NewRegistry()}
	r.timestamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "campusfeed",
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix timestamp of the last finished run",
	})
	r.duration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "campusfeed",
		Name:      "last_run_duration_seconds",
		Help:      "Wall time of the last run",
	})
	r.events = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "campusfeed",
		Name:      "last_run_events",
		Help:      "Events seen by the last run per pipeline stage",
	}, []string{"stage"})
	r.outcome = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "campusfeed",
		Name:      "last_run_outcome",
		Help:      "1 for the outcome of the last run, 0 otherwise",
	}, []string{"outcome"})
	r.datasetRows = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "campusfeed",
		Name:      "dataset_rows",
		Help:      "Rows in the dataset after the last run",
	})

	r.reg.MustRegister(r.timestamp, r.duration, r.events, r.outcome, r.datasetRows)
	return r
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.reg
}

// Observe sets every gauge from s
func (r *Recorder) Observe(s Snapshot) {
	r.timestamp.Set(float64(s.Finished.Unix()))
	r.duration.Set(s.Duration.Seconds())

	r.events.WithLabelValues(StageFetched).Set(float64(s.Fetched))
	r.events.WithLabelValues(StageFiltered).Set(float64(s.Filtered))
	r.events.WithLabelValues(StageDuplicate).Set(float64(s.Duplicates))
	r.events.WithLabelValues(StageAppended).Set(float64(s.Appended))

	for _, o := range s.Outcomes {
		r.outcome.WithLabelValues(o).Set(0)
	}
	r.outcome.WithLabelValues(s.Outcome).Set(1)

	r.datasetRows.Set(float64(s.DatasetRows))
}

// WriteTextfile writes the gauges in the text exposition format for the
// node-exporter textfile collector
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("failed to write metrics textfile at '%s': %w", path, err)
	}
	return nil
}
