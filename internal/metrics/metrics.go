// Package metrics records the outcome of a run in Prometheus text format,
// ready for the node_exporter textfile collector.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yuya-takeyama/cargo-safe-publish/pkg/pipeline"
)

const namespace = "cargo_safe_publish"

// Recorder collects step and run metrics on a private registry.
type Recorder struct {
	reg           *prometheus.Registry
	stepDuration  *prometheus.GaugeVec
	stepFailed    *prometheus.GaugeVec
	runSuccess    *prometheus.GaugeVec
	lastRun       prometheus.Gauge
	files         prometheus.Gauge
	violations    prometheus.Gauge
	discrepancies prometheus.Gauge
}

func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		stepDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Wall time of each pipeline step in the last run",
		}, []string{"step"}),
		stepFailed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "step_failed",
			Help:      "1 for the step that failed the last run",
		}, []string{"step"}),
		runSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_success",
			Help:      "1 if the last run ended successfully, 0 otherwise",
		}, []string{"package", "version", "state"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
		files: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "expected_files",
			Help:      "Files expected in the package",
		}),
		violations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "integrity_violations",
			Help:      "Integrity violations found before publishing",
		}),
		discrepancies: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "post_publish_discrepancies",
			Help:      "Differences between the published and the local files",
		}),
	}
	r.reg.MustRegister(r.stepDuration, r.stepFailed, r.runSuccess, r.lastRun, r.files, r.violations, r.discrepancies)
	return r
}

// Observe is a pipeline.Observer.
func (r *Recorder) Observe(e pipeline.Event) {
	r.stepDuration.WithLabelValues(string(e.Step)).Set(e.Duration.Seconds())
	if e.Err != nil {
		r.stepFailed.WithLabelValues(string(e.Step)).Set(1)
	}
}

// Finish records the run totals.
func (r *Recorder) Finish(out *pipeline.Outcome) {
	success := 0.0
	if out.State.Successful() {
		success = 1
	}
	r.runSuccess.WithLabelValues(out.Package.Name, out.Package.Version, string(out.State)).Set(success)
	r.lastRun.Set(float64(out.Finished.Unix()))
	r.files.Set(float64(out.Expected.Len()))
	r.violations.Set(float64(len(out.Violations)))
	r.discrepancies.Set(float64(len(out.Report.Discrepancies)))
}

// WriteFile atomically writes all metrics to path.
func (r *Recorder) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}
