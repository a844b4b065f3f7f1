// Package metrics exports prometheus metrics for the history engine.
//
// A nil *Registry is valid and records nothing, so components can take one
// unconditionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/model"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "mdremote"

// Registry holds the engine's collectors on a private prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	actionsRecorded *prometheus.CounterVec
	evictions       prometheus.Counter
	clears          prometheus.Counter
	rebinds         prometheus.Counter
	rebound         prometheus.Counter
	historySize     prometheus.Gauge
	blobCount       prometheus.Gauge
	blobBytes       prometheus.Gauge
	reversals       *prometheus.CounterVec
	reversalFiles   *prometheus.CounterVec
	reversalSeconds *prometheus.HistogramVec
	gcRemoved       prometheus.Counter
	gcBytes         prometheus.Counter
}

// NewRegistry creates a registry whose metric names start with namespace.
func NewRegistry(namespace string) *Registry {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Registry{
		reg: reg,
		actionsRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_actions_recorded_total",
			Help:      "Actions added to the history, by kind.",
		}, []string{"kind"}),
		evictions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_evictions_total",
			Help:      "Actions dropped because the history was full.",
		}),
		clears: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_clears_total",
			Help:      "Times the history was cleared.",
		}),
		rebinds: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_rename_notifications_total",
			Help:      "Rename notifications processed.",
		}),
		rebound: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_actions_rebound_total",
			Help:      "Actions whose file references were rewritten by a rename.",
		}),
		historySize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_size",
			Help:      "Actions currently held.",
		}),
		blobCount: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_blobs",
			Help:      "Artwork blobs currently stored.",
		}),
		blobBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_blob_bytes",
			Help:      "Bytes of artwork currently stored.",
		}),
		reversals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_reversals_total",
			Help:      "Undo and redo operations, by operation and result status.",
		}, []string{"op", "status"}),
		reversalFiles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_reversal_files_total",
			Help:      "Files written by undo and redo, by operation and outcome.",
		}, []string{"op", "outcome"}),
		reversalSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "history_reversal_duration_seconds",
			Help:      "Duration of undo and redo operations.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"op"}),
		gcRemoved: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_gc_blobs_removed_total",
			Help:      "Orphaned blobs removed by garbage collection.",
		}),
		gcBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_gc_bytes_reclaimed_total",
			Help:      "Bytes reclaimed by garbage collection.",
		}),
	}
}

// Gatherer exposes the registry for an HTTP handler or a test.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.reg
}

// RecordAdd counts a recorded action and updates the history size.
func (r *Registry) RecordAdd(kind model.Kind, size int) {
	if r == nil {
		return
	}
	r.actionsRecorded.WithLabelValues(string(kind)).Inc()
	r.historySize.Set(float64(size))
}

// RecordEviction counts one FIFO eviction.
func (r *Registry) RecordEviction() {
	if r == nil {
		return
	}
	r.evictions.Inc()
}

// RecordClear counts a clear and zeroes the history size.
func (r *Registry) RecordClear() {
	if r == nil {
		return
	}
	r.clears.Inc()
	r.historySize.Set(0)
}

// RecordRebind counts a rename notification and the actions it rewrote.
func (r *Registry) RecordRebind(rewritten int) {
	if r == nil {
		return
	}
	r.rebinds.Inc()
	r.rebound.Add(float64(rewritten))
}

// SetBlobStats publishes the blob cache occupancy.
func (r *Registry) SetBlobStats(count int, bytes int64) {
	if r == nil {
		return
	}
	r.blobCount.Set(float64(count))
	r.blobBytes.Set(float64(bytes))
}

// RecordReversal records one undo or redo.
func (r *Registry) RecordReversal(op string, res *model.Result, d time.Duration) {
	if r == nil || res == nil {
		return
	}
	r.reversals.WithLabelValues(op, string(res.Status)).Inc()
	r.reversalFiles.WithLabelValues(op, "updated").Add(float64(res.FilesUpdated))
	r.reversalFiles.WithLabelValues(op, "failed").Add(float64(len(res.Errors)))
	r.reversalSeconds.WithLabelValues(op).Observe(d.Seconds())
}

// RecordGC records one garbage collection run.
func (r *Registry) RecordGC(removed int, bytesReclaimed int64) {
	if r == nil {
		return
	}
	r.gcRemoved.Add(float64(removed))
	r.gcBytes.Add(float64(bytesReclaimed))
}
