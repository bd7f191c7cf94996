// Package metrics holds the Prometheus instruments of the transpose pipeline.
//
// A batch run has no scrape endpoint, so the registry is exported once per
// run in the node_exporter textfile format (see WriteTextfile).
//
// All methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bigcsv"

// Phase label values.
const (
	PhaseCounting     = "counting"
	PhaseChunking     = "chunking"
	PhaseReassembling = "reassembling"
	PhaseCleanup      = "cleanup"
)

// Metrics groups the pipeline instruments and the registry they live in.
type Metrics struct {
	Registry *prometheus.Registry

	// RunsTotal counts finished runs. Labels: status (done, failed)
	RunsTotal *prometheus.CounterVec

	// RowsTotal counts source rows read by the chunk reader.
	RowsTotal prometheus.Counter

	// ChunksTotal counts chunk artifacts written.
	ChunksTotal prometheus.Counter

	// ChunkSeconds measures transpose plus write time per chunk.
	ChunkSeconds prometheus.Histogram

	// PhaseSeconds measures wall time per pipeline phase. Labels: phase
	PhaseSeconds *prometheus.HistogramVec

	// UploadsTotal counts object uploads. Labels: status (success, error)
	UploadsTotal *prometheus.CounterVec

	// UploadBytes counts bytes handed to the object store.
	UploadBytes prometheus.Counter
}

// New registers all instruments on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Transpose runs by final status",
		}, []string{"status"}),
		RowsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_read_total",
			Help:      "Source rows read",
		}),
		ChunksTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_written_total",
			Help:      "Chunk transposes persisted",
		}),
		ChunkSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_duration_seconds",
			Help:      "Time to transpose and persist one chunk",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		PhaseSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Wall time per pipeline phase",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"phase"}),
		UploadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "objects_total",
			Help:      "Object uploads by status",
		}, []string{"status"}),
		UploadBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "bytes_total",
			Help:      "Bytes uploaded to the object store",
		}),
	}
}

// RecordRun counts a finished run.
func (m *Metrics) RecordRun(ok bool) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status(ok, "done", "failed")).Inc()
}

// RecordChunk counts one persisted chunk of rows source rows.
func (m *Metrics) RecordChunk(rows int, d time.Duration) {
	if m == nil {
		return
	}
	m.RowsTotal.Add(float64(rows))
	m.ChunksTotal.Inc()
	m.ChunkSeconds.Observe(d.Seconds())
}

// ObservePhase records the duration of a pipeline phase.
func (m *Metrics) ObservePhase(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.PhaseSeconds.WithLabelValues(phase).Observe(d.Seconds())
}

// RecordUpload counts one upload attempt of size bytes.
func (m *Metrics) RecordUpload(size int64, err error) {
	if m == nil {
		return
	}
	m.UploadsTotal.WithLabelValues(status(err == nil, "success", "error")).Inc()
	if err == nil {
		m.UploadBytes.Add(float64(size))
	}
}

// WriteTextfile writes the registry to path in the text exposition format.
// The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}

func status(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}
