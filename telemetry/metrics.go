// Package telemetry counts the work done by conversion jobs and writes it in
// the Prometheus text format for a node exporter's textfile collector.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ard"

// Metrics holds the counters of one job. A nil *Metrics discards updates.
type Metrics struct {
	registry *prometheus.Registry

	ChunksWritten prometheus.Counter
	BytesWritten  prometheus.Counter
	RowsExported  prometheus.Counter
	CellsMasked   prometheus.Counter
	Rechunks      *prometheus.CounterVec
}

// New creates counters registered on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ChunksWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_written_total",
			Help:      "Array store chunks written.",
		}),
		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_written_total",
			Help:      "Encoded chunk bytes written to array stores.",
		}),
		RowsExported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_exported_total",
			Help:      "Rows written to tabular outputs.",
		}),
		CellsMasked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cells_masked_total",
			Help:      "Cells set to missing by region masks.",
		}),
		Rechunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rechunks_total",
			Help:      "Dimensions rechunked to a byte target before export.",
		}, []string{"dim"}),
	}
	m.registry.MustRegister(m.ChunksWritten, m.BytesWritten, m.RowsExported, m.CellsMasked, m.Rechunks)
	return m
}

// Registry exposes the private registry, eg. for a pusher
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) AddChunks(chunks int, bytes int64) {
	if m == nil {
		return
	}
	m.ChunksWritten.Add(float64(chunks))
	m.BytesWritten.Add(float64(bytes))
}

func (m *Metrics) AddRows(n int) {
	if m == nil {
		return
	}
	m.RowsExported.Add(float64(n))
}

func (m *Metrics) AddMasked(n int) {
	if m == nil {
		return
	}
	m.CellsMasked.Add(float64(n))
}

func (m *Metrics) Rechunked(dim string) {
	if m == nil {
		return
	}
	m.Rechunks.WithLabelValues(dim).Inc()
}

// WriteTextfile atomically writes every metric to path
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
