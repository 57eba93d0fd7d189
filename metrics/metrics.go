// Package metrics holds the Prometheus counters of a migration run.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "semmigrate"

// Lookup outcomes.
const (
	LookupHit   = "hit"
	LookupMiss  = "miss"
	LookupError = "error"
)

// Upload outcomes.
const (
	RecordSucceeded = "succeeded"
	RecordSkipped   = "skipped"
	RecordFailed    = "failed"
	RecordCapped    = "capped"
)

// Metrics groups the counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Lookups       *prometheus.CounterVec
	CacheHits     *prometheus.CounterVec
	Fallbacks     *prometheus.CounterVec
	Records       *prometheus.CounterVec
	SyncCreated   *prometheus.CounterVec
	SyncSkipped   *prometheus.CounterVec
	StageWarnings prometheus.Counter
}

// New creates the counters in a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookups_total",
			Help:      "Remote lookups by query template and outcome.",
		}, []string{"template", "outcome"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolution_cache_hits_total",
			Help:      "Resolutions answered from the cache, by query template.",
		}, []string{"template"}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_entities_total",
			Help:      "Fallback entities built, by kind.",
		}, []string{"kind"}),
		Records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Records processed by the upload run, by outcome.",
		}, []string{"outcome"}),
		SyncCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vocabulary_created_total",
			Help:      "Vocabulary entities created, by kind.",
		}, []string{"kind"}),
		SyncSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vocabulary_present_total",
			Help:      "Vocabulary values already present in the store, by kind.",
		}, []string{"kind"}),
		StageWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "staging_warnings_total",
			Help:      "Data-quality warnings raised while staging records.",
		}),
	}
	m.registry.MustRegister(
		m.Lookups,
		m.CacheHits,
		m.Fallbacks,
		m.Records,
		m.SyncCreated,
		m.SyncSkipped,
		m.StageWarnings,
	)
	return m
}

// Registry returns the registry holding the counters.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Lookup counts a remote lookup.
func (m *Metrics) Lookup(template, outcome string) {
	if m == nil {
		return
	}
	m.Lookups.WithLabelValues(template, outcome).Inc()
}

// CacheHit counts a resolution served from the cache.
func (m *Metrics) CacheHit(template string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(template).Inc()
}

// Fallback counts a fallback entity.
func (m *Metrics) Fallback(kind string) {
	if m == nil {
		return
	}
	m.Fallbacks.WithLabelValues(kind).Inc()
}

// Record counts an upload outcome.
func (m *Metrics) Record(outcome string) {
	if m == nil {
		return
	}
	m.Records.WithLabelValues(outcome).Inc()
}

// Synced counts created and already-present vocabulary values.
func (m *Metrics) Synced(kind string, created, present int) {
	if m == nil {
		return
	}
	m.SyncCreated.WithLabelValues(kind).Add(float64(created))
	m.SyncSkipped.WithLabelValues(kind).Add(float64(present))
}

// Warnings counts staging warnings.
func (m *Metrics) Warnings(n int) {
	if m == nil || n == 0 {
		return
	}
	m.StageWarnings.Add(float64(n))
}

// WriteTextfile writes the counters in the text exposition format, for the
// node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
