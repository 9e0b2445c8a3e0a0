// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metrics wraps a prometheus.Registerer with the counters the
// driver updates as it walks the state space: dropped
// messages, bandwidth usage, finalized blocks, and generated
// certificates.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics provides the Alpenglow exploration metrics. A nil *Metrics is
// valid and every method becomes a no-op, so callers that don't want a
// registry (most tests) don't need to construct one.
type Metrics struct {
	Registry prometheus.Registerer

	DroppedMessages   prometheus.Counter
	BandwidthBytes    prometheus.Counter
	FinalizedBlocks   prometheus.Counter
	CertificatesTotal *prometheus.CounterVec
}

// New creates a Metrics instance registered against reg. Pass a nil reg
// to get an unregistered, purely in-process Metrics (useful for tests
// that just want the counters to increment without a live registry).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Registry: reg,
		DroppedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alpenglow_network_dropped_messages_total",
			Help: "Messages dropped by adversarial network actions.",
		}),
		BandwidthBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alpenglow_rotor_bandwidth_bytes_total",
			Help: "Cumulative bytes charged to validators for shred relay and repair.",
		}),
		FinalizedBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alpenglow_votor_finalized_blocks_total",
			Help: "Blocks finalized across all slots.",
		}),
		CertificatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alpenglow_votor_certificates_total",
			Help: "Certificates generated, labeled by type.",
		}, []string{"type"}),
	}
	if reg != nil {
		m.Register(m.DroppedMessages)
		m.Register(m.BandwidthBytes)
		m.Register(m.FinalizedBlocks)
		m.Register(m.CertificatesTotal)
	}
	return m
}

// Register registers a prometheus collector against m's registry. A nil
// receiver or nil Registry makes this a no-op.
func (m *Metrics) Register(collector prometheus.Collector) error {
	if m == nil || m.Registry == nil {
		return nil
	}
	return m.Registry.Register(collector)
}

// ObserveDrop records a dropped network message.
func (m *Metrics) ObserveDrop() {
	if m != nil && m.DroppedMessages != nil {
		m.DroppedMessages.Inc()
	}
}

// ObserveBandwidth records n bytes charged to some validator.
func (m *Metrics) ObserveBandwidth(n uint64) {
	if m != nil && m.BandwidthBytes != nil {
		m.BandwidthBytes.Add(float64(n))
	}
}

// ObserveFinalized records a newly finalized block.
func (m *Metrics) ObserveFinalized() {
	if m != nil && m.FinalizedBlocks != nil {
		m.FinalizedBlocks.Inc()
	}
}

// ObserveCertificate records a certificate of the given type.
func (m *Metrics) ObserveCertificate(kind string) {
	if m != nil && m.CertificatesTotal != nil {
		m.CertificatesTotal.WithLabelValues(kind).Inc()
	}
}
