package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Reconciliation
	ReconcileTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sbc_reconcile_total",
			Help: "Incoming messages by reconciliation outcome",
		},
		[]string{"outcome"}, // appended, replaced, duplicate, similar, stale
	)

	TranscriptMessages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sbc_transcript_messages",
			Help: "Entries in the open conversation transcript",
		},
	)

	// Sends
	SendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sbc_sends_total",
			Help: "Send attempts by result",
		},
		[]string{"result"}, // confirmed, failed
	)

	SendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sbc_send_duration_seconds",
			Help:    "Time from optimistic insert to confirm response",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// Live feed
	FeedReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sbc_feed_reconnects_total",
			Help: "Live feed reconnect attempts",
		},
	)

	FeedFrames = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sbc_feed_frames_total",
			Help: "Live feed messages by decode result",
		},
		[]string{"result"}, // ok, malformed
	)

	// Control plane
	RPCTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sbc_rpc_total",
			Help: "ChatService calls by method and status code",
		},
		[]string{"method", "code"},
	)

	// Event bus
	BusDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sbc_bus_dropped_total",
			Help: "Bus events dropped because a subscriber was full",
		},
		[]string{"namespace"},
	)
)
