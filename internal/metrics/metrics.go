package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesRouted  = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "obsync_messages_routed_total", Help: "Stream messages routed to an instrument"}, []string{"product"})
	MessagesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "obsync_messages_dropped_total", Help: "Stream messages dropped by reason"}, []string{"reason"})
	MessagesQueued  = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "obsync_messages_queued_total", Help: "Messages queued while the snapshot was in flight"}, []string{"product"})
	MessagesApplied = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "obsync_messages_applied_total", Help: "Messages applied to a book, live or replayed"}, []string{"product", "mode"})
	SoftErrors      = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "obsync_soft_errors_total", Help: "Tolerated protocol races such as matches for closed orders"}, []string{"product"})
	SyncEvents      = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "obsync_lifecycle_events_total", Help: "sync, synced and error events"}, []string{"product", "event"})
	Resyncs         = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "obsync_resyncs_total", Help: "Automatic resynchronisations"}, []string{"product"})
	PendingMessages = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "obsync_pending_messages", Help: "Messages waiting for the snapshot"}, []string{"product"})
	SyncState       = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "obsync_sync_state", Help: "0 pending, 1 synced, -1 failed"}, []string{"product"})
	SnapshotLatency = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "obsync_snapshot_fetch_seconds", Help: "Snapshot fetch latency", Buckets: prometheus.ExponentialBuckets(0.05, 2, 10)})
	WSReconnects    = prometheus.NewCounter(prometheus.CounterOpts{Name: "obsync_ws_reconnects_total", Help: "Upstream websocket reconnects"})
	DownstreamUsers = prometheus.NewGauge(prometheus.GaugeOpts{Name: "obsync_downstream_connections", Help: "Connected downstream websocket clients"})
)

// Init registers every collector on a fresh registry.
func Init() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	toRegister := []prometheus.Collector{
		MessagesRouted, MessagesDropped, MessagesQueued, MessagesApplied, SoftErrors,
		SyncEvents, Resyncs, PendingMessages, SyncState, SnapshotLatency, WSReconnects, DownstreamUsers,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}

	for _, c := range toRegister {
		if err := reg.Register(c); err != nil {
			slog.Warn("Metric registration failed", "Error", err)
		}
	}

	slog.Info("Prometheus metrics initialized")

	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Forget drops the per-product series of an unsubscribed instrument.
func Forget(product string) {
	PendingMessages.DeleteLabelValues(product)
	SyncState.DeleteLabelValues(product)
}
