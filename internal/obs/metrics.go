// Package obs exposes the process's Prometheus metrics.
package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SyncRuns counts finished sync attempts by terminal status.
	SyncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oversight_sync_runs_total",
			Help: "Finished sync runs by terminal status.",
		},
		[]string{"provider", "status"},
	)

	// GrantsFetched counts raw grants returned by providers.
	GrantsFetched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oversight_grants_fetched_total",
			Help: "OAuth grants fetched from identity providers.",
		},
		[]string{"provider"},
	)

	// AppsDiscovered counts newly inserted application rows.
	AppsDiscovered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oversight_apps_discovered_total",
		Help: "Applications discovered for the first time.",
	})

	// NotificationsSent counts dispatched notifications by kind. Duplicate
	// claims are not counted; only actual sends.
	NotificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oversight_notifications_sent_total",
			Help: "Notification emails sent, by kind.",
		},
		[]string{"kind"},
	)
)

// Init registers the metrics with the default registry. Call once at startup.
func Init() {
	prometheus.MustRegister(SyncRuns, GrantsFetched, AppsDiscovered, NotificationsSent)
}

// Handler serves the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
