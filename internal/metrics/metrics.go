package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "inboxrelay"

// Tick results
const (
	TickNewMail      = "new_mail"
	TickUnchanged    = "unchanged"
	TickUnauthorized = "unauthorized"
	TickError        = "error"
	TickDiscarded    = "discarded" // monitor stopped while the tick was in flight
)

// Generic outcomes
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

var (
	// Ticks counts poll ticks by result
	Ticks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ticks_total",
		Help:      "Inbox poll ticks by result.",
	}, []string{"result"})

	// Notifications counts notification attempts by result
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Notification send attempts by result.",
	}, []string{"result"})

	// DetailFailures counts messages skipped because their detail could not be fetched
	DetailFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "detail_failures_total",
		Help:      "Messages skipped because fetching their detail failed.",
	})

	// TokenRefreshes counts access token refresh attempts by result
	TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_refreshes_total",
		Help:      "Access token refresh attempts by result.",
	}, []string{"result"})

	// ActiveMonitors is the number of registered monitors
	ActiveMonitors = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_monitors",
		Help:      "Number of users currently monitored.",
	})
)

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
