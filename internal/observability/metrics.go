package observability

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	httpRequestsTotal  *prometheus.CounterVec
	httpLatencySeconds *prometheus.HistogramVec
	httpErrorsTotal    *prometheus.CounterVec

	notificationsDispatchedTotal *prometheus.CounterVec
	notificationsFannedOutTotal  *prometheus.CounterVec
	sseClientsActive             prometheus.Gauge

	commentMutationsTotal *prometheus.CounterVec
	messagesSentTotal     *prometheus.CounterVec

	realtimeConnectionsActive prometheus.Gauge
	realtimeEventsTotal       *prometheus.CounterVec

	userCacheLookupsTotal *prometheus.CounterVec

	mediaUploadsTotal   *prometheus.CounterVec
	mediaRejectedTotal  *prometheus.CounterVec
	mediaLatencySeconds prometheus.Histogram
)

// RegisterMetrics initialises the Prometheus collectors exported by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		notificationsDispatchedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_dispatched_total",
			Help: "Notification dispatch attempts by type and outcome.",
		}, []string{"type", "outcome"})

		notificationsFannedOutTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_fanout_total",
			Help: "Notifications delivered to live subscribers by source.",
		}, []string{"source"})

		sseClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "notification_sse_clients_active",
			Help: "Number of open notification streams.",
		})

		commentMutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "comment_mutations_total",
			Help: "Comment tree mutations by operation and result.",
		}, []string{"operation", "result"})

		messagesSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "messages_sent_total",
			Help: "Messages appended to conversations and groups.",
		}, []string{"aggregate", "type"})

		realtimeConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_connections_active",
			Help: "Number of open realtime websocket connections.",
		})

		realtimeEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_events_total",
			Help: "Realtime room events by event type and source.",
		}, []string{"event", "source"})

		userCacheLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "user_cache_lookups_total",
			Help: "User snapshot cache lookups by result.",
		}, []string{"result"})

		mediaUploadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "media_uploads_total",
			Help: "Stored images by purpose.",
		}, []string{"purpose"})

		mediaRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "media_rejected_total",
			Help: "Rejected image uploads by reason.",
		}, []string{"reason"})

		mediaLatencySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "media_upload_duration_seconds",
			Help:    "Latency of image validation and storage.",
			Buckets: prometheus.DefBuckets,
		})

		prometheus.MustRegister(
			httpRequestsTotal, httpLatencySeconds, httpErrorsTotal,
			notificationsDispatchedTotal, notificationsFannedOutTotal, sseClientsActive,
			commentMutationsTotal, messagesSentTotal,
			realtimeConnectionsActive, realtimeEventsTotal,
			userCacheLookupsTotal,
			mediaUploadsTotal, mediaRejectedTotal, mediaLatencySeconds,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// NotificationsDispatched counts dispatches labelled created, coalesced, skipped or failed.
func NotificationsDispatched() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsDispatchedTotal
}

// NotificationsFannedOut counts notifications pushed to local subscribers.
func NotificationsFannedOut() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsFannedOutTotal
}

// SSEClientsActive tracks open notification streams.
func SSEClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return sseClientsActive
}

// CommentMutations counts comment tree operations.
func CommentMutations() *prometheus.CounterVec {
	RegisterMetrics()
	return commentMutationsTotal
}

// MessagesSent counts appended messages.
func MessagesSent() *prometheus.CounterVec {
	RegisterMetrics()
	return messagesSentTotal
}

// RealtimeConnectionsActive tracks open websocket clients.
func RealtimeConnectionsActive() prometheus.Gauge {
	RegisterMetrics()
	return realtimeConnectionsActive
}

// RealtimeEvents counts room events.
func RealtimeEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return realtimeEventsTotal
}

// UserCacheLookups counts snapshot cache hits and misses.
func UserCacheLookups() *prometheus.CounterVec {
	RegisterMetrics()
	return userCacheLookupsTotal
}

// MediaUploads counts stored images.
func MediaUploads() *prometheus.CounterVec {
	RegisterMetrics()
	return mediaUploadsTotal
}

// MediaRejected counts rejected uploads.
func MediaRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return mediaRejectedTotal
}

// MediaLatency observes upload duration.
func MediaLatency() prometheus.Histogram {
	RegisterMetrics()
	return mediaLatencySeconds
}

// MetricsHandler serves the default Prometheus registry on a fiber route.
func MetricsHandler() fiber.Handler {
	RegisterMetrics()
	return adaptor.HTTPHandler(promhttp.Handler())
}
