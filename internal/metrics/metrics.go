package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "roomsync"

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests received",
	}, []string{"method", "route", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	httpInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "http_in_flight_requests",
		Help:      "Current number of in-flight HTTP requests",
	})

	activeRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "channel_active_rooms",
		Help:      "Rooms with at least one joined channel endpoint",
	})

	channelMembers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "channel_members",
		Help:      "Channel endpoints currently joined across all rooms",
	})

	channelMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "channel_messages_total",
		Help:      "Channel messages by origin (local broadcast or relayed from another instance)",
	}, []string{"origin"})

	deliveryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "channel_delivery_failures_total",
		Help:      "Per-recipient channel deliveries that failed",
	})

	documentPatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "document_patches_total",
		Help:      "Merge-patches applied to room documents",
	}, []string{"result"})

	feedSubscribers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "feed_subscribers",
		Help:      "Open change-feed subscriptions",
	}, []string{"topic"})

	lifecycleTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lifecycle_transitions_total",
		Help:      "Question timeline transitions by target status",
	}, []string{"status"})

	softInconsistencies = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lifecycle_soft_inconsistencies_total",
		Help:      "Lifecycle operations whose secondary timeline write found no eligible entry or failed",
	}, []string{"operation"})
)

func RoomOpened() { activeRooms.Inc() }
func RoomClosed() { activeRooms.Dec() }
func MemberJoined() { channelMembers.Inc() }
func MemberLeft() { channelMembers.Dec() }
func MessageBroadcast() { channelMessages.WithLabelValues("local").Inc() }
func MessageRelayed() { channelMessages.WithLabelValues("relay").Inc() }
func DeliveryFailed() { deliveryFailures.Inc() }
func PatchApplied(ok bool) { documentPatches.WithLabelValues(result(ok)).Inc() }
func FeedOpened(topic string) { feedSubscribers.WithLabelValues(topic).Inc() }
func FeedClosed(topic string) { feedSubscribers.WithLabelValues(topic).Dec() }
func Transitioned(status string) { lifecycleTransitions.WithLabelValues(status).Inc() }
func SoftInconsistency(op string) { softInconsistencies.WithLabelValues(op).Inc() }

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack is required for WebSocket upgrades behind the middleware.
func (r *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := r.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("roomsync metrics: underlying ResponseWriter does not support hijacking")
}

// Middleware records request metrics. The route label is the chi route
// pattern so room ids do not explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		labels := prometheus.Labels{
			"method": r.Method,
			"route":  route,
			"status": strconv.Itoa(rec.status),
		}
		httpRequests.With(labels).Inc()
		httpLatency.With(labels).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the default Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
