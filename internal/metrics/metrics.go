package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hostelpay"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status code.",
		},
		[]string{"endpoint", "code"},
	)

	paymentsInitiated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_initiated_total",
			Help:      "Payment attempts started, by method and payment type.",
		},
		[]string{"method", "payment_type"},
	)

	paymentsVerified = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_verified_total",
			Help:      "Verification outcomes by method and result.",
		},
		[]string{"method", "result"},
	)

	statusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_status_transitions_total",
			Help:      "Booking payment status changes.",
		},
		[]string{"from", "to"},
	)

	gatewayLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "Latency of payment gateway calls.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "outcome"},
	)

	botCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admin_bot_commands_total",
			Help:      "Telegram admin bot commands by command and outcome.",
		},
		[]string{"command", "outcome"},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_queue_depth",
			Help:      "Tasks buffered in the worker queue.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			paymentsInitiated,
			paymentsVerified,
			statusTransitions,
			gatewayLatency,
			botCommands,
			queueDepth,
		)
	})
}

func IncHTTP(endpoint, code string) {
	httpRequests.WithLabelValues(endpoint, code).Inc()
}

func IncInitiated(method, paymentType string) {
	paymentsInitiated.WithLabelValues(method, paymentType).Inc()
}

func IncVerified(method, result string) {
	paymentsVerified.WithLabelValues(method, result).Inc()
}

func IncTransition(from, to string) {
	statusTransitions.WithLabelValues(from, to).Inc()
}

func ObserveGateway(operation, outcome string, seconds float64) {
	gatewayLatency.WithLabelValues(operation, outcome).Observe(seconds)
}

func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

func IncBotCommand(command, outcome string) {
	botCommands.WithLabelValues(command, outcome).Inc()
}
