package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the chat fabric hub.
//
// Naming convention: namespace_subsystem_name
// - namespace: chatfabric (application-level grouping)
// - subsystem: hub, broadcast, store, rate_limit, circuit_breaker, redis
// - name: specific metric (connections_active, events_total, etc.)
//
// Metric Types:
// - Gauge: Current state (connections, rooms, participants)
// - Counter: Cumulative events (frames processed, messages persisted)
// - Histogram: Latency distributions (store round trips)

var (
	// ActiveConnections tracks the current number of live hub connections.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chatfabric",
		Subsystem: "hub",
		Name:      "connections_active",
		Help:      "Current number of active hub connections",
	})

	// ActiveRooms tracks the current number of rooms with at least one live participant.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chatfabric",
		Subsystem: "hub",
		Name:      "rooms_active",
		Help:      "Current number of rooms with at least one live participant",
	})

	// RoomParticipants tracks the number of live participants in each room.
	RoomParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chatfabric",
		Subsystem: "hub",
		Name:      "participants_count",
		Help:      "Number of live participants in each room",
	}, []string{"room"})

	// FramesDispatched tracks the total number of inbound frames dispatched by the hub.
	FramesDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatfabric",
		Subsystem: "hub",
		Name:      "frames_dispatched_total",
		Help:      "Total inbound frames dispatched",
	}, []string{"frame_type", "status"})

	// FrameProcessingDuration tracks the time spent dispatching a frame.
	FrameProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chatfabric",
		Subsystem: "hub",
		Name:      "frame_processing_seconds",
		Help:      "Time spent dispatching a single frame",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"frame_type"})

	// MessagesPersisted tracks the total number of chat messages persisted by the broadcast pipeline.
	MessagesPersisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatfabric",
		Subsystem: "broadcast",
		Name:      "messages_persisted_total",
		Help:      "Total chat messages persisted",
	}, []string{"status"})

	// BlockedDrops tracks the total number of messages dropped because the sender is blocked.
	BlockedDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chatfabric",
		Subsystem: "broadcast",
		Name:      "blocked_drops_total",
		Help:      "Total messages dropped because the sender's key is blocked",
	})

	// StoreOperationDuration tracks the duration of Store operations.
	StoreOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chatfabric",
		Subsystem: "store",
		Name:      "operation_duration_seconds",
		Help:      "Duration of Store operations",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	// CircuitBreakerState tracks the current state of the circuit breaker.
	// 0: Closed (Healthy), 1: Open (Failure), 2: Half-Open (Recovering)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chatfabric",
		Subsystem: "circuit_breaker",
		Name:      "state",
		Help:      "Current state of the circuit breaker (0: Closed, 1: Open, 2: Half-Open)",
	}, []string{"service"})

	// CircuitBreakerFailures tracks the total number of requests rejected by the circuit breaker.
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatfabric",
		Subsystem: "circuit_breaker",
		Name:      "failures_total",
		Help:      "Total requests rejected by the circuit breaker",
	}, []string{"service"})

	// RateLimitExceeded tracks the total number of requests that exceeded the rate limit.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatfabric",
		Subsystem: "rate_limit",
		Name:      "exceeded_total",
		Help:      "Total number of requests that exceeded the rate limit",
	}, []string{"endpoint", "reason"})

	// RateLimitRequests tracks the total number of requests checked against the rate limiter.
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatfabric",
		Subsystem: "rate_limit",
		Name:      "requests_total",
		Help:      "Total number of requests checked against the rate limiter",
	}, []string{"endpoint"})

	// RedisOperationsTotal tracks the total number of Redis operations.
	RedisOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatfabric",
		Subsystem: "redis",
		Name:      "operations_total",
		Help:      "Total number of Redis operations",
	}, []string{"operation", "status"})

	// RedisOperationDuration tracks the duration of Redis operations.
	RedisOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chatfabric",
		Subsystem: "redis",
		Name:      "operation_duration_seconds",
		Help:      "Duration of Redis operations",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
)

func IncConnection() {
	ActiveConnections.Inc()
}

func DecConnection() {
	ActiveConnections.Dec()
}
