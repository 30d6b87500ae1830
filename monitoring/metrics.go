package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	waitingSessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_waiting_sessions",
			Help: "Current number of waiting sessions per event",
		},
		[]string{"event_id"},
	)

	queueOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_operations_total",
			Help: "Total queue operations",
		},
		[]string{"operation", "event_id", "status"},
	)

	trustScores = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trust_score_distribution",
			Help:    "Trust scores observed after each update",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)

	realtimePushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_pushes_total",
			Help: "Realtime pushes by event name",
		},
		[]string{"event"},
	)

	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "background_goroutines",
			Help: "Current number of background goroutines",
		},
	)
)

// Monitor is the metrics facade handed to the queue services.
type Monitor struct{}

func NewMonitor() *Monitor {
	return &Monitor{}
}

func (m *Monitor) TrackQueueOperation(operation, eventID, status string) {
	queueOperations.WithLabelValues(operation, eventID, status).Inc()
}

func (m *Monitor) SetWaitingSessions(eventID string, count int) {
	waitingSessions.WithLabelValues(eventID).Set(float64(count))
}

func (m *Monitor) ObserveTrustScore(score int) {
	trustScores.Observe(float64(score))
}

func (m *Monitor) TrackPush(event string) {
	realtimePushes.WithLabelValues(event).Inc()
}

func (m *Monitor) SetGoroutines(count int64) {
	goroutineCount.Set(float64(count))
}
