package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wnotif_notifications_total",
			Help: "Per-recipient notification outcomes by event kind",
		},
		[]string{"outcome", "kind"}, // sent|unsent|lock_denied|duplicate|dropped|error
	)

	BusMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wnotif_bus_messages_total",
			Help: "Event bus messages by direction and broker mode",
		},
		[]string{"direction", "mode"}, // published|received
	)

	LockAcquireTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wnotif_lock_acquire_total",
			Help: "Delivery lock acquisitions by result",
		},
		[]string{"result"}, // acquired|denied|error
	)

	SendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wnotif_send_duration_seconds",
			Help:    "Mail transport call latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"}, // ok|error
	)
)

var once sync.Once

// MustRegister registers the collectors once per process; serve and worker may both call it.
func MustRegister(r prometheus.Registerer) {
	once.Do(func() {
		r.MustRegister(
			NotificationsTotal,
			BusMessagesTotal,
			LockAcquireTotal,
			SendDuration,
		)
	})
}
