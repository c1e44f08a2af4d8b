package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	transmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tdmalink",
			Subsystem: "link",
			Name:      "transmissions_total",
			Help:      "Transmissions sent or received, by direction and type.",
		},
		[]string{"direction", "type"},
	)
	frameDrops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tdmalink",
			Subsystem: "link",
			Name:      "frames_dropped_total",
			Help:      "Frames dropped before reaching the application or the channel.",
		},
		[]string{"reason"},
	)
	linkErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tdmalink",
			Subsystem: "link",
			Name:      "errors_total",
			Help:      "Transient link faults reported by the driver.",
		},
		[]string{"driver"},
	)
	slotRotations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tdmalink",
			Subsystem: "mac",
			Name:      "slot_rotations_total",
			Help:      "Slot changes observed by the scheduler.",
		},
	)
	activeSlot = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tdmalink",
			Subsystem: "mac",
			Name:      "active_slot",
			Help:      "Index of the active slot; owner label is the slot's participant id.",
		},
		[]string{"owner"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tdmalink",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total status HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tdmalink",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Status HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(transmissions, frameDrops, linkErrors, slotRotations, activeSlot, httpRequests, httpDuration)
	})
}

// RecordTransmission counts one tx or rx event.
func RecordTransmission(direction, typ string) {
	RegisterMetrics()
	transmissions.WithLabelValues(direction, typ).Inc()
}

func RecordFrameDrop(reason string) {
	RegisterMetrics()
	frameDrops.WithLabelValues(reason).Inc()
}

func RecordLinkError(driver string) {
	RegisterMetrics()
	linkErrors.WithLabelValues(driver).Inc()
}

func RecordSlot(index, owner int) {
	RegisterMetrics()
	slotRotations.Inc()
	activeSlot.Reset()
	activeSlot.WithLabelValues(strconv.Itoa(owner)).Set(float64(index))
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}
