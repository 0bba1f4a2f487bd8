// Package metrics exposes Prometheus instrumentation for device exchanges,
// key operations, the secret cache and device prompts.
package metrics

import (
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

const (
	// Namespace prefixes every warden series.
	Namespace = "warden"

	LabelINS       = "ins"
	LabelStatus    = "status"
	LabelType      = "type"
	LabelOperation = "operation"
	LabelEvent     = "event"
	LabelOutcome   = "outcome"

	StatusOK = "ok"

	OpSign           = "sign"
	OpSignReduced    = "sign_reduced"
	OpDeriveAddress  = "derive_address"
	OpChangePassword = "change_password"
	OpLoad           = "load"
	OpCreate         = "create"

	CacheHit     = "hit"
	CacheMiss    = "miss"
	CacheStore   = "store"
	CacheEvict   = "evict"
	CacheCleared = "cleared"
)

//nolint:gochecknoglobals // Prometheus collectors are process-wide
var (
	// DeviceExchanges counts APDU exchanges by instruction and status word.
	DeviceExchanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "device_exchanges_total",
			Help:      "APDU exchanges by instruction and status word",
		},
		[]string{LabelINS, LabelStatus},
	)

	// DeviceExchangeDuration includes the time the user spends confirming on
	// the device, hence the long tail buckets.
	DeviceExchangeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "device_exchange_duration_seconds",
			Help:      "Duration of APDU exchanges in seconds",
			Buckets:   []float64{.005, .01, .05, .1, .5, 1, 5, 15, 60, 300},
		},
		[]string{LabelINS},
	)

	// KeyOperations counts wallet key operations by key type and outcome.
	KeyOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "key_operations_total",
			Help:      "Wallet key operations by key type, operation and status",
		},
		[]string{LabelType, LabelOperation, LabelStatus},
	)

	// CacheEvents counts secret cache activity.
	CacheEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cache_events_total",
			Help:      "Secret cache hits, misses, stores and evictions",
		},
		[]string{LabelEvent},
	)

	// PromptOutcomes counts how device prompts resolved.
	PromptOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "prompt_outcomes_total",
			Help:      "Device prompt resolutions by outcome",
		},
		[]string{LabelOutcome},
	)

	// QueueDepth is the number of device jobs waiting or running.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "queue_depth",
			Help:      "Device jobs queued or in progress",
		},
	)

	enabled atomic.Bool
)

func init() {
	enabled.Store(true)
}

// Enable turns recording on.
func Enable() { enabled.Store(true) }

// Disable turns recording off. Collectors stay registered.
func Disable() { enabled.Store(false) }

// IsEnabled reports whether recording is on.
func IsEnabled() bool { return enabled.Load() }

// RecordExchange records one APDU round trip. sw is zero when the exchange
// failed below the APDU layer.
func RecordExchange(ins byte, sw uint16, d time.Duration) {
	if !enabled.Load() {
		return
	}
	insLabel := fmt.Sprintf("0x%02x", ins)
	status := "transport_error"
	if sw != 0 {
		status = fmt.Sprintf("0x%04x", sw)
	}
	DeviceExchanges.WithLabelValues(insLabel, status).Inc()
	DeviceExchangeDuration.WithLabelValues(insLabel).Observe(d.Seconds())
}

// RecordKeyOperation records a key operation. A nil err is "ok"; otherwise the
// warden error code is used, which keeps label cardinality bounded.
func RecordKeyOperation(keyType, operation string, err error) {
	if !enabled.Load() {
		return
	}
	KeyOperations.WithLabelValues(strings.ToLower(keyType), operation, statusOf(err)).Inc()
}

// RecordCacheEvent records a secret cache event.
func RecordCacheEvent(event string) {
	if !enabled.Load() {
		return
	}
	CacheEvents.WithLabelValues(event).Inc()
}

// RecordPromptOutcome records how a device prompt resolved.
func RecordPromptOutcome(outcome string) {
	if !enabled.Load() {
		return
	}
	PromptOutcomes.WithLabelValues(outcome).Inc()
}

// SetQueueDepth updates the device queue gauge.
func SetQueueDepth(n int) {
	if !enabled.Load() {
		return
	}
	QueueDepth.Set(float64(n))
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

func statusOf(err error) string {
	if err == nil {
		return StatusOK
	}
	return strings.ToLower(wardenerr.Code(err))
}
