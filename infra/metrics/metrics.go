// Package metrics exposes replay progress to Prometheus.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tvitch/domain/record"
)

var (
	decodedCounters = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tvitch",
		Name:      "messages_decoded_total",
		Help:      "Decoded ITCH messages by version and type",
	}, []string{"version", "type"})

	anomalyCounters = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tvitch",
		Name:      "replay_anomalies_total",
		Help:      "Recoverable replay anomalies by kind",
	}, []string{"kind"})

	emittedCounters = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tvitch",
		Name:      "records_emitted_total",
		Help:      "Records written to sinks by record type",
	}, []string{"record"})

	replayCounters = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tvitch",
		Name:      "replays_total",
		Help:      "Finished replays by outcome",
	}, []string{"outcome"})

	replayDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tvitch",
		Name:      "replay_duration_seconds",
		Help:      "Wall time of finished replays",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	publishCounters = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tvitch",
		Name:      "outbox_published_total",
		Help:      "Outbox records handed to Kafka by result",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(decodedCounters, anomalyCounters, emittedCounters,
		replayCounters, replayDuration, publishCounters)
}

// Observer records replay events. The zero value is not usable; use
// NewObserver. One Observer may be shared by concurrent replays.
type Observer struct {
	version string

	mu      sync.Mutex
	decoded [256]prometheus.Counter
}

func NewObserver(version string) *Observer {
	return &Observer{version: version}
}

// Decoded counts one message of the given tag.
func (o *Observer) Decoded(tag byte) {
	o.mu.Lock()
	c := o.decoded[tag]
	if c == nil {
		c = decodedCounters.WithLabelValues(o.version, string(rune(tag)))
		o.decoded[tag] = c
	}
	o.mu.Unlock()
	c.Inc()
}

// Anomaly counts a recoverable condition such as a duplicate order id.
func (o *Observer) Anomaly(kind string) {
	anomalyCounters.WithLabelValues(kind).Inc()
}

func (o *Observer) Emitted(t record.Type) {
	emittedCounters.WithLabelValues(t.String()).Inc()
}

func (o *Observer) Finished(outcome string, elapsed time.Duration) {
	replayCounters.WithLabelValues(outcome).Inc()
	replayDuration.Observe(elapsed.Seconds())
}

// Published counts one outbox delivery attempt.
func Published(ok bool) {
	if ok {
		publishCounters.WithLabelValues("ok").Inc()
		return
	}
	publishCounters.WithLabelValues("failed").Inc()
}
