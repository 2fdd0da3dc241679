package metrics

import (
	"log/slog"
	"net/http"
	"sync/atomic"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/crashpost/crashpost/internal/queue"
)

// Metric names exposed on /metrics.
const (
	nameQueued     = "crashpost_events_queued_total"
	nameAttempts   = "crashpost_delivery_attempts_total"
	nameOutcomes   = "crashpost_delivery_outcomes_total"
	nameDepth      = "crashpost_queue_depth"
	nameProcessing = "crashpost_queue_processing"
	nameLimited    = "crashpost_rate_limited"
)

// Gauges is the live queue state rendered next to the counters.
type Gauges struct {
	Depth      int
	Processing bool
	Limited    bool
}

// Collector counts job transitions. All methods are safe for concurrent use.
type Collector struct {
	queued    atomic.Int64
	attempts  atomic.Int64
	delivered atomic.Int64
	throttled atomic.Int64
	failed    atomic.Int64
}

// New returns an empty Collector.
func New() *Collector {
	return &Collector{}
}

// Observe implements queue.Observer.
func (c *Collector) Observe(_ *queue.Job, state queue.State, _ error) {
	switch state {
	case queue.StatePending:
		c.queued.Add(1)
	case queue.StateInFlight:
		c.attempts.Add(1)
	case queue.StateDelivered:
		c.delivered.Add(1)
	case queue.StateThrottled:
		c.throttled.Add(1)
	case queue.StateFailed:
		c.failed.Add(1)
	}
}

// Families returns the current metric families, counters first.
func (c *Collector) Families(g Gauges) []*dto.MetricFamily {
	outcomes := &dto.MetricFamily{
		Name: proto.String(nameOutcomes),
		Help: proto.String("Delivery attempts by outcome."),
		Type: dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{
			counterWithLabel("outcome", "delivered", c.delivered.Load()),
			counterWithLabel("outcome", "throttled", c.throttled.Load()),
			counterWithLabel("outcome", "failed", c.failed.Load()),
		},
	}
	return []*dto.MetricFamily{
		counterFamily(nameQueued, "Events submitted for delivery.", c.queued.Load()),
		counterFamily(nameAttempts, "Delivery attempts started.", c.attempts.Load()),
		outcomes,
		gaugeFamily(nameDepth, "Events waiting or in flight.", float64(g.Depth)),
		gaugeFamily(nameProcessing, "1 while a delivery attempt is outstanding.", boolValue(g.Processing)),
		gaugeFamily(nameLimited, "1 while delivery is paused by a rate limit.", boolValue(g.Limited)),
	}
}

// Handler serves the metrics, reading gauges from src on every scrape.
func (c *Collector) Handler(src func() Gauges) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		format := expfmt.Negotiate(r.Header)
		w.Header().Set("Content-Type", string(format))

		enc := expfmt.NewEncoder(w, format)
		for _, mf := range c.Families(src()) {
			if err := enc.Encode(mf); err != nil {
				slog.Error("metrics: encode failed", "family", mf.GetName(), "err", err)
				return
			}
		}
	})
}

func counterFamily(name, help string, v int64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{
			Counter: &dto.Counter{Value: proto.Float64(float64(v))},
		}},
	}
}

func counterWithLabel(label, value string, v int64) *dto.Metric {
	return &dto.Metric{
		Label:   []*dto.LabelPair{{Name: proto.String(label), Value: proto.String(value)}},
		Counter: &dto.Counter{Value: proto.Float64(float64(v))},
	}
}

func gaugeFamily(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{
			Gauge: &dto.Gauge{Value: proto.Float64(v)},
		}},
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
