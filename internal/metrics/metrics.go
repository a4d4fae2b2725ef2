// Package metrics exports daemon counters for Prometheus. Counts are driven
// by bus events so producers stay unaware of them.
package metrics

import (
	"context"

	"github.com/bazaarhq/inbox/internal/bus"
	"github.com/bazaarhq/inbox/internal/compose"
	"github.com/bazaarhq/inbox/internal/poll"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gauges are read at scrape time.
type Gauges struct {
	Unread func() int
	Stale  func() bool
}

// Collector owns a private registry.
type Collector struct {
	Registry *prometheus.Registry

	polls        *prometheus.CounterVec
	pollDuration *prometheus.HistogramVec
	sends        *prometheus.CounterVec
	watermarks   prometheus.Counter

	bus    *bus.Bus
	cancel context.CancelFunc
	done   chan struct{}
}

func New(b *bus.Bus, g Gauges) *Collector {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	c := &Collector{
		Registry: reg,
		bus:      b,
		polls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "inbox_polls_total",
			Help: "Polls completed, by target and result.",
		}, []string{"target", "result"}),
		pollDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "inbox_poll_duration_seconds",
			Help:    "Time spent fetching from the message service.",
			Buckets: prometheus.DefBuckets,
		}, []string{"target"}),
		sends: f.NewCounterVec(prometheus.CounterOpts{
			Name: "inbox_sends_total",
			Help: "Message sends, by result.",
		}, []string{"result"}),
		watermarks: f.NewCounter(prometheus.CounterOpts{
			Name: "inbox_mark_viewed_total",
			Help: "Conversations marked viewed.",
		}),
	}
	if g.Unread != nil {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "inbox_unread_messages",
			Help: "Unread messages across all conversations.",
		}, func() float64 { return float64(g.Unread()) })
	}
	if g.Stale != nil {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "inbox_snapshot_stale",
			Help: "1 when the inbox snapshot is from a failed or cached fetch.",
		}, func() float64 {
			if g.Stale() {
				return 1
			}
			return 0
		})
	}
	return c
}

// Start consumes bus events until Stop.
func (c *Collector) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	ch, unsub := c.bus.Subscribe("", 256)
	go func() {
		defer close(c.done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				c.Observe(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (c *Collector) Stop() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
}

// Observe records one event.
func (c *Collector) Observe(evt bus.Event) {
	switch p := evt.Payload.(type) {
	case poll.Snapshot:
		c.polls.WithLabelValues("inbox", "ok").Inc()
		c.pollDuration.WithLabelValues("inbox").Observe(p.Took.Seconds())
	case poll.ThreadSnapshot:
		c.polls.WithLabelValues("thread", "ok").Inc()
		c.pollDuration.WithLabelValues("thread").Observe(p.Took.Seconds())
	case poll.Failure:
		c.polls.WithLabelValues(p.Target, "error").Inc()
		c.pollDuration.WithLabelValues(p.Target).Observe(p.Took.Seconds())
	case compose.StateChange:
		switch p.To {
		case compose.Sent:
			c.sends.WithLabelValues("ok").Inc()
		case compose.Failed:
			c.sends.WithLabelValues("error").Inc()
		}
	default:
		if evt.Kind == bus.KindWatermarkUpdated {
			c.watermarks.Inc()
		}
	}
}
