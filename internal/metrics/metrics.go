// Package metrics exposes scheduler activity as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"threadpost/internal/eventbus"
	logx "threadpost/pkg/logx"
)

const namespace = "threadpost"

// Collector owns a private registry fed from scheduler events.
type Collector struct {
	reg *prometheus.Registry

	published    *prometheus.CounterVec
	failed       *prometheus.CounterVec
	ledgerErrors prometheus.Counter
	ticks        prometheus.Counter
	tickFailures prometheus.Counter
	tickDuration prometheus.Histogram
	tickDue      prometheus.Gauge
	lastPublish  prometheus.Gauge
	busDropped   prometheus.GaugeFunc
}

func New(bus eventbus.Bus) *Collector {
	c := &Collector{reg: prometheus.NewRegistry()}

	c.published = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "posts_published_total",
		Help:      "Posts confirmed by the remote API and recorded.",
	}, []string{"media_type"})
	c.failed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "posts_failed_total",
		Help:      "Publish attempts that failed, by protocol stage.",
	}, []string{"stage"})
	c.ledgerErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_write_failures_total",
		Help:      "Ledger writes that failed after a confirmed publish.",
	})
	c.ticks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ticks_total",
		Help:      "Completed scheduler ticks.",
	})
	c.tickFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tick_failures_total",
		Help:      "Scheduler ticks that failed and consumed restart budget.",
	})
	c.tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "tick_duration_seconds",
		Help:      "Wall time of completed ticks, including publish pacing.",
		Buckets:   []float64{0.01, 0.1, 1, 5, 15, 30, 60, 120, 300},
	})
	c.tickDue = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tick_due_items",
		Help:      "Items found due in the last completed tick.",
	})
	c.lastPublish = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_publish_timestamp_seconds",
		Help:      "Unix time of the last confirmed publish.",
	})
	c.busDropped = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "eventbus_dropped_events",
		Help:      "Events dropped by slow subscribers.",
	}, func() float64 {
		if bus == nil {
			return 0
		}
		return float64(bus.Dropped())
	})

	c.reg.MustRegister(
		c.published, c.failed, c.ledgerErrors,
		c.ticks, c.tickFailures, c.tickDuration, c.tickDue,
		c.lastPublish, c.busDropped,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Observe updates collectors from one event.
func (c *Collector) Observe(e eventbus.Event) {
	switch e.Type {
	case eventbus.TypePostPublished:
		p, _ := e.Data.(eventbus.Post)
		c.published.WithLabelValues(p.MediaType).Inc()
		c.lastPublish.Set(float64(e.Time.Unix()))
	case eventbus.TypePostFailed:
		p, _ := e.Data.(eventbus.Post)
		c.failed.WithLabelValues(p.Stage).Inc()
	case eventbus.TypeLedgerWriteFailed:
		c.ledgerErrors.Inc()
	case eventbus.TypeTickDone:
		t, _ := e.Data.(eventbus.Tick)
		c.ticks.Inc()
		c.tickDue.Set(float64(t.Due))
		c.tickDuration.Observe(t.Took.Seconds())
	case eventbus.TypeTickFailed, eventbus.TypeSchedulerFatal:
		c.tickFailures.Inc()
	}
}

// Consume observes events until ctx is done or the channel closes.
func (c *Collector) Consume(ctx context.Context, events <-chan eventbus.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			c.Observe(e)
		}
	}
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}

// Mux serves /metrics and /healthz, plus /debug/pprof/ when withPprof is set.
func (c *Collector) Mux(withPprof bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	if withPprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
}

// Serve listens on addr until ctx is done.
func (c *Collector) Serve(ctx context.Context, addr string, withPprof bool, log logx.Logger) error {
	mux := c.Mux(withPprof)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Info("metrics listening", logx.String("addr", addr), logx.Bool("pprof", withPprof))

	select {
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
