// Package metrics groups all Prometheus instruments used across the
// application.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stargazerbot/internal/dispatch"
	"stargazerbot/internal/stream"
	logx "stargazerbot/pkg/logx"
)

// Metrics is registered once at startup via New(); passed by pointer
// wherever needed. Using a custom registry (instead of the default
// registerer) keeps tests isolated and avoids global state.
type Metrics struct {
	registry *prometheus.Registry

	EventsReceived    prometheus.Counter
	EventsDropped     *prometheus.CounterVec
	RecipientOutcomes *prometheus.CounterVec
	Sends             *prometheus.CounterVec
	FloodWaits        prometheus.Counter
	QueueDepth        prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		EventsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stream_events_received_total",
			Help: "Total raw messages received on the upstream stream.",
		}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stream_events_dropped_total",
			Help: "Events dropped before delivery (parse failure, resolve failure).",
		}, []string{"reason"}),
		RecipientOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "delivery_recipient_outcomes_total",
			Help: "Terminal per-recipient delivery outcomes.",
		}, []string{"outcome"}),
		Sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transport_sends_total",
			Help: "Transport send attempts by method and result.",
		}, []string{"method", "result"}),
		FloodWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transport_flood_waits_total",
			Help: "Flood-control waits observed during delivery.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stream_queue_depth",
			Help: "Current number of raw events waiting for a worker.",
		}),
	}

	m.registry.MustRegister(
		m.EventsReceived,
		m.EventsDropped,
		m.RecipientOutcomes,
		m.Sends,
		m.FloodWaits,
		m.QueueDepth,
	)
	return m
}

// DispatchHooks returns the callbacks the dispatcher expects. Centralises
// the prometheus observation calls so dispatch stays import-free.
func (m *Metrics) DispatchHooks() dispatch.Hooks {
	return dispatch.Hooks{
		OnSend: func(method string, err error) {
			result := "ok"
			if err != nil {
				result = "error"
			}
			m.Sends.WithLabelValues(method, result).Inc()
		},
		OnOutcome: func(out dispatch.Outcome) {
			m.RecipientOutcomes.WithLabelValues(out.String()).Inc()
		},
		OnFlood: func(time.Duration) {
			m.FloodWaits.Inc()
		},
	}
}

// StreamHooks returns the callbacks the stream consumer expects.
func (m *Metrics) StreamHooks() stream.Hooks {
	return stream.Hooks{
		OnMessage:       func() { m.EventsReceived.Inc() },
		OnParseError:    func() { m.EventsDropped.WithLabelValues("parse").Inc() },
		OnDispatchError: func() { m.EventsDropped.WithLabelValues("dispatch").Inc() },
		QueueDepth:      func(n int) { m.QueueDepth.Set(float64(n)) },
	}
}

// Serve exposes /metrics on addr until ctx is canceled.
func (m *Metrics) Serve(ctx context.Context, addr string, log logx.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Info("metrics listening", logx.String("addr", addr))

	select {
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
