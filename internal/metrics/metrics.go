package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "doorcall"

// Metrics groups the prometheus collectors for calls and the rendezvous hub.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	sessionsTotal     *prometheus.CounterVec
	transitionsTotal  *prometheus.CounterVec
	sessionDuration   prometheus.Histogram
	roomsActive       prometheus.Gauge
	signalingMessages *prometheus.CounterVec
}

// New creates collectors registered on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Call iterations by outcome.",
		}, []string{"outcome"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Session state machine transitions.",
		}, []string{"from", "to"}),
		sessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Wall time of a call iteration from connect to teardown.",
			Buckets:   []float64{0.5, 1, 5, 10, 20, 40, 60, 120, 300, 600},
		}),
		roomsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms_active",
			Help:      "Rooms currently open on the rendezvous server.",
		}),
		signalingMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signaling_messages_total",
			Help:      "Signaling messages handled by the rendezvous server.",
		}, []string{"event"}),
	}

	m.registry.MustRegister(
		m.sessionsTotal,
		m.transitionsTotal,
		m.sessionDuration,
		m.roomsActive,
		m.signalingMessages,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveSession records a finished iteration.
func (m *Metrics) ObserveSession(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.sessionsTotal.WithLabelValues(outcome).Inc()
	m.sessionDuration.Observe(d.Seconds())
}

// ObserveTransition records a state change.
func (m *Metrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *Metrics) RoomOpened() {
	if m == nil {
		return
	}
	m.roomsActive.Inc()
}

func (m *Metrics) RoomClosed() {
	if m == nil {
		return
	}
	m.roomsActive.Dec()
}

// SignalingMessage counts a message handled by the rendezvous hub.
func (m *Metrics) SignalingMessage(event string) {
	if m == nil {
		return
	}
	m.signalingMessages.WithLabelValues(event).Inc()
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
