// Package metrics holds the radio's prometheus registry. All methods are
// safe to call on a nil *Stats, which records nothing.
package metrics

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/decred/slog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Chunk drop reasons.
const (
	DropGated    = "gated"
	DropDecode   = "decode"
	DropUnderrun = "underrun"
)

// Stats holds pipeline statistics.
type Stats struct {
	reg *prometheus.Registry

	chunksReceived  prometheus.Counter
	chunksScheduled prometheus.Counter
	chunksDropped   *prometheus.CounterVec
	primes          prometheus.Counter
	underruns       prometheus.Counter
	dispatches      *prometheus.CounterVec
	dispatchFails   *prometheus.CounterVec
	connects        prometheus.Counter
	connectFails    prometheus.Counter
	filtered        prometheus.Counter
	state           *prometheus.GaugeVec
	listeners       prometheus.Gauge
	agentCycles     *prometheus.CounterVec

	receivedAtomic  atomic.Uint64
	scheduledAtomic atomic.Uint64
	droppedAtomic   atomic.Uint64
}

// New creates a registry with the process and Go collectors registered.
func New() *Stats {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())
	return &Stats{
		reg: reg,

		chunksReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "bioradio_chunks_received",
			Help: "Audio chunks received from the generator",
		}),
		chunksScheduled: f.NewCounter(prometheus.CounterOpts{
			Name: "bioradio_chunks_scheduled",
			Help: "Audio chunks scheduled on the output clock",
		}),
		chunksDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bioradio_chunks_dropped",
			Help: "Audio chunks dropped, by reason",
		}, []string{"reason"}),
		primes: f.NewCounter(prometheus.CounterOpts{
			Name: "bioradio_primes",
			Help: "Times the scheduler primed its lookahead",
		}),
		underruns: f.NewCounter(prometheus.CounterOpts{
			Name: "bioradio_underruns",
			Help: "Times audio arrived after its scheduled start",
		}),
		dispatches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bioradio_dispatches",
			Help: "Control messages sent, by channel",
		}, []string{"channel"}),
		dispatchFails: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bioradio_dispatch_failures",
			Help: "Control messages that failed to send, by channel",
		}, []string{"channel"}),
		connects: f.NewCounter(prometheus.CounterOpts{
			Name: "bioradio_connects",
			Help: "Successful generator connects",
		}),
		connectFails: f.NewCounter(prometheus.CounterOpts{
			Name: "bioradio_connect_failures",
			Help: "Failed generator connects and lost sessions",
		}),
		filtered: f.NewCounter(prometheus.CounterOpts{
			Name: "bioradio_filtered_prompts",
			Help: "Prompts rejected by the generator",
		}),
		state: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bioradio_playback_state",
			Help: "1 for the current playback state, 0 otherwise",
		}, []string{"state"}),
		listeners: f.NewGauge(prometheus.GaugeOpts{
			Name: "bioradio_listeners",
			Help: "Connected stream listeners",
		}),
		agentCycles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bioradio_agent_cycles",
			Help: "Agent pipeline cycles, by result",
		}, []string{"result"}),
	}
}

// Handler serves the registry in the prometheus exposition format.
func (s *Stats) Handler() http.Handler {
	if s == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{Registry: s.reg})
}

func (s *Stats) ChunkReceived() {
	if s == nil {
		return
	}
	s.chunksReceived.Inc()
	s.receivedAtomic.Add(1)
}

func (s *Stats) ChunkScheduled() {
	if s == nil {
		return
	}
	s.chunksScheduled.Inc()
	s.scheduledAtomic.Add(1)
}

func (s *Stats) ChunkDropped(reason string) {
	if s == nil {
		return
	}
	s.chunksDropped.WithLabelValues(reason).Inc()
	s.droppedAtomic.Add(1)
}

func (s *Stats) Primed() {
	if s == nil {
		return
	}
	s.primes.Inc()
}

func (s *Stats) Underrun() {
	if s == nil {
		return
	}
	s.underruns.Inc()
}

// Dispatch records a control message send on channel.
func (s *Stats) Dispatch(channel string, err error) {
	if s == nil {
		return
	}
	if err != nil {
		s.dispatchFails.WithLabelValues(channel).Inc()
		return
	}
	s.dispatches.WithLabelValues(channel).Inc()
}

// Connect records a connect attempt.
func (s *Stats) Connect(err error) {
	if s == nil {
		return
	}
	if err != nil {
		s.connectFails.Inc()
		return
	}
	s.connects.Inc()
}

func (s *Stats) Filtered() {
	if s == nil {
		return
	}
	s.filtered.Inc()
}

// SetState marks current as the active playback state among all.
func (s *Stats) SetState(current string, all []string) {
	if s == nil {
		return
	}
	for _, st := range all {
		v := 0.0
		if st == current {
			v = 1
		}
		s.state.WithLabelValues(st).Set(v)
	}
}

func (s *Stats) SetListeners(n int) {
	if s == nil {
		return
	}
	s.listeners.Set(float64(n))
}

// AgentCycle records an agent cycle outcome.
func (s *Stats) AgentCycle(ok bool) {
	if s == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	s.agentCycles.WithLabelValues(result).Inc()
}

// RunReportLoop logs chunk throughput every interval until ctx is done.
func (s *Stats) RunReportLoop(ctx context.Context, interval time.Duration, log slog.Logger) error {
	if s == nil || interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		recv := s.receivedAtomic.Swap(0)
		sched := s.scheduledAtomic.Swap(0)
		dropped := s.droppedAtomic.Swap(0)
		if recv|sched|dropped == 0 {
			continue
		}
		log.Infof("Chunks in the last %s: %d received, %d scheduled, %d dropped",
			interval, recv, sched, dropped)
	}
}
