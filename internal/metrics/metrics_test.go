package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, s *Stats) string {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestNilStatsIsNoop(t *testing.T) {
	var s *Stats
	s.ChunkReceived()
	s.ChunkScheduled()
	s.ChunkDropped(DropDecode)
	s.Primed()
	s.Underrun()
	s.Dispatch("prompts", nil)
	s.Connect(errors.New("x"))
	s.Filtered()
	s.SetState("playing", []string{"playing"})
	s.SetListeners(3)
	s.AgentCycle(true)
	assert.NoError(t, s.RunReportLoop(context.Background(), 0, nil))
}

func TestCounters(t *testing.T) {
	s := New()
	s.ChunkReceived()
	s.ChunkReceived()
	s.ChunkDropped(DropUnderrun)
	s.Dispatch("prompts", nil)
	s.Dispatch("prompts", errors.New("closed"))
	s.Dispatch("config", nil)

	body := scrape(t, s)
	assert.Contains(t, body, "bioradio_chunks_received 2")
	assert.Contains(t, body, `bioradio_chunks_dropped{reason="underrun"} 1`)
	assert.Contains(t, body, `bioradio_dispatches{channel="prompts"} 1`)
	assert.Contains(t, body, `bioradio_dispatch_failures{channel="prompts"} 1`)
	assert.Equal(t, uint64(2), s.receivedAtomic.Load())
}

func TestStateGauge(t *testing.T) {
	s := New()
	s.SetState("playing", []string{"stopped", "playing"})

	body := scrape(t, s)
	assert.Contains(t, body, `bioradio_playback_state{state="playing"} 1`)
	assert.Contains(t, body, `bioradio_playback_state{state="stopped"} 0`)
}

func TestNilHandler(t *testing.T) {
	var s *Stats
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}
