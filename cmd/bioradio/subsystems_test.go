package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/decred/slog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubsystemFailureCancelsOthers(t *testing.T) {
	var reported []error
	subs := newSubsystems(context.Background(), slog.Disabled, func(err error) {
		reported = append(reported, err)
	})

	stopped := make(chan struct{})
	subs.Go("output", func(ctx context.Context) error {
		<-ctx.Done()
		close(stopped)
		return ctx.Err()
	})
	boom := errors.New("device lost")
	subs.Go("controller", func(context.Context) error { return boom })

	err := subs.Wait()
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "controller")

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("other subsystem kept running")
	}
	assert.Error(t, subs.Context().Err())
	assert.Equal(t, []error{boom}, reported)
}

func TestSubsystemsCleanShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var reported int
	subs := newSubsystems(ctx, slog.Disabled, func(error) { reported++ })

	for _, name := range []string{"output", "stats", "agent"} {
		subs.Go(name, func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
	}
	subs.Go("broadcaster", func(context.Context) error { return nil })

	cancel()
	assert.NoError(t, subs.Wait())
	assert.Zero(t, reported)
}
