package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/decred/slog"
	"golang.org/x/sync/errgroup"
)

// subsystems runs the long-lived parts of the process. The first one to fail
// cancels the shared context so the rest wind down with it.
type subsystems struct {
	g      *errgroup.Group
	ctx    context.Context
	log    slog.Logger
	report func(error)
}

func newSubsystems(ctx context.Context, log slog.Logger, report func(error)) *subsystems {
	g, gctx := errgroup.WithContext(ctx)
	if report == nil {
		report = func(error) {}
	}
	return &subsystems{g: g, ctx: gctx, log: log, report: report}
}

// Context is cancelled once any subsystem fails or the parent is done.
func (s *subsystems) Context() context.Context { return s.ctx }

// Go starts fn under name. Returning context.Canceled counts as a clean exit.
func (s *subsystems) Go(name string, fn func(context.Context) error) {
	s.g.Go(func() error {
		err := fn(s.ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			return nil
		}
		s.log.Errorf("%s: %v", name, err)
		s.report(err)
		return fmt.Errorf("%s: %w", name, err)
	})
}

// Wait blocks until every subsystem has returned and yields the first failure.
func (s *subsystems) Wait() error { return s.g.Wait() }
