package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Intervals holds the tick cadence of each loop.
type Intervals struct {
	Lifecycle time.Duration
	Batch     time.Duration
	Relay     time.Duration
}

// Orchestrator runs the three engine loops as concurrent goroutines and
// stops them together on context cancellation.
type Orchestrator struct {
	lifecycle *Lifecycle
	batcher   *Batcher
	relay     *Relay
	intervals Intervals
	logger    *slog.Logger
}

// NewOrchestrator creates an Orchestrator for the given loops.
func NewOrchestrator(lifecycle *Lifecycle, batcher *Batcher, relay *Relay, intervals Intervals, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		lifecycle: lifecycle,
		batcher:   batcher,
		relay:     relay,
		intervals: intervals,
		logger:    logger.With(slog.String("component", "orchestrator")),
	}
}

// Run starts all loops in an errgroup and blocks until the context is
// cancelled or a loop fails with a non-context error. Context cancellation
// is a clean shutdown, not an error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("scheduler orchestrator starting",
		slog.Duration("lifecycle_interval", o.intervals.Lifecycle),
		slog.Duration("batch_interval", o.intervals.Batch),
		slog.Duration("relay_interval", o.intervals.Relay),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := o.lifecycle.RunLoop(ctx, o.intervals.Lifecycle)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("lifecycle: %w", err)
	})

	g.Go(func() error {
		err := o.batcher.RunLoop(ctx, o.intervals.Batch)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("batcher: %w", err)
	})

	g.Go(func() error {
		err := o.relay.RunLoop(ctx, o.intervals.Relay)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("relay: %w", err)
	})

	if err := g.Wait(); err != nil {
		o.logger.Error("scheduler orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("scheduler orchestrator stopped cleanly")
	return nil
}
