// Package batch runs a pipeline over many targets with pacing and bounded
// concurrency. One target's failure never stops the batch.
package batch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Summary counts batch outcomes. Skipped items were never started because
// the batch was canceled.
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Func processes one target.
type Func func(ctx context.Context, targetID string) error

// Driver runs at most concurrency items at a time. Sequential drivers wait
// delay after each item finishes; concurrent ones space item starts by delay.
type Driver struct {
	delay       time.Duration
	concurrency int
}

// NewDriver builds a driver. A concurrency below 1 means sequential.
func NewDriver(delay time.Duration, concurrency int) *Driver {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Driver{delay: delay, concurrency: concurrency}
}

// Run processes every id with fn. It returns ctx's error when the batch was
// canceled before all items started.
func (d *Driver) Run(ctx context.Context, ids []string, fn Func) (Summary, error) {
	sum := Summary{Total: len(ids)}
	if len(ids) == 0 {
		zap.L().Info("batch: nothing to process")
		return sum, nil
	}

	zap.L().Info("batch: starting",
		zap.Int("targets", len(ids)),
		zap.Int("concurrency", d.concurrency),
		zap.Duration("delay", d.delay),
	)

	var succeeded, failed, started atomic.Int64
	process := func(ctx context.Context, i int, id string) {
		started.Add(1)
		log := zap.L().With(zap.String("target_id", id), zap.Int("index", i))
		start := time.Now()
		if err := fn(ctx, id); err != nil {
			failed.Add(1)
			log.Error("batch: target failed", zap.Error(err))
			return
		}
		succeeded.Add(1)
		log.Info("batch: target complete", zap.Int64("duration_ms", time.Since(start).Milliseconds()))
	}

	var waitErr error
	if d.concurrency == 1 {
		waitErr = d.runSequential(ctx, ids, process)
	} else {
		waitErr = d.runConcurrent(ctx, ids, process)
	}

	sum.Succeeded = int(succeeded.Load())
	sum.Failed = int(failed.Load())
	sum.Skipped = sum.Total - int(started.Load())

	zap.L().Info("batch: complete",
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("failed", sum.Failed),
		zap.Int("skipped", sum.Skipped),
	)
	if waitErr != nil {
		if ctx.Err() != nil {
			return sum, eris.Wrap(ctx.Err(), "batch: canceled")
		}
		return sum, eris.Wrap(waitErr, "batch: pacing")
	}
	return sum, nil
}

func (d *Driver) runSequential(ctx context.Context, ids []string, process func(context.Context, int, string)) error {
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		process(ctx, i, id)
		if i == len(ids)-1 || d.delay <= 0 {
			continue
		}
		timer := time.NewTimer(d.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

func (d *Driver) runConcurrent(ctx context.Context, ids []string, process func(context.Context, int, string)) error {
	limit := rate.Inf
	if d.delay > 0 {
		limit = rate.Every(d.delay)
	}
	limiter := rate.NewLimiter(limit, 1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	var waitErr error
	for i, id := range ids {
		if err := limiter.Wait(gctx); err != nil {
			waitErr = err
			break
		}
		g.Go(func() error {
			process(gctx, i, id)
			return nil
		})
	}
	_ = g.Wait()
	return waitErr
}
