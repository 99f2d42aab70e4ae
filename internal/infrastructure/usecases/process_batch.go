package usecases

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/sophialabs/mapforge/internal/domain/processing"
)

// ProcessBatchUseCase runs independent messages concurrently. Every message gets
// its own processing context.
type ProcessBatchUseCase struct {
	process *ProcessMessageUseCase
	workers int
}

// NewProcessBatchUseCase creates a new use case. workers < 1 uses GOMAXPROCS.
func NewProcessBatchUseCase(process *ProcessMessageUseCase, workers int) *ProcessBatchUseCase {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &ProcessBatchUseCase{process: process, workers: workers}
}

// Execute processes msgs with at most workers in flight. Results keep the order
// of msgs. It fails only when ctx ends before all messages were started.
func (uc *ProcessBatchUseCase) Execute(ctx context.Context, msgs []Message) ([]*processing.Context, error) {
	results := make([]*processing.Context, len(msgs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.workers)
	for i, msg := range msgs {
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			results[i] = uc.process.Execute(gctx, msg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}
