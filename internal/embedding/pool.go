package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// DefaultWorkers bounds concurrent embedding calls.
const DefaultWorkers = 8

// NewPool creates the worker pool used by EmbedAll.
func NewPool(size int, logger *zap.Logger) (*ants.Pool, error) {
	if size <= 0 {
		size = DefaultWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p, err := ants.NewPool(size,
		ants.WithExpiryDuration(10*time.Second),
		ants.WithPanicHandler(func(v interface{}) {
			logger.Error("embedding worker panic", zap.Any("panic", v))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding pool: %w", err)
	}
	return p, nil
}

// EmbedAll embeds every text concurrently on pool and returns vectors in input order.
// Any failure fails the whole call with the error for the earliest failing text.
// A nil pool embeds sequentially.
func EmbedAll(ctx context.Context, pool *ants.Pool, e Embedder, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	errs := make([]error, len(texts))
	var wg sync.WaitGroup
	for i := range texts {
		task := func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("embedding panicked: %v", r)
				}
			}()
			out[i], errs[i] = Generate(ctx, e, texts[i])
		}
		wg.Add(1)
		if pool == nil {
			task()
			continue
		}
		if err := pool.Submit(task); err != nil {
			wg.Done()
			errs[i] = fmt.Errorf("submit embedding task: %w", err)
		}
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
