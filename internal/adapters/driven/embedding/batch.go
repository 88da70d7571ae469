// Package embedding provides shared batching for embedding providers.
// Concrete adapters live in the openai and ollama subpackages.
package embedding

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// DefaultConcurrency is the sub-batch size: how many embedding requests
// run concurrently before the batcher pauses for the rate limiter.
const DefaultConcurrency = 5

// DefaultRequestsPerSecond is a conservative sustained rate that keeps
// well under typical provider limits.
const DefaultRequestsPerSecond = 10.0

// EmbedFunc generates one embedding. Adapters pass their single-text call.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// Batch embeds texts in fixed-size sub-batches of concurrency requests,
// waiting on the limiter between sub-batches as cooperative throttling.
// The result has exactly the same length and order as texts. Any single
// failure aborts the whole call; callers decide retry policy.
func Batch(
	ctx context.Context,
	texts []string,
	concurrency int,
	limiter *rate.Limiter,
	embed EmbedFunc,
) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	results := make([][]float32, len(texts))

	for start := 0; start < len(texts); start += concurrency {
		if start > 0 && limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		end := start + concurrency
		if end > len(texts) {
			end = len(texts)
		}

		var wg sync.WaitGroup
		var mu sync.Mutex
		var firstErr error

		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				vec, err := embed(ctx, texts[i])
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = fmt.Errorf("embed item %d: %w", i, err)
					}
					mu.Unlock()
					return
				}
				results[i] = vec
			}(i)
		}
		wg.Wait()

		if firstErr != nil {
			return nil, firstErr
		}
	}

	return results, nil
}
