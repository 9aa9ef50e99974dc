package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/siherrmann/vaultrag/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// countingEmbedder returns a fixed vector and counts its calls.
func countingEmbedder(calls *atomic.Int32, errs ...error) EmbedFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		n := int(calls.Add(1)) - 1
		if n < len(errs) && errs[n] != nil {
			return nil, errs[n]
		}
		return []float32{float32(len(text)), 1, 0, 0}, nil
	}
}

func TestChain(t *testing.T) {
	t.Run("First decorator is the outermost", func(t *testing.T) {
		var order []string
		trace := func(name string) Decorator {
			return func(next EmbedFunc) EmbedFunc {
				return func(ctx context.Context, text string) ([]float32, error) {
					order = append(order, name)
					return next(ctx, text)
				}
			}
		}

		var calls atomic.Int32
		embed := Chain(countingEmbedder(&calls), trace("a"), trace("b"), trace("c"))

		_, err := embed(context.Background(), "text")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, order)
	})

	t.Run("Chain without decorators returns the embedder", func(t *testing.T) {
		var calls atomic.Int32
		embed := Chain(countingEmbedder(&calls))

		_, err := embed(context.Background(), "text")
		require.NoError(t, err)
		assert.EqualValues(t, 1, calls.Load())
	})
}

func TestWithMaxInput(t *testing.T) {
	t.Run("Oversized input is rejected without calling the provider", func(t *testing.T) {
		var calls atomic.Int32
		embed := Chain(countingEmbedder(&calls), WithMaxInput(10))

		_, err := embed(context.Background(), "this text is definitely longer than ten")
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrInputTooLarge)
		assert.EqualValues(t, 0, calls.Load())
	})

	t.Run("Limit counts runes not bytes", func(t *testing.T) {
		var calls atomic.Int32
		embed := Chain(countingEmbedder(&calls), WithMaxInput(5))

		_, err := embed(context.Background(), "äöüßé")
		assert.NoError(t, err)
	})
}

func TestWithRetry(t *testing.T) {
	transient := fmt.Errorf("%w: 503", model.ErrEmbeddingService)

	t.Run("Transient failures are retried", func(t *testing.T) {
		var calls atomic.Int32
		embed := Chain(countingEmbedder(&calls, transient, transient), WithRetry(3, time.Millisecond))

		embedding, err := embed(context.Background(), "text")
		require.NoError(t, err)
		assert.Len(t, embedding, 4)
		assert.EqualValues(t, 3, calls.Load())
	})

	t.Run("Retries are bounded", func(t *testing.T) {
		var calls atomic.Int32
		embed := Chain(countingEmbedder(&calls, transient, transient, transient, transient), WithRetry(2, time.Millisecond))

		_, err := embed(context.Background(), "text")
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrEmbeddingService)
		assert.EqualValues(t, 3, calls.Load())
	})

	t.Run("Oversized input is not retried", func(t *testing.T) {
		var calls atomic.Int32
		embed := Chain(countingEmbedder(&calls, model.ErrInputTooLarge), WithRetry(3, time.Millisecond))

		_, err := embed(context.Background(), "text")
		assert.ErrorIs(t, err, model.ErrInputTooLarge)
		assert.EqualValues(t, 1, calls.Load())
	})

	t.Run("Rejected credentials are not retried", func(t *testing.T) {
		var calls atomic.Int32
		authErr := fmt.Errorf("%w: %w", model.ErrEmbeddingService, model.ErrEmbeddingAuth)
		embed := Chain(countingEmbedder(&calls, authErr), WithRetry(3, time.Millisecond))

		_, err := embed(context.Background(), "text")
		assert.ErrorIs(t, err, model.ErrEmbeddingAuth)
		assert.EqualValues(t, 1, calls.Load())
	})

	t.Run("Cancelled context stops retrying", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var calls atomic.Int32
		embed := Chain(countingEmbedder(&calls, transient, transient, transient), WithRetry(3, 50*time.Millisecond))

		_, err := embed(ctx, "text")
		assert.Error(t, err)
		assert.LessOrEqual(t, calls.Load(), int32(1))
	})
}

func TestWithRateLimit(t *testing.T) {
	t.Run("Calls wait for tokens", func(t *testing.T) {
		limiter := rate.NewLimiter(rate.Limit(20), 1)
		var calls atomic.Int32
		embed := Chain(countingEmbedder(&calls), WithRateLimit(limiter))

		start := time.Now()
		for i := 0; i < 3; i++ {
			_, err := embed(context.Background(), "text")
			require.NoError(t, err)
		}

		assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
		assert.EqualValues(t, 3, calls.Load())
	})

	t.Run("Cancelled context aborts the wait", func(t *testing.T) {
		limiter := rate.NewLimiter(rate.Limit(0.1), 1)
		limiter.Allow()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		var calls atomic.Int32
		embed := Chain(countingEmbedder(&calls), WithRateLimit(limiter))

		_, err := embed(ctx, "text")
		assert.Error(t, err)
		assert.EqualValues(t, 0, calls.Load())
	})

	t.Run("Nil limiter does not block", func(t *testing.T) {
		var calls atomic.Int32
		embed := Chain(countingEmbedder(&calls), WithRateLimit(nil))

		_, err := embed(context.Background(), "text")
		assert.NoError(t, err)
	})
}

func TestWithCache(t *testing.T) {
	t.Run("Identical text is embedded once", func(t *testing.T) {
		var calls atomic.Int32
		embed := Chain(countingEmbedder(&calls), WithCache("test-model", time.Minute))

		first, err := embed(context.Background(), "same chunk")
		require.NoError(t, err)
		second, err := embed(context.Background(), "same chunk")
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.EqualValues(t, 1, calls.Load())
	})

	t.Run("Different text is embedded separately", func(t *testing.T) {
		var calls atomic.Int32
		embed := Chain(countingEmbedder(&calls), WithCache("test-model", time.Minute))

		_, err := embed(context.Background(), "first chunk")
		require.NoError(t, err)
		_, err = embed(context.Background(), "second chunk")
		require.NoError(t, err)

		assert.EqualValues(t, 2, calls.Load())
	})

	t.Run("Cached vectors are copies", func(t *testing.T) {
		var calls atomic.Int32
		embed := Chain(countingEmbedder(&calls), WithCache("test-model", time.Minute))

		first, err := embed(context.Background(), "chunk")
		require.NoError(t, err)
		first[0] = 999

		second, err := embed(context.Background(), "chunk")
		require.NoError(t, err)
		assert.NotEqual(t, float32(999), second[0])
	})

	t.Run("Errors are not cached", func(t *testing.T) {
		var calls atomic.Int32
		embed := Chain(countingEmbedder(&calls, errors.New("boom")), WithCache("test-model", time.Minute))

		_, err := embed(context.Background(), "chunk")
		require.Error(t, err)
		_, err = embed(context.Background(), "chunk")
		require.NoError(t, err)
		assert.EqualValues(t, 2, calls.Load())
	})
}

func TestWithDimension(t *testing.T) {
	t.Run("Matching dimension passes", func(t *testing.T) {
		var calls atomic.Int32
		embed := Chain(countingEmbedder(&calls), WithDimension(4))

		embedding, err := embed(context.Background(), "text")
		require.NoError(t, err)
		assert.Len(t, embedding, 4)
	})

	t.Run("Wrong dimension is a service error", func(t *testing.T) {
		var calls atomic.Int32
		embed := Chain(countingEmbedder(&calls), WithDimension(384))

		_, err := embed(context.Background(), "text")
		assert.ErrorIs(t, err, model.ErrEmbeddingService)
	})
}
