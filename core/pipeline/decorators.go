package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/minio/highwayhash"
	"github.com/patrickmn/go-cache"
	"github.com/siherrmann/vaultrag/model"
	"golang.org/x/time/rate"
)

// Decorator wraps an EmbedFunc with additional behaviour
type Decorator func(EmbedFunc) EmbedFunc

// Chain applies decorators to embed. The first decorator is the outermost one.
func Chain(embed EmbedFunc, decorators ...Decorator) EmbedFunc {
	for i := len(decorators) - 1; i >= 0; i-- {
		embed = decorators[i](embed)
	}
	return embed
}

// WithMaxInput rejects texts longer than maxChars runes instead of letting the
// provider truncate them.
func WithMaxInput(maxChars int) Decorator {
	return func(next EmbedFunc) EmbedFunc {
		return func(ctx context.Context, text string) ([]float32, error) {
			if n := utf8.RuneCountInString(text); maxChars > 0 && n > maxChars {
				return nil, fmt.Errorf("%w: %d chars, limit %d", model.ErrInputTooLarge, n, maxChars)
			}
			return next(ctx, text)
		}
	}
}

// WithRetry retries transient failures with exponential backoff.
// Oversized input, rejected credentials and context errors are not retried.
func WithRetry(maxRetries int, initialInterval time.Duration) Decorator {
	if initialInterval <= 0 {
		initialInterval = 500 * time.Millisecond
	}

	return func(next EmbedFunc) EmbedFunc {
		return func(ctx context.Context, text string) ([]float32, error) {
			expBackOff := backoff.NewExponentialBackOff()
			expBackOff.InitialInterval = initialInterval
			expBackOff.Reset()

			b := backoff.WithContext(backoff.WithMaxRetries(expBackOff, uint64(max(maxRetries, 0))), ctx)

			return backoff.RetryWithData(func() ([]float32, error) {
				embedding, err := next(ctx, text)
				if err != nil && isPermanent(err) {
					return nil, backoff.Permanent(err)
				}
				return embedding, err
			}, b)
		}
	}
}

func isPermanent(err error) bool {
	return errors.Is(err, model.ErrInputTooLarge) ||
		errors.Is(err, model.ErrEmbeddingAuth) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// WithRateLimit makes every call wait for a token of limiter.
// Share one limiter between all embedders that hit the same remote API.
func WithRateLimit(limiter *rate.Limiter) Decorator {
	return func(next EmbedFunc) EmbedFunc {
		return func(ctx context.Context, text string) ([]float32, error) {
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return nil, fmt.Errorf("rate limit wait: %w", err)
				}
			}
			return next(ctx, text)
		}
	}
}

var cacheKey = []byte("vaultrag-embedding-cache-key-32b")

// WithCache caches embeddings by exact text for ttl.
// modelName is part of the key so providers can share a process.
func WithCache(modelName string, ttl time.Duration) Decorator {
	c := cache.New(ttl, 2*ttl)

	return func(next EmbedFunc) EmbedFunc {
		return func(ctx context.Context, text string) ([]float32, error) {
			key, err := hashKey(modelName, text)
			if err != nil {
				return next(ctx, text)
			}

			if cached, ok := c.Get(key); ok {
				return append([]float32(nil), cached.([]float32)...), nil
			}

			embedding, err := next(ctx, text)
			if err != nil {
				return nil, err
			}

			c.Set(key, append([]float32(nil), embedding...), cache.DefaultExpiration)
			return embedding, nil
		}
	}
}

func hashKey(modelName string, text string) (string, error) {
	h, err := highwayhash.New64(cacheKey)
	if err != nil {
		return "", err
	}
	h.Write([]byte(modelName))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return strconv.FormatUint(h.Sum64(), 16) + ":" + strconv.Itoa(len(text)), nil
}

// WithDimension rejects vectors that do not have exactly dimension entries.
func WithDimension(dimension int) Decorator {
	return func(next EmbedFunc) EmbedFunc {
		return func(ctx context.Context, text string) ([]float32, error) {
			embedding, err := next(ctx, text)
			if err != nil {
				return nil, err
			}
			if len(embedding) != dimension {
				return nil, fmt.Errorf("%w: got %d dimensions, want %d", model.ErrEmbeddingService, len(embedding), dimension)
			}
			return embedding, nil
		}
	}
}
