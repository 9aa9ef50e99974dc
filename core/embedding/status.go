// Package embedding holds what the remote embedding providers share.
package embedding

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/siherrmann/vaultrag/model"
)

// Messages providers use to reject input that exceeds the model context.
var tooLargeMarkers = []string{
	"too long",
	"too large",
	"maximum context length",
	"too many tokens",
	"exceeds the maximum",
	"input length",
}

// StatusError maps an HTTP status of a failed embedding request to the
// model sentinels. Oversized input becomes model.ErrInputTooLarge, rejected
// credentials model.ErrEmbeddingAuth and everything else model.ErrEmbeddingService.
func StatusError(provider string, status int, message string) error {
	switch {
	case status == http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%s: %w: %s", provider, model.ErrInputTooLarge, message)
	case status == http.StatusBadRequest && isTooLarge(message):
		return fmt.Errorf("%s: %w: %s", provider, model.ErrInputTooLarge, message)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%s: %w: %w: status %d", provider, model.ErrEmbeddingService, model.ErrEmbeddingAuth, status)
	default:
		return fmt.Errorf("%s: %w: status %d: %s", provider, model.ErrEmbeddingService, status, message)
	}
}

// TransportError wraps an error without a status (network, timeout, decoding).
func TransportError(provider string, err error) error {
	return fmt.Errorf("%s: %w: %w", provider, model.ErrEmbeddingService, err)
}

// ToFloat32 converts a provider vector to the stored precision.
func ToFloat32[T ~float32 | ~float64](values []T) []float32 {
	embedding := make([]float32, len(values))
	for i, v := range values {
		embedding[i] = float32(v)
	}
	return embedding
}

func isTooLarge(message string) bool {
	lower := strings.ToLower(message)
	for _, marker := range tooLargeMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
