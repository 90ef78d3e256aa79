// Package scanning turns a photo of a handwritten shopping list into raw
// line items using a vision model.
package scanning

import (
	"context"

	"github.com/zombor/shoplist-invoicer/internal/pricing"
)

// Extractor reads quantity, item and optional unit price guesses from an
// image. Implementations call out to a model over the network and may be
// slow or throttled; a throttled call returns a *RateLimitError.
type Extractor interface {
	// ExtractItems returns the candidate lines found in the image. An image
	// with no recognizable list yields ErrNoItems.
	ExtractItems(ctx context.Context, imageData []byte, contentType string) ([]pricing.RawLineItem, error)
	// Close releases the underlying client.
	Close() error
}
