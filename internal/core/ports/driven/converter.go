package driven

import (
	"context"

	"github.com/custodia-labs/gnosis/internal/core/domain"
)

// Converter transforms raw source bytes of one format family into
// markdown. Converters emit raw markdown only; canonicalization is the
// pipeline's job so every format hashes compatibly.
type Converter interface {
	// ID identifies the converter in stored document rows.
	ID() string

	// Version is recorded per document so a converter upgrade can
	// trigger reconversion.
	Version() string

	// CanHandle reports whether this converter accepts the given
	// MIME type and extension. Extension includes the leading dot
	// and is lowercase.
	CanHandle(mime, ext string) bool

	// Convert produces markdown from the raw input.
	Convert(ctx context.Context, input domain.ConvertInput) (*domain.ConvertResult, error)
}
