// Package converters selects and runs format converters, then
// canonicalizes their markdown into content-addressed artifacts.
package converters

import (
	"github.com/custodia-labs/gnosis/internal/core/domain"
	"github.com/custodia-labs/gnosis/internal/core/ports/driven"
)

// Registry holds converters in registration order. Order is priority:
// the first converter whose CanHandle accepts the input wins.
type Registry struct {
	converters []driven.Converter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a converter. Earlier registrations take precedence.
func (r *Registry) Register(c driven.Converter) {
	r.converters = append(r.converters, c)
}

// Select returns the first converter accepting the MIME type and
// extension, or an UNSUPPORTED error naming both.
func (r *Registry) Select(mime, ext string) (driven.Converter, error) {
	for _, c := range r.converters {
		if c.CanHandle(mime, ext) {
			return c, nil
		}
	}
	return nil, &domain.Error{
		Kind:    domain.KindUnsupported,
		Message: "no converter for mime " + mime + " ext " + ext,
		MIME:    mime,
		Ext:     ext,
		Err:     domain.ErrUnsupportedType,
	}
}

// Converters returns the registered converters in priority order.
func (r *Registry) Converters() []driven.Converter {
	out := make([]driven.Converter, len(r.converters))
	copy(out, r.converters)
	return out
}
