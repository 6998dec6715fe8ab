package converters

import (
	"github.com/custodia-labs/gnosis/internal/converters/docx"
	"github.com/custodia-labs/gnosis/internal/converters/html"
	"github.com/custodia-labs/gnosis/internal/converters/markdown"
	"github.com/custodia-labs/gnosis/internal/converters/pdf"
	"github.com/custodia-labs/gnosis/internal/converters/plaintext"
	"github.com/custodia-labs/gnosis/internal/converters/pptx"
	"github.com/custodia-labs/gnosis/internal/converters/xlsx"
)

// DefaultRegistry wires the standard converter set. Plaintext comes
// last so it only catches what the specific converters declined.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(markdown.New())
	r.Register(html.New())
	r.Register(pdf.New())
	r.Register(docx.New())
	r.Register(xlsx.New())
	r.Register(pptx.New())
	r.Register(plaintext.New())
	return r
}
