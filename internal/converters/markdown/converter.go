// Package markdown passes markdown sources through unchanged and
// extracts a title from the first heading outside code fences.
package markdown

import (
	"context"
	"strings"

	"github.com/custodia-labs/gnosis/internal/core/domain"
	"github.com/custodia-labs/gnosis/internal/core/ports/driven"
)

// Ensure Converter implements the interface.
var _ driven.Converter = (*Converter)(nil)

// Converter handles Markdown documents.
type Converter struct{}

// New creates a new Markdown converter.
func New() *Converter {
	return &Converter{}
}

// ID identifies the converter in stored document rows.
func (c *Converter) ID() string {
	return "markdown"
}

// Version is recorded per document.
func (c *Converter) Version() string {
	return "1.0.0"
}

// CanHandle accepts markdown MIME types and extensions.
func (c *Converter) CanHandle(mime, ext string) bool {
	switch mime {
	case "text/markdown", "text/x-markdown":
		return true
	}
	switch ext {
	case ".md", ".markdown", ".mdx":
		return true
	}
	return false
}

// Convert passes the source through as markdown. The text stays raw;
// canonicalization happens once in the pipeline.
func (c *Converter) Convert(_ context.Context, input domain.ConvertInput) (*domain.ConvertResult, error) {
	text := string(input.Content)
	return &domain.ConvertResult{
		Markdown: text,
		Title:    extractTitle(text),
	}, nil
}

// extractTitle returns the text of the first ATX heading that is not
// inside a code fence, or empty when the document has none.
func extractTitle(text string) string {
	inFence := false
	fenceMarker := ""
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)

		if inFence {
			if strings.HasPrefix(trimmed, fenceMarker) {
				inFence = false
			}
			continue
		}
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = true
			fenceMarker = trimmed[:3]
			continue
		}

		if strings.HasPrefix(trimmed, "#") {
			heading := strings.TrimLeft(trimmed, "#")
			if heading == "" || !strings.HasPrefix(heading, " ") {
				continue
			}
			return strings.TrimSpace(heading)
		}
	}
	return ""
}
