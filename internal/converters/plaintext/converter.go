// Package plaintext wraps plain-text sources as markdown.
package plaintext

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/gnosis/internal/core/domain"
	"github.com/custodia-labs/gnosis/internal/core/ports/driven"
)

// Ensure Converter implements the interface.
var _ driven.Converter = (*Converter)(nil)

// Converter handles plain-text documents. It is registered last so it
// only catches text the more specific converters declined.
type Converter struct{}

// New creates a new plain-text converter.
func New() *Converter {
	return &Converter{}
}

// ID identifies the converter in stored document rows.
func (c *Converter) ID() string {
	return "plaintext"
}

// Version is recorded per document.
func (c *Converter) Version() string {
	return "1.0.0"
}

// CanHandle accepts any text MIME plus JSON.
func (c *Converter) CanHandle(mime, ext string) bool {
	if strings.HasPrefix(mime, "text/") {
		return true
	}
	switch mime {
	case "application/json":
		return true
	}
	switch ext {
	case ".txt", ".text", ".log", ".csv", ".json", ".yaml", ".yml", ".toml":
		return true
	}
	return false
}

// Convert passes the text through and titles it from the filename.
func (c *Converter) Convert(_ context.Context, input domain.ConvertInput) (*domain.ConvertResult, error) {
	return &domain.ConvertResult{
		Markdown: string(input.Content),
		Title:    titleFromPath(input.RelPath),
	}, nil
}

// titleFromPath derives a human title from the filename.
func titleFromPath(path string) string {
	filename := filepath.Base(path)
	if ext := filepath.Ext(filename); ext != "" {
		filename = strings.TrimSuffix(filename, ext)
	}
	filename = strings.ReplaceAll(filename, "_", " ")
	filename = strings.ReplaceAll(filename, "-", " ")
	return strings.TrimSpace(filename)
}
