// Package html converts HTML sources into markdown.
package html

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"

	"github.com/custodia-labs/gnosis/internal/core/domain"
	"github.com/custodia-labs/gnosis/internal/core/ports/driven"
)

// Ensure Converter implements the interface.
var _ driven.Converter = (*Converter)(nil)

// Converter handles HTML documents.
type Converter struct {
	md *md.Converter
}

// New creates a new HTML converter.
func New() *Converter {
	return &Converter{
		md: md.NewConverter("", true, nil),
	}
}

// ID identifies the converter in stored document rows.
func (c *Converter) ID() string {
	return "html"
}

// Version is recorded per document.
func (c *Converter) Version() string {
	return "1.0.0"
}

// CanHandle accepts HTML and XHTML.
func (c *Converter) CanHandle(mime, ext string) bool {
	switch mime {
	case "text/html", "application/xhtml+xml":
		return true
	}
	switch ext {
	case ".html", ".htm", ".xhtml":
		return true
	}
	return false
}

// Convert transforms HTML to markdown and titles the document from the
// <title> element when present.
func (c *Converter) Convert(_ context.Context, input domain.ConvertInput) (*domain.ConvertResult, error) {
	source := string(input.Content)

	markdown, err := c.md.ConvertString(source)
	if err != nil {
		e := domain.WrapError(domain.KindCorrupt, "html conversion failed", err)
		e.ConverterID = c.ID()
		e.SourcePath = input.RelPath
		return nil, e
	}

	return &domain.ConvertResult{
		Markdown: markdown,
		Title:    extractTitle(source, input.RelPath),
	}, nil
}

var titlePattern = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

// extractTitle pulls the <title> text or falls back to the filename.
func extractTitle(source, path string) string {
	if m := titlePattern.FindStringSubmatch(source); m != nil {
		title := strings.TrimSpace(collapseWhitespace(m[1]))
		if title != "" {
			return title
		}
	}
	filename := filepath.Base(path)
	if ext := filepath.Ext(filename); ext != "" {
		filename = strings.TrimSuffix(filename, ext)
	}
	filename = strings.ReplaceAll(filename, "_", " ")
	filename = strings.ReplaceAll(filename, "-", " ")
	return strings.TrimSpace(filename)
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
