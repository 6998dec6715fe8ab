// Package pdf extracts text from PDF documents via MuPDF.
package pdf

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"

	"github.com/custodia-labs/gnosis/internal/core/domain"
	"github.com/custodia-labs/gnosis/internal/core/ports/driven"
)

// Ensure Converter implements the interface.
var _ driven.Converter = (*Converter)(nil)

// Converter handles PDF documents.
type Converter struct{}

// New creates a new PDF converter.
func New() *Converter {
	return &Converter{}
}

// ID identifies the converter in stored document rows.
func (c *Converter) ID() string {
	return "pdf"
}

// Version is recorded per document.
func (c *Converter) Version() string {
	return "1.0.0"
}

// CanHandle accepts PDF.
func (c *Converter) CanHandle(mime, ext string) bool {
	return mime == "application/pdf" || ext == ".pdf"
}

// Convert extracts page text in order, joined by blank lines. Pages
// whose extraction fails are skipped with a warning rather than failing
// the whole document.
func (c *Converter) Convert(_ context.Context, input domain.ConvertInput) (*domain.ConvertResult, error) {
	doc, err := fitz.NewFromMemory(input.Content)
	if err != nil {
		e := domain.WrapError(domain.KindCorrupt, "cannot open pdf", err)
		e.ConverterID = c.ID()
		e.SourcePath = input.RelPath
		return nil, e
	}
	defer doc.Close()

	var pages []string
	var warnings []string
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("page %d: %v", i+1, err))
			continue
		}
		if strings.TrimSpace(text) != "" {
			pages = append(pages, text)
		}
	}

	return &domain.ConvertResult{
		Markdown: strings.Join(pages, "\n\n"),
		Title:    extractTitle(doc, input.RelPath),
		Warnings: warnings,
	}, nil
}

// extractTitle reads the document info title or falls back to filename.
func extractTitle(doc *fitz.Document, path string) string {
	meta := doc.Metadata()
	if title := strings.TrimSpace(meta["title"]); title != "" {
		return title
	}
	filename := filepath.Base(path)
	if ext := filepath.Ext(filename); ext != "" {
		filename = strings.TrimSuffix(filename, ext)
	}
	filename = strings.ReplaceAll(filename, "_", " ")
	filename = strings.ReplaceAll(filename, "-", " ")
	return strings.TrimSpace(filename)
}
