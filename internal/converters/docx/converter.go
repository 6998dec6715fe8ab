// Package docx extracts text from Word OOXML documents.
package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/gnosis/internal/core/domain"
	"github.com/custodia-labs/gnosis/internal/core/ports/driven"
)

// Ensure Converter implements the interface.
var _ driven.Converter = (*Converter)(nil)

// Converter handles DOCX documents.
type Converter struct{}

// New creates a new DOCX converter.
func New() *Converter {
	return &Converter{}
}

// ID identifies the converter in stored document rows.
func (c *Converter) ID() string {
	return "docx"
}

// Version is recorded per document.
func (c *Converter) Version() string {
	return "1.0.0"
}

// CanHandle accepts the Word OOXML MIME and extension.
func (c *Converter) CanHandle(mime, ext string) bool {
	return mime == "application/vnd.openxmlformats-officedocument.wordprocessingml.document" ||
		ext == ".docx"
}

// Convert opens the OOXML container and renders word/document.xml as
// markdown, mapping Heading styles to ATX headings.
func (c *Converter) Convert(_ context.Context, input domain.ConvertInput) (*domain.ConvertResult, error) {
	reader, err := zip.NewReader(bytes.NewReader(input.Content), int64(len(input.Content)))
	if err != nil {
		e := domain.WrapError(domain.KindCorrupt, "not a zip container", err)
		e.ConverterID = c.ID()
		e.SourcePath = input.RelPath
		return nil, e
	}

	markdown, err := extractDocument(reader)
	if err != nil {
		e := domain.WrapError(domain.KindCorrupt, "cannot parse word/document.xml", err)
		e.ConverterID = c.ID()
		e.SourcePath = input.RelPath
		return nil, e
	}

	return &domain.ConvertResult{
		Markdown: markdown,
		Title:    extractTitle(reader, input.RelPath),
	}, nil
}

func extractDocument(reader *zip.Reader) (string, error) {
	content, err := readZipFile(reader, "word/document.xml")
	if err != nil {
		return "", err
	}
	if content == nil {
		return "", nil
	}
	return renderDocumentXML(content)
}

// documentXML mirrors the subset of word/document.xml we render.
type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
	} `xml:"body"`
}

type paragraph struct {
	Props struct {
		Style struct {
			Val string `xml:"val,attr"`
		} `xml:"pStyle"`
	} `xml:"pPr"`
	Runs []run `xml:"r"`
}

type run struct {
	Text   []textElement `xml:"t"`
	Breaks []struct{}    `xml:"br"`
	Tabs   []struct{}    `xml:"tab"`
}

type textElement struct {
	Content string `xml:",chardata"`
}

func renderDocumentXML(content []byte) (string, error) {
	var doc documentXML
	if err := xml.Unmarshal(content, &doc); err != nil {
		return "", err
	}

	var b strings.Builder
	for _, para := range doc.Body.Paragraphs {
		text := paragraphText(para)
		if strings.TrimSpace(text) == "" {
			continue
		}
		if level := headingLevel(para.Props.Style.Val); level > 0 {
			b.WriteString(strings.Repeat("#", level))
			b.WriteString(" ")
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	}
	return b.String(), nil
}

func paragraphText(para paragraph) string {
	var b strings.Builder
	for _, r := range para.Runs {
		for range r.Tabs {
			b.WriteString("\t")
		}
		for _, t := range r.Text {
			b.WriteString(t.Content)
		}
		for range r.Breaks {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// headingLevel maps Word paragraph styles Heading1..Heading6 (and the
// Title style) to markdown heading levels.
func headingLevel(style string) int {
	style = strings.ToLower(style)
	if style == "title" {
		return 1
	}
	if rest, ok := strings.CutPrefix(style, "heading"); ok && len(rest) == 1 {
		if rest[0] >= '1' && rest[0] <= '6' {
			return int(rest[0] - '0')
		}
	}
	return 0
}

// coreXML mirrors docProps/core.xml.
type coreXML struct {
	Title string `xml:"title"`
}

// extractTitle reads docProps/core.xml or falls back to the filename.
func extractTitle(reader *zip.Reader, path string) string {
	if content, err := readZipFile(reader, "docProps/core.xml"); err == nil && content != nil {
		var core coreXML
		if err := xml.Unmarshal(content, &core); err == nil {
			if title := strings.TrimSpace(core.Title); title != "" {
				return title
			}
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

func readZipFile(reader *zip.Reader, name string) ([]byte, error) {
	for _, file := range reader.File {
		if file.Name != name {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, nil
}
