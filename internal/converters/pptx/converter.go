// Package pptx extracts slide text from PowerPoint OOXML decks.
package pptx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/custodia-labs/gnosis/internal/core/domain"
	"github.com/custodia-labs/gnosis/internal/core/ports/driven"
)

// Ensure Converter implements the interface.
var _ driven.Converter = (*Converter)(nil)

// Converter handles PPTX decks.
type Converter struct{}

// New creates a new PPTX converter.
func New() *Converter {
	return &Converter{}
}

// ID identifies the converter in stored document rows.
func (c *Converter) ID() string {
	return "pptx"
}

// Version is recorded per document.
func (c *Converter) Version() string {
	return "1.0.0"
}

// CanHandle accepts the PowerPoint OOXML MIME and extension.
func (c *Converter) CanHandle(mime, ext string) bool {
	return mime == "application/vnd.openxmlformats-officedocument.presentationml.presentation" ||
		ext == ".pptx"
}

// Convert renders each slide as a markdown section in deck order. The
// first paragraph of a slide becomes its heading.
func (c *Converter) Convert(_ context.Context, input domain.ConvertInput) (*domain.ConvertResult, error) {
	reader, err := zip.NewReader(bytes.NewReader(input.Content), int64(len(input.Content)))
	if err != nil {
		e := domain.WrapError(domain.KindCorrupt, "not a zip container", err)
		e.ConverterID = c.ID()
		e.SourcePath = input.RelPath
		return nil, e
	}

	slides := slideFiles(reader)

	var b strings.Builder
	var warnings []string
	for _, slide := range slides {
		paragraphs, err := readSlideParagraphs(slide.file)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", slide.file.Name, err))
			continue
		}
		if len(paragraphs) == 0 {
			continue
		}
		fmt.Fprintf(&b, "## Slide %d: %s\n\n", slide.number, paragraphs[0])
		for _, para := range paragraphs[1:] {
			b.WriteString(para)
			b.WriteString("\n\n")
		}
	}

	return &domain.ConvertResult{
		Markdown: b.String(),
		Title:    titleFromPath(input.RelPath),
		Warnings: warnings,
	}, nil
}

var slidePattern = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

type slideFile struct {
	number int
	file   *zip.File
}

func slideFiles(reader *zip.Reader) []slideFile {
	var slides []slideFile
	for _, file := range reader.File {
		m := slidePattern.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		slides = append(slides, slideFile{number: n, file: file})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].number < slides[j].number })
	return slides
}

// slideXML collects DrawingML paragraphs; each <a:p> groups its runs.
type slideXML struct {
	Paragraphs []struct {
		Runs []struct {
			Text string `xml:"t"`
		} `xml:"r"`
	} `xml:"cSld>spTree>sp>txBody>p"`
}

func readSlideParagraphs(file *zip.File) ([]string, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	content, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, err
	}

	var slide slideXML
	if err := xml.Unmarshal(content, &slide); err != nil {
		return nil, err
	}

	var paragraphs []string
	for _, para := range slide.Paragraphs {
		var b strings.Builder
		for _, run := range para.Runs {
			b.WriteString(run.Text)
		}
		text := strings.TrimSpace(b.String())
		if text != "" {
			paragraphs = append(paragraphs, text)
		}
	}
	return paragraphs, nil
}

func titleFromPath(path string) string {
	filename := filepath.Base(path)
	if ext := filepath.Ext(filename); ext != "" {
		filename = strings.TrimSuffix(filename, ext)
	}
	filename = strings.ReplaceAll(filename, "_", " ")
	filename = strings.ReplaceAll(filename, "-", " ")
	return strings.TrimSpace(filename)
}
