// Package xlsx extracts cell text from Excel OOXML workbooks.
package xlsx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/custodia-labs/gnosis/internal/core/domain"
	"github.com/custodia-labs/gnosis/internal/core/ports/driven"
)

// Ensure Converter implements the interface.
var _ driven.Converter = (*Converter)(nil)

// Converter handles XLSX workbooks.
type Converter struct{}

// New creates a new XLSX converter.
func New() *Converter {
	return &Converter{}
}

// ID identifies the converter in stored document rows.
func (c *Converter) ID() string {
	return "xlsx"
}

// Version is recorded per document.
func (c *Converter) Version() string {
	return "1.0.0"
}

// CanHandle accepts the Excel OOXML MIME and extension.
func (c *Converter) CanHandle(mime, ext string) bool {
	return mime == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" ||
		ext == ".xlsx"
}

// Convert renders each worksheet as a markdown pipe table under a
// per-sheet heading. Sheets are ordered by archive path so output is
// deterministic.
func (c *Converter) Convert(_ context.Context, input domain.ConvertInput) (*domain.ConvertResult, error) {
	reader, err := zip.NewReader(bytes.NewReader(input.Content), int64(len(input.Content)))
	if err != nil {
		e := domain.WrapError(domain.KindCorrupt, "not a zip container", err)
		e.ConverterID = c.ID()
		e.SourcePath = input.RelPath
		return nil, e
	}

	shared, err := readSharedStrings(reader)
	if err != nil {
		e := domain.WrapError(domain.KindCorrupt, "cannot parse shared strings", err)
		e.ConverterID = c.ID()
		e.SourcePath = input.RelPath
		return nil, e
	}

	var sheetFiles []*zip.File
	for _, file := range reader.File {
		if strings.HasPrefix(file.Name, "xl/worksheets/sheet") && strings.HasSuffix(file.Name, ".xml") {
			sheetFiles = append(sheetFiles, file)
		}
	}
	sort.Slice(sheetFiles, func(i, j int) bool { return sheetFiles[i].Name < sheetFiles[j].Name })

	var b strings.Builder
	var warnings []string
	for i, file := range sheetFiles {
		rows, err := readSheetRows(file, shared)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", file.Name, err))
			continue
		}
		if len(rows) == 0 {
			continue
		}
		fmt.Fprintf(&b, "## Sheet %d\n\n", i+1)
		writeTable(&b, rows)
		b.WriteString("\n")
	}

	return &domain.ConvertResult{
		Markdown: b.String(),
		Title:    titleFromPath(input.RelPath),
		Warnings: warnings,
	}, nil
}

// sharedStringsXML mirrors xl/sharedStrings.xml. A string item holds
// either a single <t> or multiple rich-text runs.
type sharedStringsXML struct {
	Items []struct {
		Text string `xml:"t"`
		Runs []struct {
			Text string `xml:"t"`
		} `xml:"r"`
	} `xml:"si"`
}

func readSharedStrings(reader *zip.Reader) ([]string, error) {
	for _, file := range reader.File {
		if file.Name != "xl/sharedStrings.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, err
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		var ss sharedStringsXML
		if err := xml.Unmarshal(content, &ss); err != nil {
			return nil, err
		}
		out := make([]string, len(ss.Items))
		for i, item := range ss.Items {
			if len(item.Runs) > 0 {
				var b strings.Builder
				for _, r := range item.Runs {
					b.WriteString(r.Text)
				}
				out[i] = b.String()
				continue
			}
			out[i] = item.Text
		}
		return out, nil
	}
	return nil, nil
}

// worksheetXML mirrors the row/cell subset of a worksheet part.
type worksheetXML struct {
	Rows []struct {
		Cells []struct {
			Ref   string `xml:"r,attr"`
			Type  string `xml:"t,attr"`
			Value string `xml:"v"`
			// Inline strings bypass the shared table.
			Inline struct {
				Text string `xml:"t"`
			} `xml:"is"`
		} `xml:"c"`
	} `xml:"sheetData>row"`
}

func readSheetRows(file *zip.File, shared []string) ([][]string, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	content, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, err
	}

	var ws worksheetXML
	if err := xml.Unmarshal(content, &ws); err != nil {
		return nil, err
	}

	var rows [][]string
	for _, row := range ws.Rows {
		var cells []string
		for _, cell := range row.Cells {
			// Pad skipped columns so table columns stay aligned.
			for col := columnIndex(cell.Ref); col > len(cells); {
				cells = append(cells, "")
			}
			cells = append(cells, cellValue(cell.Type, cell.Value, cell.Inline.Text, shared))
		}
		if !allBlank(cells) {
			rows = append(rows, cells)
		}
	}
	return rows, nil
}

func cellValue(cellType, value, inline string, shared []string) string {
	switch cellType {
	case "s":
		idx, err := strconv.Atoi(value)
		if err != nil || idx < 0 || idx >= len(shared) {
			return ""
		}
		return shared[idx]
	case "inlineStr":
		return inline
	case "b":
		if value == "1" {
			return "TRUE"
		}
		return "FALSE"
	default:
		return value
	}
}

// columnIndex decodes the column letters of an A1-style reference to a
// zero-based index. Unparseable references map to 0.
func columnIndex(ref string) int {
	col := 0
	for _, r := range ref {
		if r < 'A' || r > 'Z' {
			break
		}
		col = col*26 + int(r-'A') + 1
	}
	if col == 0 {
		return 0
	}
	return col - 1
}

func allBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func writeTable(b *strings.Builder, rows [][]string) {
	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	for i, row := range rows {
		b.WriteString("|")
		for col := 0; col < width; col++ {
			cell := ""
			if col < len(row) {
				cell = row[col]
			}
			b.WriteString(" ")
			b.WriteString(escapeCell(cell))
			b.WriteString(" |")
		}
		b.WriteString("\n")
		if i == 0 {
			b.WriteString("|")
			for col := 0; col < width; col++ {
				b.WriteString(" --- |")
			}
			b.WriteString("\n")
		}
	}
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.Join(strings.Fields(s), " ")
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
