// Package mimetype detects document MIME types by magic-byte sniffing
// with an extension fallback.
package mimetype

import (
	"bytes"
	"strings"
	"sync"
)

// Confidence grades a detection result.
type Confidence string

// Confidence levels.
const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Method records which rule produced a detection.
type Method string

// Detection methods.
const (
	MethodSniff    Method = "sniff"
	MethodSniffExt Method = "sniff+ext"
	MethodExt      Method = "ext"
	MethodFallback Method = "fallback"
)

// Result is a MIME detection outcome.
type Result struct {
	MIME       string
	Confidence Confidence
	Method     Method
}

// OctetStream is the fallback MIME for unrecognized content.
const OctetStream = "application/octet-stream"

var (
	pdfMagic = []byte("%PDF-")
	zipMagic = []byte("PK\x03\x04")
)

// ooxmlByExt maps OOXML container extensions to their MIME types.
var ooxmlByExt = map[string]string{
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
}

// extTable maps extensions to MIME types for the fallback path.
var extTable = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".mdx":      "text/markdown",
	".txt":      "text/plain",
	".text":     "text/plain",
	".log":      "text/plain",
	".csv":      "text/csv",
	".html":     "text/html",
	".htm":      "text/html",
	".xhtml":    "application/xhtml+xml",
	".json":     "application/json",
	".yaml":     "text/plain",
	".yml":      "text/plain",
	".toml":     "text/plain",
	".pdf":      "application/pdf",
	".docx":     ooxmlByExt[".docx"],
	".xlsx":     ooxmlByExt[".xlsx"],
	".pptx":     ooxmlByExt[".pptx"],
	".zip":      "application/zip",
}

// Detector resolves MIME types from content and extension.
type Detector struct{}

var (
	defaultOnce     sync.Once
	defaultDetector *Detector
)

// Default returns the process-wide detector, created on first use.
func Default() *Detector {
	defaultOnce.Do(func() {
		defaultDetector = New()
	})
	return defaultDetector
}

// New creates a detector.
func New() *Detector {
	return &Detector{}
}

// Detect resolves the MIME type for the given content and extension.
// Priority: pure magic-byte sniff, sniff plus extension for OOXML
// containers, extension table, octet-stream fallback. Extension
// comparison is case-insensitive.
func (d *Detector) Detect(content []byte, ext string) Result {
	ext = strings.ToLower(ext)

	if bytes.HasPrefix(content, pdfMagic) {
		return Result{MIME: "application/pdf", Confidence: ConfidenceHigh, Method: MethodSniff}
	}

	if bytes.HasPrefix(content, zipMagic) {
		if mime, ok := ooxmlByExt[ext]; ok {
			return Result{MIME: mime, Confidence: ConfidenceMedium, Method: MethodSniffExt}
		}
		// ZIP container without a known OOXML extension stays generic.
		return Result{MIME: "application/zip", Confidence: ConfidenceHigh, Method: MethodSniff}
	}

	if mime, ok := extTable[ext]; ok {
		return Result{MIME: mime, Confidence: ConfidenceMedium, Method: MethodExt}
	}

	return Result{MIME: OctetStream, Confidence: ConfidenceLow, Method: MethodFallback}
}
