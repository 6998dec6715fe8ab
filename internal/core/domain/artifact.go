package domain

import "time"

// ConvertInput carries a raw file into the conversion pipeline.
type ConvertInput struct {
	// AbsPath is the absolute source path, when known.
	AbsPath string

	// RelPath is the collection-relative path.
	RelPath string

	// Content is the raw source bytes.
	Content []byte

	// MIME is the detected MIME type.
	MIME string

	// Ext is the lowercase extension, including the dot.
	Ext string

	// Limits bound the conversion.
	Limits ConvertLimits
}

// ConvertLimits bound a single conversion call.
type ConvertLimits struct {
	// MaxBytes is the largest accepted input; zero means unlimited.
	MaxBytes int64

	// Timeout bounds converter execution; zero means no deadline.
	Timeout time.Duration
}

// ConvertResult is the raw converter output before canonicalization.
type ConvertResult struct {
	// Markdown is the extracted text. Converters never canonicalize;
	// that happens exactly once in the pipeline so every converter
	// hashes compatibly.
	Markdown string

	// Title is an optional extracted title hint.
	Title string

	// Warnings are non-fatal extraction notes.
	Warnings []string
}

// ConversionArtifact is the pipeline product: canonical text plus its
// content-addressed hash and provenance.
type ConversionArtifact struct {
	// CanonicalMarkdown satisfies the canonicalization rules; its
	// SHA-256 is MirrorHash.
	CanonicalMarkdown string

	// MirrorHash is the lowercase 64-hex SHA-256 of CanonicalMarkdown.
	MirrorHash string

	// Title is the extracted title hint, if any.
	Title string

	// LanguageHint is a BCP-47 tag guessed from the canonical text.
	LanguageHint string

	// ConverterID and ConverterVersion record provenance.
	ConverterID      string
	ConverterVersion string

	// SourceMIME is the MIME the converter was selected for.
	SourceMIME string

	// Warnings are non-fatal extraction notes.
	Warnings []string
}
