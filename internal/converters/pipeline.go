package converters

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/abadojack/whatlanggo"

	"github.com/custodia-labs/gnosis/internal/canonical"
	"github.com/custodia-labs/gnosis/internal/core/domain"
	"github.com/custodia-labs/gnosis/internal/core/ports/driven"
)

// Pipeline runs one conversion call per file: select converter, invoke
// it under the input limits, canonicalize the markdown and hash it.
type Pipeline struct {
	registry *Registry
}

// NewPipeline creates a pipeline over the given registry.
func NewPipeline(registry *Registry) *Pipeline {
	return &Pipeline{registry: registry}
}

var (
	defaultOnce     sync.Once
	defaultPipeline *Pipeline
)

// Default returns the process-wide pipeline with the standard converter
// set. Concurrent first calls share one initialization.
func Default() *Pipeline {
	defaultOnce.Do(func() {
		defaultPipeline = NewPipeline(DefaultRegistry())
	})
	return defaultPipeline
}

// Convert selects a converter for the input, runs it, canonicalizes the
// markdown and returns the content-addressed artifact. Converter errors
// pass through unchanged.
func (p *Pipeline) Convert(ctx context.Context, input domain.ConvertInput) (*domain.ConversionArtifact, error) {
	if input.Limits.MaxBytes > 0 && int64(len(input.Content)) > input.Limits.MaxBytes {
		e := domain.NewError(domain.KindTooLarge,
			fmt.Sprintf("source is %d bytes, limit %d", len(input.Content), input.Limits.MaxBytes))
		e.SourcePath = input.RelPath
		e.MIME = input.MIME
		e.Ext = input.Ext
		return nil, e
	}

	conv, err := p.registry.Select(input.MIME, input.Ext)
	if err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			de.SourcePath = input.RelPath
		}
		return nil, err
	}

	result, err := p.invoke(ctx, conv, input)
	if err != nil {
		return nil, err
	}

	text := canonical.Canonicalize(result.Markdown)
	return &domain.ConversionArtifact{
		CanonicalMarkdown: text,
		MirrorHash:        canonical.Hash(text),
		Title:             result.Title,
		LanguageHint:      languageHint(text),
		ConverterID:       conv.ID(),
		ConverterVersion:  conv.Version(),
		SourceMIME:        input.MIME,
		Warnings:          result.Warnings,
	}, nil
}

// invoke races the converter against the configured timeout. On fire it
// returns a TIMEOUT error; the underlying library work may continue in
// the background, there is no process isolation.
func (p *Pipeline) invoke(ctx context.Context, conv driven.Converter, input domain.ConvertInput) (*domain.ConvertResult, error) {
	if input.Limits.Timeout <= 0 {
		return p.run(ctx, conv, input)
	}

	ctx, cancel := context.WithTimeout(ctx, input.Limits.Timeout)
	defer cancel()

	type outcome struct {
		result *domain.ConvertResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := p.run(ctx, conv, input)
		done <- outcome{result, err}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-ctx.Done():
		e := domain.WrapError(domain.KindTimeout,
			fmt.Sprintf("converter %s exceeded %s", conv.ID(), input.Limits.Timeout), ctx.Err())
		e.ConverterID = conv.ID()
		e.SourcePath = input.RelPath
		return nil, e
	}
}

// run invokes the converter, turning panics into ADAPTER_FAILURE so one
// corrupt file cannot take down a batch.
func (p *Pipeline) run(ctx context.Context, conv driven.Converter, input domain.ConvertInput) (result *domain.ConvertResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			e := domain.NewError(domain.KindAdapterFailure,
				fmt.Sprintf("converter %s panicked: %v", conv.ID(), r))
			e.ConverterID = conv.ID()
			e.SourcePath = input.RelPath
			result, err = nil, e
		}
	}()
	return conv.Convert(ctx, input)
}

// languageHint guesses the dominant language of the canonical text and
// returns its ISO 639-3 code, or empty when detection is unreliable.
func languageHint(text string) string {
	const sample = 4096
	if len(text) > sample {
		text = text[:sample]
	}
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6393()
}
