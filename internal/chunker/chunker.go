// Package chunker splits canonical markdown into contiguous,
// non-overlapping chunks that never cut through a code fence.
package chunker

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/custodia-labs/gnosis/internal/core/domain"
)

// DefaultMaxTokens is the default token budget per chunk.
const DefaultMaxTokens = 400

// DefaultEncoding is the tiktoken encoding used for token counts.
const DefaultEncoding = "cl100k_base"

// TokenCounter counts tokens in a piece of text.
type TokenCounter interface {
	Count(text string) int
}

// Chunker splits markdown along paragraph and fence boundaries.
type Chunker struct {
	maxTokens int
	counter   TokenCounter
}

// Option configures the chunker.
type Option func(*Chunker)

// WithMaxTokens sets the per-chunk token budget.
func WithMaxTokens(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithTokenCounter sets the token counter.
func WithTokenCounter(tc TokenCounter) Option {
	return func(c *Chunker) {
		if tc != nil {
			c.counter = tc
		}
	}
}

// New creates a chunker. Without WithTokenCounter it estimates tokens
// from byte length.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		maxTokens: DefaultMaxTokens,
		counter:   EstimateCounter{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EstimateCounter approximates tokens as byte length over four.
type EstimateCounter struct{}

// Count returns the estimated token count.
func (EstimateCounter) Count(text string) int {
	return len(text) / 4
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter binds a BPE tokenizer for exact token counts.
func NewTiktokenCounter() (TokenCounter, error) {
	enc, err := tiktoken.GetEncoding(DefaultEncoding)
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, "loading tokenizer", err)
	}
	return &tiktokenCounter{enc: enc}, nil
}

func (t *tiktokenCounter) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// line is one source line with its byte offset in the input.
type line struct {
	text   string
	offset int
}

// segment is an indivisible run of lines: a whole fenced code block or
// a paragraph together with its trailing blank lines.
type segment struct {
	startLine int // 0-based index into lines
	endLine   int // inclusive
	fence     bool
	language  string
}

// Chunk splits markdown into chunks covering every byte of the input,
// in order, with seq starting at 0.
func (c *Chunker) Chunk(markdown string) []domain.Chunk {
	if strings.TrimSpace(markdown) == "" {
		return nil
	}

	lines := splitLines(markdown)
	segments := segmentLines(lines)

	var chunks []domain.Chunk
	budget := 0
	var pending []segment

	flush := func() {
		if len(pending) == 0 {
			return
		}
		first, last := pending[0], pending[len(pending)-1]
		startOff := lines[first.startLine].offset
		endOff := len(markdown)
		if last.endLine+1 < len(lines) {
			endOff = lines[last.endLine+1].offset
		}
		text := markdown[startOff:endOff]

		language := ""
		if len(pending) == 1 && first.fence {
			language = first.language
		}

		chunks = append(chunks, domain.Chunk{
			Seq:        len(chunks),
			Pos:        startOff,
			Text:       text,
			StartLine:  first.startLine + 1,
			EndLine:    last.endLine + 1,
			Language:   language,
			TokenCount: c.counter.Count(text),
		})
		pending = nil
		budget = 0
	}

	for _, seg := range segments {
		segText := textOf(markdown, lines, seg)
		segTokens := c.counter.Count(segText)

		if len(pending) > 0 && budget+segTokens > c.maxTokens {
			flush()
		}
		pending = append(pending, seg)
		budget += segTokens

		// A fence is a hard boundary: nothing is packed after it into
		// the same chunk once the budget is spent, and an oversize
		// fence stays whole.
		if seg.fence && budget > c.maxTokens {
			flush()
		}
	}
	flush()

	return chunks
}

func textOf(markdown string, lines []line, seg segment) string {
	startOff := lines[seg.startLine].offset
	endOff := len(markdown)
	if seg.endLine+1 < len(lines) {
		endOff = lines[seg.endLine+1].offset
	}
	return markdown[startOff:endOff]
}

// splitLines returns the input's lines without terminators, each with
// its byte offset.
func splitLines(s string) []line {
	var lines []line
	offset := 0
	for offset <= len(s) {
		end := strings.IndexByte(s[offset:], '\n')
		if end < 0 {
			if offset < len(s) {
				lines = append(lines, line{text: s[offset:], offset: offset})
			}
			break
		}
		lines = append(lines, line{text: s[offset : offset+end], offset: offset})
		offset += end + 1
	}
	return lines
}

// segmentLines groups lines into fence blocks and paragraphs. A
// paragraph owns its trailing blank lines so segments cover the input.
func segmentLines(lines []line) []segment {
	var segments []segment
	i := 0
	for i < len(lines) {
		if marker, language := fenceOpen(lines[i].text); marker != "" {
			end := i
			for j := i + 1; j < len(lines); j++ {
				end = j
				if fenceClose(lines[j].text, marker) {
					break
				}
			}
			// An unterminated fence runs to the end of input.
			segments = append(segments, segment{
				startLine: i, endLine: end, fence: true, language: language,
			})
			i = end + 1
			continue
		}

		start := i
		for i < len(lines) {
			if marker, _ := fenceOpen(lines[i].text); marker != "" {
				break
			}
			blank := strings.TrimSpace(lines[i].text) == ""
			i++
			if blank {
				// Absorb the whole blank run, then end the paragraph.
				for i < len(lines) && strings.TrimSpace(lines[i].text) == "" {
					i++
				}
				break
			}
		}
		segments = append(segments, segment{startLine: start, endLine: i - 1})
	}
	return segments
}

// fenceOpen reports the fence marker ("```" or "~~~", possibly longer)
// and info-string language if the line opens a code fence.
func fenceOpen(text string) (marker, language string) {
	trimmed := strings.TrimLeft(text, " ")
	if len(text)-len(trimmed) > 3 {
		return "", ""
	}
	for _, ch := range []byte{'`', '~'} {
		n := 0
		for n < len(trimmed) && trimmed[n] == ch {
			n++
		}
		if n >= 3 {
			info := strings.TrimSpace(trimmed[n:])
			if ch == '`' && strings.ContainsRune(info, '`') {
				return "", ""
			}
			language = info
			if j := strings.IndexAny(language, " \t"); j >= 0 {
				language = language[:j]
			}
			return trimmed[:n], language
		}
	}
	return "", ""
}

// fenceClose reports whether the line closes a fence opened by marker.
func fenceClose(text, marker string) bool {
	trimmed := strings.TrimLeft(text, " ")
	if len(text)-len(trimmed) > 3 {
		return false
	}
	ch := marker[0]
	n := 0
	for n < len(trimmed) && trimmed[n] == ch {
		n++
	}
	return n >= len(marker) && strings.TrimSpace(trimmed[n:]) == ""
}
