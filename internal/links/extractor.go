// Package links parses wiki and markdown references out of canonical
// markdown, with 1-based source positions. Code fences are skipped.
package links

import (
	"regexp"
	"strings"

	"github.com/custodia-labs/gnosis/internal/core/domain"
)

var (
	wikiPattern = regexp.MustCompile(`\[\[([^\[\]]+)\]\]`)

	// Markdown links; the optional leading bang distinguishes images,
	// which are not references.
	markdownPattern = regexp.MustCompile(`(!?)\[([^\[\]]*)\]\(([^()\s]+)\)`)
)

// Extract parses all wiki and markdown links in order of appearance.
// Links inside code fences are ignored.
func Extract(markdown string) []domain.Link {
	var out []domain.Link

	fenceMarker := ""
	lineNo := 0
	for _, lineText := range strings.Split(markdown, "\n") {
		lineNo++

		if fenceMarker != "" {
			if fenceClose(lineText, fenceMarker) {
				fenceMarker = ""
			}
			continue
		}
		if marker := fenceOpen(lineText); marker != "" {
			fenceMarker = marker
			continue
		}

		out = append(out, extractWiki(lineText, lineNo)...)
		out = append(out, extractMarkdown(lineText, lineNo)...)
	}
	return out
}

func extractWiki(lineText string, lineNo int) []domain.Link {
	var out []domain.Link
	for _, m := range wikiPattern.FindAllStringSubmatchIndex(lineText, -1) {
		inner := lineText[m[2]:m[3]]

		target := inner
		display := ""
		if i := strings.IndexByte(inner, '|'); i >= 0 {
			target = inner[:i]
			display = strings.TrimSpace(inner[i+1:])
		}

		collection := ""
		if i := strings.IndexByte(target, ':'); i > 0 {
			prefix := target[:i]
			if domain.ValidCollection(prefix) && !strings.Contains(prefix, "/") {
				collection = prefix
				target = target[i+1:]
			}
		}

		anchor := ""
		if i := strings.IndexByte(target, '#'); i >= 0 {
			anchor = target[i+1:]
		}

		target = strings.TrimSpace(target)
		if target == "" && anchor == "" {
			continue
		}

		out = append(out, domain.Link{
			TargetRef:        target,
			TargetRefNorm:    domain.NormalizeRef(target),
			TargetAnchor:     anchor,
			TargetCollection: collection,
			Type:             domain.LinkTypeWiki,
			Text:             display,
			StartLine:        lineNo,
			StartCol:         m[0] + 1,
			EndLine:          lineNo,
			EndCol:           m[1],
			Source:           domain.LinkSourceParsed,
		})
	}
	return out
}

func extractMarkdown(lineText string, lineNo int) []domain.Link {
	var out []domain.Link
	for _, m := range markdownPattern.FindAllStringSubmatchIndex(lineText, -1) {
		if lineText[m[2]:m[3]] == "!" {
			continue // image, not a reference
		}
		text := lineText[m[4]:m[5]]
		target := lineText[m[6]:m[7]]
		if target == "" {
			continue
		}

		anchor := ""
		if i := strings.IndexByte(target, '#'); i >= 0 {
			anchor = target[i+1:]
		}

		out = append(out, domain.Link{
			TargetRef:     target,
			TargetRefNorm: domain.NormalizeRef(target),
			TargetAnchor:  anchor,
			Type:          domain.LinkTypeMarkdown,
			Text:          text,
			StartLine:     lineNo,
			StartCol:      m[0] + 1,
			EndLine:       lineNo,
			EndCol:        m[1],
			Source:        domain.LinkSourceParsed,
		})
	}
	return out
}

func fenceOpen(text string) string {
	trimmed := strings.TrimLeft(text, " ")
	if len(text)-len(trimmed) > 3 {
		return ""
	}
	for _, ch := range []byte{'`', '~'} {
		n := 0
		for n < len(trimmed) && trimmed[n] == ch {
			n++
		}
		if n >= 3 {
			return trimmed[:n]
		}
	}
	return ""
}

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
