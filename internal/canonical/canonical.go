// Package canonical normalizes text into the canonical byte form whose
// SHA-256 is the content-addressed mirror hash. The rules here are a
// compatibility contract: changing them invalidates every stored hash.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Canonicalize transforms arbitrary text into canonical form:
//
//  1. Line endings normalized: \r\n and lone \r become \n.
//  2. Unicode NFC normalization.
//  3. Control characters U+0000-U+001F and U+007F stripped, except
//     tab and newline.
//  4. Trailing whitespace trimmed on every line.
//  5. Whitespace-only lines treated as blank.
//  6. Runs of two or more blank lines collapsed to one.
//  7. Exactly one trailing newline.
//
// Empty input yields a single newline. Canonicalize is idempotent.
func Canonicalize(text string) string {
	text = normalizeLineEndings(text)
	text = norm.NFC.String(text)
	text = stripControl(text)

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blankRun := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			blankRun++
			if blankRun > 1 {
				continue
			}
		} else {
			blankRun = 0
		}
		out = append(out, line)
	}

	// Trailing blank lines would become extra newlines; drop them so
	// exactly one final newline remains.
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}

	if len(out) == 0 {
		return "\n"
	}
	return strings.Join(out, "\n") + "\n"
}

// Hash returns the lowercase 64-hex SHA-256 of the given canonical text.
func Hash(canonicalText string) string {
	sum := sha256.Sum256([]byte(canonicalText))
	return hex.EncodeToString(sum[:])
}

// HashBytes returns the lowercase 64-hex SHA-256 of raw bytes.
// Used for source hashes, which are not canonicalized.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func normalizeLineEndings(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

func stripControl(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == '\t' || r == '\n' {
			b.WriteRune(r)
			continue
		}
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
