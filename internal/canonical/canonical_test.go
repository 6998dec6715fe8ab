package canonical

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "crlf and blank collapse",
			input:    "# T\r\n\r\nA  \r\n\r\n\r\nB\r\n\r\n",
			expected: "# T\n\nA\n\nB\n",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "\n",
		},
		{
			name:     "whitespace-only lines",
			input:    "   \n\t\n  \t ",
			expected: "\n",
		},
		{
			name:     "lone carriage returns",
			input:    "a\rb\rc",
			expected: "a\nb\nc\n",
		},
		{
			name:     "trailing whitespace trimmed",
			input:    "hello   \nworld\t\t\n",
			expected: "hello\nworld\n",
		},
		{
			name:     "control characters stripped",
			input:    "a\x00b\x1fc\x7fd",
			expected: "abcd\n",
		},
		{
			name:     "tab preserved",
			input:    "col1\tcol2\n",
			expected: "col1\tcol2\n",
		},
		{
			name:     "missing trailing newline added",
			input:    "hello",
			expected: "hello\n",
		},
		{
			name:     "many trailing newlines collapsed",
			input:    "hello\n\n\n\n",
			expected: "hello\n",
		},
		{
			name:     "interior blank run collapsed",
			input:    "a\n\n\n\n\nb\n",
			expected: "a\n\nb\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Canonicalize(tt.input))
		})
	}
}

func TestCanonicalize_Idempotent(t *testing.T) {
	inputs := []string{
		"# T\r\n\r\nA  \r\n\r\n\r\nB\r\n\r\n",
		"",
		"plain text",
		"a\n\nb\n\nc\n",
		"unicode: café — résumé\n",
		"code\tfence\n```\nx = 1\n```\n",
	}

	for _, input := range inputs {
		once := Canonicalize(input)
		twice := Canonicalize(once)
		assert.Equal(t, once, twice, "canonicalize must be idempotent for %q", input)
	}
}

func TestCanonicalize_NoForbiddenBytes(t *testing.T) {
	out := Canonicalize("a\r\nb\x01c\x7f\n\n\n\nend   \n")

	assert.NotContains(t, out, "\r")
	for _, r := range out {
		if r < 0x20 {
			assert.True(t, r == '\n' || r == '\t', "forbidden control char %q", r)
		}
		assert.NotEqual(t, rune(0x7f), r)
	}
	require.True(t, strings.HasSuffix(out, "\n"))
	assert.False(t, strings.HasSuffix(out, "\n\n"))
}

func TestHash_KnownVector(t *testing.T) {
	// SHA256("hello\n")
	const want = "5891b5b522d5df086d0ff0b110fbd9d21bb4fc7163af34d08286a2e846f6be03"

	assert.Equal(t, want, Hash(Canonicalize("hello")))
	assert.Equal(t, want, Hash("hello\n"))
}

func TestHash_EmptyInput(t *testing.T) {
	// Empty input canonicalizes to a single newline.
	assert.Equal(t, Hash("\n"), Hash(Canonicalize("")))
	assert.Len(t, Hash("\n"), 64)
}
