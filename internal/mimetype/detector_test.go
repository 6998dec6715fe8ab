package mimetype

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name       string
		content    []byte
		ext        string
		wantMIME   string
		wantConf   Confidence
		wantMethod Method
	}{
		{
			name:       "pdf magic wins over extension",
			content:    []byte("%PDF-1.7 rest"),
			ext:        ".txt",
			wantMIME:   "application/pdf",
			wantConf:   ConfidenceHigh,
			wantMethod: MethodSniff,
		},
		{
			name:       "zip magic with docx extension",
			content:    []byte("PK\x03\x04....."),
			ext:        ".docx",
			wantMIME:   "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			wantConf:   ConfidenceMedium,
			wantMethod: MethodSniffExt,
		},
		{
			name:       "zip magic with xlsx extension",
			content:    []byte("PK\x03\x04....."),
			ext:        ".xlsx",
			wantMIME:   "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			wantConf:   ConfidenceMedium,
			wantMethod: MethodSniffExt,
		},
		{
			name:       "zip magic with unknown extension",
			content:    []byte("PK\x03\x04....."),
			ext:        ".bin",
			wantMIME:   "application/zip",
			wantConf:   ConfidenceHigh,
			wantMethod: MethodSniff,
		},
		{
			name:       "extension fallback markdown",
			content:    []byte("# heading"),
			ext:        ".md",
			wantMIME:   "text/markdown",
			wantConf:   ConfidenceMedium,
			wantMethod: MethodExt,
		},
		{
			name:       "uppercase extension",
			content:    []byte("plain"),
			ext:        ".TXT",
			wantMIME:   "text/plain",
			wantConf:   ConfidenceMedium,
			wantMethod: MethodExt,
		},
		{
			name:       "unknown falls back to octet-stream",
			content:    []byte{0xde, 0xad, 0xbe, 0xef},
			ext:        ".xyz",
			wantMIME:   OctetStream,
			wantConf:   ConfidenceLow,
			wantMethod: MethodFallback,
		},
	}

	d := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.Detect(tt.content, tt.ext)
			assert.Equal(t, tt.wantMIME, got.MIME)
			assert.Equal(t, tt.wantConf, got.Confidence)
			assert.Equal(t, tt.wantMethod, got.Method)
		})
	}
}

func TestDefault_Singleton(t *testing.T) {
	assert.Same(t, Default(), Default())
}
