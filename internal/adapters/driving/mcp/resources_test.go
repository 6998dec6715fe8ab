package mcp

import (
	"context"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/gnosis/internal/core/domain"
)

func readRequest(uri string) *mcp.ReadResourceRequest {
	return &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{URI: uri},
	}
}

func TestServer_handleCollectionsResource(t *testing.T) {
	ctx := context.Background()

	t.Run("lists collections", func(t *testing.T) {
		ports := testPorts()
		ports.Store = &mockResourceStore{
			collections: []domain.Collection{
				{Name: "notes", RootPath: "/home/me/notes", CreatedAt: time.Now()},
			},
		}
		server, err := NewServer(ports)
		require.NoError(t, err)

		result, err := server.handleCollectionsResource(ctx, readRequest("gnosis://collections"))

		require.NoError(t, err)
		require.Len(t, result.Contents, 1)
		assert.Contains(t, result.Contents[0].Text, `"name": "notes"`)
		assert.Contains(t, result.Contents[0].Text, `"root": "/home/me/notes"`)
	})

	t.Run("no store answers empty list", func(t *testing.T) {
		server, err := NewServer(testPorts())
		require.NoError(t, err)

		result, err := server.handleCollectionsResource(ctx, readRequest("gnosis://collections"))

		require.NoError(t, err)
		require.Len(t, result.Contents, 1)
		assert.Equal(t, "[]", result.Contents[0].Text)
	})
}

func TestServer_handleDocumentsResource(t *testing.T) {
	ctx := context.Background()

	t.Run("lists documents of a collection", func(t *testing.T) {
		ports := testPorts()
		ports.Store = &mockResourceStore{
			documents: []domain.Document{
				{DocID: "#a1b2c3d4", Title: "Alpha", URI: "gno://notes/a.md", RelPath: "a.md", Active: true},
			},
		}
		server, err := NewServer(ports)
		require.NoError(t, err)

		result, err := server.handleDocumentsResource(ctx, readRequest("gnosis://collections/notes/documents"))

		require.NoError(t, err)
		require.Len(t, result.Contents, 1)
		assert.Contains(t, result.Contents[0].Text, `"docid": "#a1b2c3d4"`)
		assert.Contains(t, result.Contents[0].Text, `"active": true`)
	})

	t.Run("malformed URI is not found", func(t *testing.T) {
		ports := testPorts()
		ports.Store = &mockResourceStore{}
		server, err := NewServer(ports)
		require.NoError(t, err)

		_, err = server.handleDocumentsResource(ctx, readRequest("gnosis://collections/notes"))

		assert.Error(t, err)
	})
}

func TestServer_handleDocumentContentResource(t *testing.T) {
	ctx := context.Background()

	t.Run("returns canonical markdown", func(t *testing.T) {
		ports := testPorts()
		ports.Store = &mockResourceStore{
			document: &domain.Document{DocID: "#a1b2c3d4", MirrorHash: "abc123"},
			content:  &domain.Content{MirrorHash: "abc123", Markdown: "# Alpha\n\nbody"},
		}
		server, err := NewServer(ports)
		require.NoError(t, err)

		result, err := server.handleDocumentContentResource(ctx, readRequest("gnosis://documents/#a1b2c3d4"))

		require.NoError(t, err)
		require.Len(t, result.Contents, 1)
		assert.Equal(t, "# Alpha\n\nbody", result.Contents[0].Text)
		assert.Equal(t, "text/markdown", result.Contents[0].MIMEType)
	})

	t.Run("unconverted document is not found", func(t *testing.T) {
		ports := testPorts()
		ports.Store = &mockResourceStore{
			document: &domain.Document{DocID: "#a1b2c3d4"},
		}
		server, err := NewServer(ports)
		require.NoError(t, err)

		_, err = server.handleDocumentContentResource(ctx, readRequest("gnosis://documents/#a1b2c3d4"))

		assert.Error(t, err)
	})

	t.Run("no store is not found", func(t *testing.T) {
		server, err := NewServer(testPorts())
		require.NoError(t, err)

		_, err = server.handleDocumentContentResource(ctx, readRequest("gnosis://documents/#a1b2c3d4"))

		assert.Error(t, err)
	})
}

func TestExtractCollection(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"gnosis://collections/notes/documents", "notes"},
		{"gnosis://collections/notes", ""},
		{"gnosis://documents/notes/documents", ""},
		{"other://collections/notes/documents", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, extractCollection(tt.uri), tt.uri)
	}
}

func TestExtractDocID(t *testing.T) {
	assert.Equal(t, "#a1b2c3d4", extractDocID("gnosis://documents/#a1b2c3d4"))
	assert.Equal(t, "", extractDocID("gnosis://collections"))
}
