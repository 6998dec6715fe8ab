package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/gnosis/internal/core/domain"
)

func rankedFixture() []domain.RankedResult {
	return []domain.RankedResult{
		{
			DocID:   "#a1b2c3d4",
			Score:   0.91,
			URI:     "gno://notes/intro.md",
			Title:   "Introduction",
			Snippet: "an opening passage",
			Source:  domain.ResultSource{RelPath: "intro.md", MIME: "text/markdown", Ext: ".md"},
		},
	}
}

func TestSearchCmd_Use(t *testing.T) {
	assert.Equal(t, "search [query]", searchCmd.Use)
}

func TestSearchCmd_RequiresExactlyOneArg(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	_, err := execute(t, "search")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestSearchCmd_HasLimitFlag(t *testing.T) {
	flag := searchCmd.Flags().Lookup("limit")
	require.NotNil(t, flag, "limit flag should exist")
	assert.Equal(t, "n", flag.Shorthand)
	assert.Equal(t, "10", flag.DefValue)
}

func TestSearchCmd_DefaultsToBM25(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	search := &mockSearch{results: rankedFixture()}
	searchService = search

	out, err := execute(t, "search", "raft consensus")

	require.NoError(t, err)
	assert.Equal(t, "bm25", search.lastMode)
	assert.Contains(t, out, "Results:")
	assert.Contains(t, out, "Introduction")
	assert.Contains(t, out, "#a1b2c3d4")
}

func TestSearchCmd_VectorFlag(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	defer func() { searchVector = false }()

	search := &mockSearch{results: rankedFixture()}
	searchService = search

	_, err := execute(t, "search", "--vector", "raft consensus")

	require.NoError(t, err)
	assert.Equal(t, "vector", search.lastMode)
}

func TestSearchCmd_PassesOptions(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	defer func() {
		searchLimit = 10
		searchCollection = ""
	}()

	search := &mockSearch{}
	searchService = search

	_, err := execute(t, "search", "--limit", "25", "--collection", "notes", "query")

	require.NoError(t, err)
	assert.Equal(t, 25, search.lastOpts.Limit)
	assert.Equal(t, "notes", search.lastOpts.Collection)
}

func TestSearchCmd_JSONOutput(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	defer func() { searchJSON = false }()

	searchService = &mockSearch{results: rankedFixture()}

	out, err := execute(t, "search", "--json", "query")

	require.NoError(t, err)
	assert.Contains(t, out, `"docid": "#a1b2c3d4"`)
	assert.Contains(t, out, `"score": 0.91`)
}

func TestSearchCmd_JSONEmptyResultsIsArray(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	defer func() { searchJSON = false }()

	searchService = &mockSearch{}

	out, err := execute(t, "search", "--json", "query")

	require.NoError(t, err)
	assert.Contains(t, out, "[]")
}

func TestSearchCmd_NoResults(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	searchService = &mockSearch{}

	out, err := execute(t, "search", "query")

	require.NoError(t, err)
	assert.Contains(t, out, "No results found.")
}

func TestSearchCmd_ServiceNotConfigured(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	searchService = nil

	_, err := execute(t, "search", "query")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "search service not configured")
}

func TestSearchCmd_PropagatesError(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	searchService = &mockSearch{err: domain.NewError(domain.KindVecUnavailable, "vector search unavailable")}

	_, err := execute(t, "search", "query")

	require.Error(t, err)
	assert.Equal(t, domain.KindVecUnavailable, domain.KindOf(err))
}
