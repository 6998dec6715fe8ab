package links

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/gnosis/internal/core/domain"
)

func TestExtract_WikiLink(t *testing.T) {
	tests := []struct {
		name       string
		markdown   string
		ref        string
		norm       string
		anchor     string
		collection string
		text       string
	}{
		{
			name:     "bare target",
			markdown: "see [[Other Note]]\n",
			ref:      "Other Note",
			norm:     "other note",
		},
		{
			name:     "display text",
			markdown: "see [[Other Note|that note]]\n",
			ref:      "Other Note",
			norm:     "other note",
			text:     "that note",
		},
		{
			name:     "anchor",
			markdown: "see [[Other Note#setup]]\n",
			ref:      "Other Note#setup",
			norm:     "other note",
			anchor:   "setup",
		},
		{
			name:       "collection prefix",
			markdown:   "see [[work:Design Doc]]\n",
			ref:        "Design Doc",
			norm:       "design doc",
			collection: "work",
		},
		{
			name:       "everything at once",
			markdown:   "see [[work:Design Doc#api|the API section]]\n",
			ref:        "Design Doc#api",
			norm:       "design doc",
			anchor:     "api",
			collection: "work",
			text:       "the API section",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.markdown)
			require.Len(t, got, 1)
			link := got[0]
			assert.Equal(t, domain.LinkTypeWiki, link.Type)
			assert.Equal(t, tt.ref, link.TargetRef)
			assert.Equal(t, tt.norm, link.TargetRefNorm)
			assert.Equal(t, tt.anchor, link.TargetAnchor)
			assert.Equal(t, tt.collection, link.TargetCollection)
			assert.Equal(t, tt.text, link.Text)
			assert.Equal(t, domain.LinkSourceParsed, link.Source)
		})
	}
}

func TestExtract_MarkdownLink(t *testing.T) {
	got := Extract("read [the guide](docs/guide.md#install) first\n")
	require.Len(t, got, 1)
	link := got[0]
	assert.Equal(t, domain.LinkTypeMarkdown, link.Type)
	assert.Equal(t, "docs/guide.md#install", link.TargetRef)
	assert.Equal(t, "docs/guide.md", link.TargetRefNorm)
	assert.Equal(t, "install", link.TargetAnchor)
	assert.Equal(t, "the guide", link.Text)
}

func TestExtract_SkipsImages(t *testing.T) {
	got := Extract("![diagram](assets/diagram.png) and [real](doc.md)\n")
	require.Len(t, got, 1)
	assert.Equal(t, "doc.md", got[0].TargetRef)
}

func TestExtract_Positions(t *testing.T) {
	markdown := "intro\n" +
		"a [[First]] then [link](second.md)\n"

	got := Extract(markdown)
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, 2, first.StartLine)
	assert.Equal(t, 2, first.EndLine)
	assert.Equal(t, 3, first.StartCol)
	assert.Equal(t, 11, first.EndCol)

	second := got[1]
	assert.Equal(t, 2, second.StartLine)
	assert.Equal(t, 18, second.StartCol)
	assert.Equal(t, 34, second.EndCol)
}

func TestExtract_SkipsFences(t *testing.T) {
	markdown := "before [[Kept]]\n" +
		"```\n" +
		"[[ignored]] and [also](ignored.md)\n" +
		"```\n" +
		"after [kept too](after.md)\n"

	got := Extract(markdown)
	require.Len(t, got, 2)
	assert.Equal(t, "Kept", got[0].TargetRef)
	assert.Equal(t, "after.md", got[1].TargetRef)
}

func TestExtract_UnterminatedFence(t *testing.T) {
	markdown := "```\n[[never seen]]\n"
	assert.Empty(t, Extract(markdown))
}

func TestExtract_MultiplePerLine(t *testing.T) {
	got := Extract("[[One]] [[Two]] [three](3.md)\n")
	require.Len(t, got, 3)
	assert.Equal(t, "One", got[0].TargetRef)
	assert.Equal(t, "Two", got[1].TargetRef)
	assert.Equal(t, "3.md", got[2].TargetRef)
	assert.Less(t, got[0].StartCol, got[1].StartCol)
}

func TestExtract_IgnoresEmptyTargets(t *testing.T) {
	assert.Empty(t, Extract("[[]] [[ ]] [x]()\n"))
}

func TestExtract_CollectionPrefixMustBeValid(t *testing.T) {
	// An uppercase prefix is not a collection name; the colon stays in
	// the target.
	got := Extract("[[NOT:a collection]]\n")
	require.Len(t, got, 1)
	assert.Empty(t, got[0].TargetCollection)
	assert.Equal(t, "NOT:a collection", got[0].TargetRef)
}
