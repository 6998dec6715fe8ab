package rerank

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/gnosis/internal/core/domain"
	"github.com/custodia-labs/gnosis/internal/core/ports/driven"
)

func genReturning(out string) GenerateFunc {
	return func(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
		return out, nil
	}
}

func TestScores_ParsesBareArray(t *testing.T) {
	scores, err := Scores(context.Background(), genReturning("[0.9, 0.2, 0.5]"), "q", []string{"a", "b", "c"})

	require.NoError(t, err)
	assert.Equal(t, []float64{0.9, 0.2, 0.5}, scores)
}

func TestScores_ExtractsArrayFromWrapper(t *testing.T) {
	out := "Here are the scores:\n```json\n{\"scores\": [1.0, 0.0]}\n```"
	scores, err := Scores(context.Background(), genReturning(out), "q", []string{"a", "b"})

	require.NoError(t, err)
	assert.Equal(t, []float64{1.0, 0.0}, scores)
}

func TestScores_ClampsOutOfRange(t *testing.T) {
	scores, err := Scores(context.Background(), genReturning("[-0.5, 1.7]"), "q", []string{"a", "b"})

	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, scores)
}

func TestScores_CountMismatchRejected(t *testing.T) {
	_, err := Scores(context.Background(), genReturning("[0.5]"), "q", []string{"a", "b"})

	require.Error(t, err)
	assert.Equal(t, domain.KindAdapterFailure, domain.KindOf(err))
}

func TestScores_NoArrayRejected(t *testing.T) {
	_, err := Scores(context.Background(), genReturning("cannot comply"), "q", []string{"a"})

	require.Error(t, err)
	assert.Equal(t, domain.KindAdapterFailure, domain.KindOf(err))
}

func TestScores_EmptyPassages(t *testing.T) {
	scores, err := Scores(context.Background(), genReturning("[]"), "q", nil)

	require.NoError(t, err)
	assert.Nil(t, scores)
}

func TestScores_PromptNamesEveryPassage(t *testing.T) {
	var captured string
	gen := func(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
		captured = prompt
		assert.True(t, opts.JSONOnly)
		return "[0.1, 0.2]", nil
	}

	_, err := Scores(context.Background(), gen, "tuning guide", []string{"first passage", "second passage"})

	require.NoError(t, err)
	assert.Contains(t, captured, "tuning guide")
	assert.Contains(t, captured, "first passage")
	assert.Contains(t, captured, "second passage")
	assert.Contains(t, captured, "exactly 2 numbers")
}
