package bertgo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelVocab(t *testing.T) {
	vocab := NewLabelVocab([]string{"contradiction", "entailment", "neutral"})
	assert.Equal(t, 3, vocab.NumClasses())

	for i, label := range []string{"contradiction", "entailment", "neutral"} {
		id, err := vocab.ID(label)
		require.NoError(t, err)
		assert.Equal(t, int32(i), id)
		assert.Equal(t, label, vocab.Label(id))
	}
}

func TestLabelVocabUnknownLabel(t *testing.T) {
	vocab := NewLabelVocab([]string{"0", "1"})
	_, err := vocab.ID("maybe")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `label "maybe" is not in the label vocabulary`)
}
