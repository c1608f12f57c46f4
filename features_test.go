package bertgo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExampleToFeaturesPair(t *testing.T) {
	tok, err := NewFullTokenizer(testVocab(t), true)
	require.NoError(t, err)

	record := ExampleToFeatures("the cat", "sat", 10, tok)
	// [CLS] the cat [SEP] sat [SEP] plus padding
	assert.Equal(t, []int32{2, 4, 5, 3, 6, 3, 0, 0, 0, 0}, record.InputIDs)
	assert.Equal(t, []int32{0, 0, 0, 0, 1, 1, 0, 0, 0, 0}, record.InputTypeIDs)
	assert.Equal(t, []int32{1, 1, 1, 1, 1, 1, 0, 0, 0, 0}, record.InputMask)
}

func TestExampleToFeaturesSingle(t *testing.T) {
	tok, err := NewFullTokenizer(testVocab(t), true)
	require.NoError(t, err)

	record := ExampleToFeatures("the cat", "", 6, tok)
	assert.Equal(t, []int32{2, 4, 5, 3, 0, 0}, record.InputIDs)
	assert.Equal(t, []int32{0, 0, 0, 0, 0, 0}, record.InputTypeIDs)
	assert.Equal(t, []int32{1, 1, 1, 1, 0, 0}, record.InputMask)
}

func TestExampleToFeaturesTruncation(t *testing.T) {
	tok, err := NewFullTokenizer(testVocab(t), true)
	require.NoError(t, err)

	// single sentence longer than the window keeps maxSeqLength-2 tokens
	record := ExampleToFeatures("the cat sat the cat sat", "", 4, tok)
	assert.Equal(t, []int32{2, 4, 5, 3}, record.InputIDs)
	assert.Equal(t, []int32{1, 1, 1, 1}, record.InputMask)

	// pairs trim the longer side first
	record = ExampleToFeatures("the cat sat the cat", "sat", 6, tok)
	assert.Equal(t, []int32{2, 4, 5, 3, 6, 3}, record.InputIDs)
	assert.Equal(t, []int32{0, 0, 0, 0, 1, 1}, record.InputTypeIDs)
}

func TestFeatsReader(t *testing.T) {
	tok, err := NewFullTokenizer(testVocab(t), true)
	require.NoError(t, err)
	vocab := NewLabelVocab([]string{"0", "1"})
	examples := []Example{
		{GUID: "train-1", TextA: "the cat", TextB: "sat", Label: "1"},
		{GUID: "train-2", TextA: "the cat sat", Label: "0"},
	}

	records, err := NewFeatsReader(examples, vocab, 10, tok).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int32(1), records[0].LabelID)
	assert.Equal(t, "train-1", records[0].GUID)
	assert.Equal(t, int32(0), records[1].LabelID)
	assert.Equal(t, "train-2", records[1].GUID)
}

func TestFeatsReaderUnknownLabelFailsEagerly(t *testing.T) {
	tok, err := NewFullTokenizer(testVocab(t), true)
	require.NoError(t, err)
	vocab := NewLabelVocab([]string{"0", "1"})
	examples := []Example{
		{GUID: "train-1", TextA: "the cat", Label: "1"},
		{GUID: "train-2", TextA: "the cat", Label: "2"},
	}
	reader := NewFeatsReader(examples, vocab, 10, tok)

	_, ok, err := reader.Next()
	require.NoError(t, err)
	assert.True(t, ok)

	// the bad row fails on its own Next call, not at batch assembly
	_, _, err = reader.Next()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "train-2")
	assert.Contains(t, err.Error(), `label "2" is not in the label vocabulary`)
}
