package bertgo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, lines ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func TestLookupProblem(t *testing.T) {
	for _, name := range []string{"xnli", "mnli", "mrpc", "cola"} {
		p, err := LookupProblem(name)
		require.NoError(t, err)
		assert.Equal(t, name, p.Name)
		assert.NotEmpty(t, p.Labels)
	}
	_, err := LookupProblem("sst2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no such problem: "sst2"`)
}

func TestMRPCReader(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "train.tsv"),
		"Quality\t#1 ID\t#2 ID\t#1 String\t#2 String",
		"1\t101\t102\tThe cat sat.\tA cat was sitting.",
		"0\t103\t104\tIt rained.\tThe sun shone.",
	)
	p, err := LookupProblem("mrpc")
	require.NoError(t, err)

	examples, err := p.Read(dir, "train")
	require.NoError(t, err)
	require.Len(t, examples, 2)
	assert.Equal(t, Example{GUID: "train-1", TextA: "The cat sat.", TextB: "A cat was sitting.", Label: "1"}, examples[0])
	assert.Equal(t, Example{GUID: "train-2", TextA: "It rained.", TextB: "The sun shone.", Label: "0"}, examples[1])
}

func TestMRPCTestPartitionPlaceholderLabel(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "test.tsv"),
		"index\t#1 ID\t#2 ID\t#1 String\t#2 String",
		"0\t201\t202\tfirst sentence\tsecond sentence",
	)
	p, err := LookupProblem("mrpc")
	require.NoError(t, err)

	examples, err := p.Read(dir, "test")
	require.NoError(t, err)
	require.Len(t, examples, 1)
	assert.Equal(t, "0", examples[0].Label)
	assert.Equal(t, "first sentence", examples[0].TextA)
}

func TestMRPCUnknownPartition(t *testing.T) {
	p, err := LookupProblem("mrpc")
	require.NoError(t, err)
	_, err = p.Read(t.TempDir(), "bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no such partition in this dataset: "bogus"`)
}

func TestCoLAReader(t *testing.T) {
	dir := t.TempDir()
	// train and dev have no header row
	writeFile(t, filepath.Join(dir, "train.tsv"),
		"gj04\t1\t\tThe book was read.",
		"gj04\t0\t*\tBook the read was.",
	)
	writeFile(t, filepath.Join(dir, "test.tsv"),
		"index\tsentence",
		"0\tThey drank the pub dry.",
	)
	p, err := LookupProblem("cola")
	require.NoError(t, err)

	train, err := p.Read(dir, "train")
	require.NoError(t, err)
	require.Len(t, train, 2)
	assert.Equal(t, Example{GUID: "train-0", TextA: "The book was read.", Label: "1"}, train[0])
	assert.Equal(t, Example{GUID: "train-1", TextA: "Book the read was.", Label: "0"}, train[1])
	assert.Empty(t, train[0].TextB)

	test, err := p.Read(dir, "test")
	require.NoError(t, err)
	require.Len(t, test, 1)
	assert.Equal(t, Example{GUID: "test-1", TextA: "They drank the pub dry.", Label: "0"}, test[0])
}

func TestMNLIReader(t *testing.T) {
	dir := t.TempDir()
	header := strings.Join([]string{
		"index", "promptID", "pairID", "genre", "sentence1_binary_parse", "sentence2_binary_parse",
		"sentence1_parse", "sentence2_parse", "sentence1", "sentence2", "label1", "gold_label",
	}, "\t")
	writeFile(t, filepath.Join(dir, "train.tsv"),
		header,
		"0\t31193\t31193n\tgovernment\t()\t()\t()\t()\tThe dog barked.\tAn animal made noise.\tentailment\tentailment",
	)
	writeFile(t, filepath.Join(dir, "test_matched.tsv"),
		header,
		"7\t9814\t9814c\tfiction\t()\t()\t()\t()\tShe left.\tShe stayed home.\thidden\thidden",
	)
	p, err := LookupProblem("mnli")
	require.NoError(t, err)

	train, err := p.Read(dir, "train")
	require.NoError(t, err)
	require.Len(t, train, 1)
	assert.Equal(t, "train-0", train[0].GUID)
	assert.Equal(t, "The dog barked.", train[0].TextA)
	assert.Equal(t, "An animal made noise.", train[0].TextB)
	assert.Equal(t, "entailment", train[0].Label)

	// test rows have no gold label, every example gets the placeholder
	test, err := p.Read(dir, "test")
	require.NoError(t, err)
	require.Len(t, test, 1)
	assert.Equal(t, "test-7", test[0].GUID)
	assert.Equal(t, "contradiction", test[0].Label)
}

func TestXNLIReader(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "multinli", "multinli.train.zh.tsv"),
		"premise\thypo\tlabel",
		"他走了\t他离开了\tentailment",
		"他走了\t他留下了\tcontradictory",
	)
	devHeader := strings.Join([]string{
		"language", "gold_label", "sentence1_binary_parse", "sentence2_binary_parse",
		"sentence1_parse", "sentence2_parse", "sentence1", "sentence2",
	}, "\t")
	writeFile(t, filepath.Join(dir, "xnli.dev.tsv"),
		devHeader,
		"zh\tneutral\t()\t()\t()\t()\t你好\t再见",
		"fr\tneutral\t()\t()\t()\t()\tbonjour\tau revoir",
	)
	p, err := LookupProblem("xnli")
	require.NoError(t, err)

	train, err := p.Read(dir, "train")
	require.NoError(t, err)
	require.Len(t, train, 2)
	assert.Equal(t, "entailment", train[0].Label)
	// the translated file spells contradiction differently
	assert.Equal(t, "contradiction", train[1].Label)

	// dev keeps only the configured language
	dev, err := p.Read(dir, "dev")
	require.NoError(t, err)
	require.Len(t, dev, 1)
	assert.Equal(t, "你好", dev[0].TextA)
	assert.Equal(t, "再见", dev[0].TextB)
	assert.Equal(t, "neutral", dev[0].Label)

	_, err = p.Read(dir, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such partition")
}
