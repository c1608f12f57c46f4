package bertgo

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Example is one labeled text (pair) from a corpus. TextB is empty for
// single-sentence corpora. Label is the raw label string; it is resolved
// against the LabelVocab during feature assembly.
type Example struct {
	GUID  string
	TextA string
	TextB string
	Label string
}

// corpusFormat is the closed set of physical corpus layouts. Each case holds
// its own filename convention, column offsets and placeholder-label rule.
type corpusFormat interface {
	read(dataDir, partition string) ([]Example, error)
}

// Problem binds a corpus name to its declared label sequence and its format.
type Problem struct {
	Name   string
	Labels []string
	format corpusFormat
}

// Read produces the full Example sequence for one partition. The sequence is
// finite and restartable by calling Read again.
func (p Problem) Read(dataDir, partition string) ([]Example, error) {
	return p.format.read(dataDir, partition)
}

var problems = map[string]Problem{
	"xnli": {Name: "xnli", Labels: []string{"contradiction", "entailment", "neutral"}, format: xnliFormat{lang: "zh"}},
	"mnli": {Name: "mnli", Labels: []string{"contradiction", "entailment", "neutral"}, format: mnliFormat{}},
	"mrpc": {Name: "mrpc", Labels: []string{"0", "1"}, format: mrpcFormat{}},
	"cola": {Name: "cola", Labels: []string{"0", "1"}, format: colaFormat{}},
}

// LookupProblem resolves a corpus name at configuration time, before any file
// I/O happens.
func LookupProblem(name string) (Problem, error) {
	p, ok := problems[name]
	if !ok {
		return Problem{}, errors.Errorf("no such problem: %q", name)
	}
	return p, nil
}

func errNoPartition(partition string) error {
	return errors.Errorf("no such partition in this dataset: %q", partition)
}

// readTSV reads a tab separated value file. Rows are split on tabs with no
// quoting, matching how the corpora are distributed.
func readTSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var rows [][]string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		rows = append(rows, strings.Split(scanner.Text(), "\t"))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return rows, nil
}

// xnliFormat reads the XNLI corpus. Training data comes from the machine
// translated MultiNLI file for one language; dev data is the multilingual
// xnli.dev.tsv filtered down to that language. There is no test partition.
type xnliFormat struct {
	lang string
}

func (f xnliFormat) read(dataDir, partition string) ([]Example, error) {
	switch partition {
	case "train":
		rows, err := readTSV(filepath.Join(dataDir, "multinli", fmt.Sprintf("multinli.train.%s.tsv", f.lang)))
		if err != nil {
			return nil, err
		}
		var examples []Example
		for i, row := range rows {
			if i == 0 {
				continue
			}
			label := row[2]
			// the translated training file spells the label differently
			if label == "contradictory" {
				label = "contradiction"
			}
			examples = append(examples, Example{
				GUID:  fmt.Sprintf("%s-%d", partition, i),
				TextA: row[0],
				TextB: row[1],
				Label: label,
			})
		}
		return examples, nil
	case "dev":
		rows, err := readTSV(filepath.Join(dataDir, "xnli.dev.tsv"))
		if err != nil {
			return nil, err
		}
		var examples []Example
		for i, row := range rows {
			if i == 0 {
				continue
			}
			if row[0] != f.lang {
				continue
			}
			examples = append(examples, Example{
				GUID:  fmt.Sprintf("%s-%d", partition, i),
				TextA: row[6],
				TextB: row[7],
				Label: row[1],
			})
		}
		return examples, nil
	default:
		return nil, errNoPartition(partition)
	}
}

// mnliFormat reads the matched variant of MultiNLI. The test partition has no
// gold labels; every test row gets the first declared label as a placeholder.
type mnliFormat struct{}

func (mnliFormat) read(dataDir, partition string) ([]Example, error) {
	var fname string
	switch partition {
	case "train":
		fname = "train.tsv"
	case "dev":
		fname = "dev_matched.tsv"
	case "test":
		fname = "test_matched.tsv"
	default:
		return nil, errNoPartition(partition)
	}
	rows, err := readTSV(filepath.Join(dataDir, fname))
	if err != nil {
		return nil, err
	}
	var examples []Example
	for i, row := range rows {
		if i == 0 {
			continue
		}
		label := "contradiction"
		if partition != "test" {
			label = row[len(row)-1]
		}
		examples = append(examples, Example{
			GUID:  fmt.Sprintf("%s-%s", partition, row[0]),
			TextA: row[8],
			TextB: row[9],
			Label: label,
		})
	}
	return examples, nil
}

// mrpcFormat reads the Microsoft Research Paraphrase Corpus. Train and dev
// carry the gold label in column 0; test rows get the placeholder "0".
type mrpcFormat struct{}

func (mrpcFormat) read(dataDir, partition string) ([]Example, error) {
	switch partition {
	case "train", "dev", "test":
	default:
		return nil, errNoPartition(partition)
	}
	rows, err := readTSV(filepath.Join(dataDir, partition+".tsv"))
	if err != nil {
		return nil, err
	}
	var examples []Example
	for i, row := range rows {
		if i == 0 {
			continue
		}
		label := "0"
		if partition != "test" {
			label = row[0]
		}
		examples = append(examples, Example{
			GUID:  fmt.Sprintf("%s-%d", partition, i),
			TextA: row[3],
			TextB: row[4],
			Label: label,
		})
	}
	return examples, nil
}

// colaFormat reads the single-sentence CoLA acceptability corpus. Unlike the
// other corpora only its test file has a header row, and the text/label
// columns differ between the labeled and unlabeled files.
type colaFormat struct{}

func (colaFormat) read(dataDir, partition string) ([]Example, error) {
	switch partition {
	case "train", "dev", "test":
	default:
		return nil, errNoPartition(partition)
	}
	rows, err := readTSV(filepath.Join(dataDir, partition+".tsv"))
	if err != nil {
		return nil, err
	}
	var examples []Example
	for i, row := range rows {
		if partition == "test" && i == 0 {
			continue
		}
		var text, label string
		if partition == "test" {
			text, label = row[1], "0"
		} else {
			text, label = row[3], row[1]
		}
		examples = append(examples, Example{
			GUID:  fmt.Sprintf("%s-%d", partition, i),
			TextA: text,
			Label: label,
		})
	}
	return examples, nil
}
