package bertgo

import "github.com/pkg/errors"

// LabelVocab is the bidirectional mapping between a corpus's declared label
// strings and dense class indices. Built once per run, never mutated.
type LabelVocab struct {
	labels []string
	index  map[string]int32
}

func NewLabelVocab(labels []string) LabelVocab {
	index := make(map[string]int32, len(labels))
	for i, label := range labels {
		index[label] = int32(i)
	}
	return LabelVocab{labels: labels, index: index}
}

// ID returns the class index of label. A label outside the declared set is a
// reader bug or malformed input and is reported immediately so a single bad
// row can not slip into a batch.
func (v LabelVocab) ID(label string) (int32, error) {
	id, ok := v.index[label]
	if !ok {
		return 0, errors.Errorf("label %q is not in the label vocabulary %v", label, v.labels)
	}
	return id, nil
}

// Label returns the label string at class index id.
func (v LabelVocab) Label(id int32) string {
	return v.labels[id]
}

func (v LabelVocab) NumClasses() int {
	return len(v.labels)
}
