package bertgo

import "github.com/pkg/errors"

// FeatureRecord is one encoded example: fixed-length id/type/mask arrays plus
// the class index and the originating example id. Records are built per
// example and consumed immediately by batching.
type FeatureRecord struct {
	InputIDs     []int32
	InputTypeIDs []int32
	InputMask    []int32
	LabelID      int32
	GUID         string
}

// ExampleToFeatures encodes a text pair as [CLS] a [SEP] (b [SEP]) with type
// ids 0 for the first segment and 1 for the second, mask 1 on real tokens,
// padded to maxSeqLength.
func ExampleToFeatures(textA, textB string, maxSeqLength int, tok *FullTokenizer) FeatureRecord {
	tokensA := tok.Tokenize(textA)
	var tokensB []string
	if textB != "" {
		tokensB = tok.Tokenize(textB)
		// three special tokens: [CLS], and a [SEP] after each segment
		tokensA, tokensB = truncateSeqPair(tokensA, tokensB, maxSeqLength-3)
	} else if len(tokensA) > maxSeqLength-2 {
		tokensA = tokensA[:maxSeqLength-2]
	}

	tokens := make([]string, 0, maxSeqLength)
	typeIDs := make([]int32, 0, maxSeqLength)
	tokens = append(tokens, clsToken)
	typeIDs = append(typeIDs, 0)
	for _, t := range tokensA {
		tokens = append(tokens, t)
		typeIDs = append(typeIDs, 0)
	}
	tokens = append(tokens, sepToken)
	typeIDs = append(typeIDs, 0)
	for _, t := range tokensB {
		tokens = append(tokens, t)
		typeIDs = append(typeIDs, 1)
	}
	if tokensB != nil {
		tokens = append(tokens, sepToken)
		typeIDs = append(typeIDs, 1)
	}

	ids := tok.TokenIDs(tokens)
	mask := make([]int32, len(ids), maxSeqLength)
	for i := range mask {
		mask[i] = 1
	}
	pad := tok.PadID()
	for len(ids) < maxSeqLength {
		ids = append(ids, pad)
		typeIDs = append(typeIDs, 0)
		mask = append(mask, 0)
	}
	return FeatureRecord{InputIDs: ids, InputTypeIDs: typeIDs, InputMask: mask}
}

// truncateSeqPair pops tokens from the longer sequence until the pair fits.
func truncateSeqPair(a, b []string, maxLength int) ([]string, []string) {
	for len(a)+len(b) > maxLength {
		if len(a) > len(b) {
			a = a[:len(a)-1]
		} else {
			b = b[:len(b)-1]
		}
	}
	return a, b
}

// FeatsReader joins an Example sequence with the encoding routine, attaching
// the label index and guid to each record. It is a pure, order-preserving
// transform: one Example in, one FeatureRecord out.
type FeatsReader struct {
	examples     []Example
	vocab        LabelVocab
	maxSeqLength int
	tok          *FullTokenizer
	pos          int
}

func NewFeatsReader(examples []Example, vocab LabelVocab, maxSeqLength int, tok *FullTokenizer) *FeatsReader {
	return &FeatsReader{examples: examples, vocab: vocab, maxSeqLength: maxSeqLength, tok: tok}
}

// Next encodes and returns the next record. The label lookup happens here,
// per example, so an undeclared label fails before any batch is assembled.
func (r *FeatsReader) Next() (FeatureRecord, bool, error) {
	if r.pos >= len(r.examples) {
		return FeatureRecord{}, false, nil
	}
	example := r.examples[r.pos]
	r.pos++
	labelID, err := r.vocab.ID(example.Label)
	if err != nil {
		return FeatureRecord{}, false, errors.Wrapf(err, "example %s", example.GUID)
	}
	record := ExampleToFeatures(example.TextA, example.TextB, r.maxSeqLength, r.tok)
	record.LabelID = labelID
	record.GUID = example.GUID
	return record, true, nil
}

// ReadAll drains the reader, materializing every record in memory.
func (r *FeatsReader) ReadAll() ([]FeatureRecord, error) {
	var records []FeatureRecord
	for {
		record, ok, err := r.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return records, nil
		}
		records = append(records, record)
	}
}
