package bertgo

import "math/rand"

// recordSource is anything that yields FeatureRecords in order.
type recordSource interface {
	Next() (FeatureRecord, bool, error)
}

// sliceReader replays an in-memory record slice, used for the materialized
// (shuffled) training set.
type sliceReader struct {
	records []FeatureRecord
	pos     int
}

func newSliceReader(records []FeatureRecord) *sliceReader {
	return &sliceReader{records: records}
}

func (r *sliceReader) Next() (FeatureRecord, bool, error) {
	if r.pos >= len(r.records) {
		return FeatureRecord{}, false, nil
	}
	record := r.records[r.pos]
	r.pos++
	return record, true, nil
}

// Shuffle permutes records in place.
func Shuffle(records []FeatureRecord, rng *rand.Rand) {
	rng.Shuffle(len(records), func(i, j int) {
		records[i], records[j] = records[j], records[i]
	})
}

// Batch groups up to batchSize records into parallel flat int32 arrays, one
// per field, each laid out (Size, SeqLen) row-major.
type Batch struct {
	InputIDs     []int32
	InputTypeIDs []int32
	InputMask    []int32
	LabelIDs     []int32
	GUIDs        []string
	Size         int
	SeqLen       int
}

// Batcher lazily pulls windows of records from a source. The final batch of a
// stream may be shorter than batchSize.
type Batcher struct {
	source    recordSource
	batchSize int
}

func NewBatcher(source recordSource, batchSize int) *Batcher {
	return &Batcher{source: source, batchSize: batchSize}
}

// Next assembles the next batch. ok is false once the source is drained.
func (b *Batcher) Next() (Batch, bool, error) {
	var records []FeatureRecord
	for len(records) < b.batchSize {
		record, ok, err := b.source.Next()
		if err != nil {
			return Batch{}, false, err
		}
		if !ok {
			break
		}
		records = append(records, record)
	}
	if len(records) == 0 {
		return Batch{}, false, nil
	}
	seqLen := len(records[0].InputIDs)
	batch := Batch{
		InputIDs:     make([]int32, 0, len(records)*seqLen),
		InputTypeIDs: make([]int32, 0, len(records)*seqLen),
		InputMask:    make([]int32, 0, len(records)*seqLen),
		LabelIDs:     make([]int32, 0, len(records)),
		GUIDs:        make([]string, 0, len(records)),
		Size:         len(records),
		SeqLen:       seqLen,
	}
	for _, record := range records {
		batch.InputIDs = append(batch.InputIDs, record.InputIDs...)
		batch.InputTypeIDs = append(batch.InputTypeIDs, record.InputTypeIDs...)
		batch.InputMask = append(batch.InputMask, record.InputMask...)
		batch.LabelIDs = append(batch.LabelIDs, record.LabelID)
		batch.GUIDs = append(batch.GUIDs, record.GUID)
	}
	return batch, true, nil
}
