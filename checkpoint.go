package bertgo

import (
	"bufio"
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const (
	checkpointMagic   int32 = 20240622
	checkpointVersion int32 = 1
)

// CheckpointDir is a directory holding model artifacts. The pretrained
// directory carries the config, vocabulary, encoder and pooler files; the
// output directory carries the fine-tuned classifier and prediction results.
type CheckpointDir string

func (d CheckpointDir) ConfigFile() string      { return filepath.Join(string(d), "bert_config.json") }
func (d CheckpointDir) VocabFile() string       { return filepath.Join(string(d), "vocab.txt") }
func (d CheckpointDir) BertModelFile() string   { return filepath.Join(string(d), "bert_model.pickle") }
func (d CheckpointDir) PoolerModelFile() string { return filepath.Join(string(d), "pooler_model.pickle") }
func (d CheckpointDir) ClassifierFile() string  { return filepath.Join(string(d), "bert_classifier.pickle") }
func (d CheckpointDir) TestResultsFile() string { return filepath.Join(string(d), "test_results.tsv") }

// saveBlob writes a parameter slice as a little-endian binary file with a
// small header identifying the format and element count.
func saveBlob(path string, params []float32) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating checkpoint file")
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	header := [4]int32{checkpointMagic, checkpointVersion, int32(len(params)), 0}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return errors.Wrap(err, "writing checkpoint header")
	}
	if err := binary.Write(w, binary.LittleEndian, params); err != nil {
		return errors.Wrap(err, "writing checkpoint parameters")
	}
	if err := w.Flush(); err != nil {
		return errors.Wrap(err, "flushing checkpoint file")
	}
	return errors.Wrap(f.Close(), "closing checkpoint file")
}

// loadBlob reads a parameter file written by saveBlob into params, which must
// already have the expected length.
func loadBlob(path string, params []float32) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening checkpoint file")
	}
	defer f.Close()
	r := bufio.NewReader(f)
	var header [4]int32
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return errors.Wrapf(err, "reading checkpoint header from %s", path)
	}
	if header[0] != checkpointMagic {
		return errors.Errorf("%s: bad checkpoint magic %d", path, header[0])
	}
	if header[1] != checkpointVersion {
		return errors.Errorf("%s: unsupported checkpoint version %d", path, header[1])
	}
	if int(header[2]) != len(params) {
		return errors.Errorf("%s: checkpoint holds %d parameters, model expects %d", path, header[2], len(params))
	}
	if err := binary.Read(r, binary.LittleEndian, params); err != nil {
		return errors.Wrapf(err, "reading checkpoint parameters from %s", path)
	}
	return nil
}

// LoadPretrained fills the encoder and pooler parameter segments from the
// pretrained model files. The head projection keeps its random
// initialization.
func (model *BertClassifier) LoadPretrained(dir CheckpointDir) error {
	if err := loadBlob(dir.BertModelFile(), model.Params.EncoderMemory); err != nil {
		return errors.Wrap(err, "loading pretrained encoder")
	}
	if err := loadBlob(dir.PoolerModelFile(), model.Params.PoolerMemory); err != nil {
		return errors.Wrap(err, "loading pretrained pooler")
	}
	return nil
}

// SaveTrained writes the full fine-tuned parameter set to the output
// directory.
func (model *BertClassifier) SaveTrained(dir CheckpointDir) error {
	return errors.Wrap(saveBlob(dir.ClassifierFile(), model.Params.Memory), "saving fine-tuned classifier")
}

// LoadTrained restores a full fine-tuned parameter set from the output
// directory.
func (model *BertClassifier) LoadTrained(dir CheckpointDir) error {
	return errors.Wrap(loadBlob(dir.ClassifierFile(), model.Params.Memory), "loading fine-tuned classifier")
}

// SavePretrained writes the encoder and pooler segments as separate files,
// the layout LoadPretrained expects. Useful for producing pretrained
// directories from an existing model.
func (model *BertClassifier) SavePretrained(dir CheckpointDir) error {
	if err := saveBlob(dir.BertModelFile(), model.Params.EncoderMemory); err != nil {
		return errors.Wrap(err, "saving encoder")
	}
	return errors.Wrap(saveBlob(dir.PoolerModelFile(), model.Params.PoolerMemory), "saving pooler")
}
