package bertgo

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// BertConfig holds the hyper-parameters of a pretrained BERT checkpoint,
// as found in bert_config.json under the pretrained directory.
type BertConfig struct {
	VocabSize             int     `json:"vocab_size"`
	HiddenSize            int     `json:"hidden_size"`
	NumHiddenLayers       int     `json:"num_hidden_layers"`
	NumAttentionHeads     int     `json:"num_attention_heads"`
	IntermediateSize      int     `json:"intermediate_size"`
	TypeVocabSize         int     `json:"type_vocab_size"`
	MaxPositionEmbeddings int     `json:"max_position_embeddings"`
	HiddenDropoutProb     float64 `json:"hidden_dropout_prob"`
	InitializerRange      float64 `json:"initializer_range"`
}

// LoadBertConfig reads a bert_config.json file.
func LoadBertConfig(path string) (BertConfig, error) {
	var config BertConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return config, errors.Wrap(err, "reading bert config")
	}
	if err := json.Unmarshal(raw, &config); err != nil {
		return config, errors.Wrapf(err, "parsing bert config %s", path)
	}
	return config, nil
}

// CheckSeqLength validates the requested sequence length against the position
// embedding table of the pretrained model. Runs before any data is touched.
func (c BertConfig) CheckSeqLength(maxSeqLength int) error {
	if maxSeqLength > c.MaxPositionEmbeddings {
		return errors.Errorf(
			"max_seq_length %d can not exceed max_position_embeddings %d",
			maxSeqLength, c.MaxPositionEmbeddings)
	}
	return nil
}

func (c BertConfig) String() string {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err.Error()
	}
	return string(b)
}
