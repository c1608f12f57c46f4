package bertgo

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"

	"github.com/pkg/errors"
)

// Adam hyperparameters, fixed for fine-tuning.
const (
	adamBeta1 float32 = 0.9
	adamBeta2 float32 = 0.999
	adamEps   float32 = 1e-6
)

// maxTrainEpochs caps the training loop regardless of the requested epoch
// count. Published fine-tuning results were produced under this bound, so a
// larger num_train_epochs is clamped rather than honored.
const maxTrainEpochs = 3

// RunConfig carries the full command-line surface of one fine-tuning run.
type RunConfig struct {
	PretrainedDir  string
	OutputDir      string
	Problem        string
	DataDir        string
	BatchSize      int
	MaxSeqLength   int
	DoLowerCase    bool
	DoTrain        bool
	DoEval         bool
	DoPredict      bool
	LearningRate   float32
	NumTrainEpochs int
	MacroBatch     int
}

// gradAccumulator tracks where the training loop is inside a macro-batch
// cycle. It has two states: accumulating (count < macroBatch) and ready to
// step; observe moves it forward one micro-batch and reports whether the
// optimizer should step now.
type gradAccumulator struct {
	macroBatch int
	count      int
}

// cycleStart reports whether the next micro-batch opens a fresh cycle, which
// is when parameter gradients must be zeroed.
func (a *gradAccumulator) cycleStart() bool {
	return a.count == 0
}

// observe records one completed micro-batch. It returns true when the cycle
// is full; the counter resets so the next micro-batch starts a new cycle.
func (a *gradAccumulator) observe() bool {
	a.count++
	if a.count >= a.macroBatch {
		a.count = 0
		return true
	}
	return false
}

// Run executes the configured stages in order: train, eval, predict. Without
// DoTrain the fine-tuned classifier is loaded from the output directory
// instead. Console output goes to stdout.
func Run(cfg RunConfig, stdout io.Writer) error {
	problem, err := LookupProblem(cfg.Problem)
	if err != nil {
		return err
	}
	vocab := NewLabelVocab(problem.Labels)

	pretrained := CheckpointDir(cfg.PretrainedDir)
	output := CheckpointDir(cfg.OutputDir)

	config, err := LoadBertConfig(pretrained.ConfigFile())
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, config)
	if err := config.CheckSeqLength(cfg.MaxSeqLength); err != nil {
		return err
	}

	tok, err := NewFullTokenizer(pretrained.VocabFile(), cfg.DoLowerCase)
	if err != nil {
		return err
	}

	model := NewBertClassifier(config, vocab.NumClasses())
	if err := model.LoadPretrained(pretrained); err != nil {
		return err
	}

	if cfg.DoTrain {
		if err := runTrain(cfg, model, problem, vocab, tok, output, stdout); err != nil {
			return err
		}
	} else {
		if err := model.LoadTrained(output); err != nil {
			return err
		}
	}

	if cfg.DoEval {
		if err := runEval(cfg, model, problem, vocab, tok, stdout); err != nil {
			return err
		}
	}

	if cfg.DoPredict {
		if err := runPredict(cfg, model, problem, vocab, tok, output); err != nil {
			return err
		}
	}

	fmt.Fprintln(stdout, "All done")
	return nil
}

// runTrain reads the whole train partition into memory, then iterates
// shuffled batches for the clamped epoch count, stepping the optimizer once
// per full macro-batch cycle. The fine-tuned classifier is saved at the end.
func runTrain(cfg RunConfig, model *BertClassifier, problem Problem, vocab LabelVocab, tok *FullTokenizer, output CheckpointDir, stdout io.Writer) error {
	examples, err := problem.Read(cfg.DataDir, "train")
	if err != nil {
		return err
	}
	records, err := NewFeatsReader(examples, vocab, cfg.MaxSeqLength, tok).ReadAll()
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, "Read all samples:", len(records))

	rng := rand.New(rand.NewSource(42))
	step := 0

	epochs := cfg.NumTrainEpochs
	if epochs > maxTrainEpochs {
		epochs = maxTrainEpochs
	}
	for epoch := 0; epoch < epochs; epoch++ {
		// a partial cycle left over from the previous epoch is discarded:
		// its gradients are zeroed when the fresh cycle starts
		accum := gradAccumulator{macroBatch: cfg.MacroBatch}
		Shuffle(records, rng)
		batcher := NewBatcher(newSliceReader(records), cfg.BatchSize)
		for {
			batch, ok, err := batcher.Next()
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			if accum.cycleStart() {
				model.ZeroGradients()
			}
			model.Forward(batch, batch.LabelIDs, ModeTrain)
			fmt.Fprintln(stdout, "loss:", model.MeanLoss)
			if err := model.Backward(); err != nil {
				return err
			}
			if accum.observe() {
				step++
				model.Update(cfg.LearningRate, adamBeta1, adamBeta2, adamEps, step)
			}
		}
	}

	return model.SaveTrained(output)
}

// runEval streams the dev partition batch by batch with dropout disabled,
// summing per-example loss and argmax hit counts, then reports the
// aggregates.
func runEval(cfg RunConfig, model *BertClassifier, problem Problem, vocab LabelVocab, tok *FullTokenizer, stdout io.Writer) error {
	examples, err := problem.Read(cfg.DataDir, "dev")
	if err != nil {
		return err
	}
	batcher := NewBatcher(NewFeatsReader(examples, vocab, cfg.MaxSeqLength, tok), cfg.BatchSize)

	var totalLoss float32
	totalSamples, totalHits := 0, 0
	for {
		batch, ok, err := batcher.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		model.Forward(batch, batch.LabelIDs, ModeEval)
		hits := 0
		for i, p := range model.Predictions() {
			if p == batch.LabelIDs[i] {
				hits++
			}
		}
		fmt.Fprintln(stdout, model.SumLoss, hits)

		totalLoss += model.SumLoss
		totalHits += hits
		totalSamples += batch.Size
	}

	fmt.Fprintln(stdout, "Number of samples evaluated:", totalSamples)
	fmt.Fprintln(stdout, "Average per-sample loss:", totalLoss/float32(totalSamples))
	fmt.Fprintln(stdout, "Accuracy:", float32(totalHits)/float32(totalSamples))
	return nil
}

// runPredict streams the test partition and appends one tab-separated line of
// per-class probabilities per example, in input order.
func runPredict(cfg RunConfig, model *BertClassifier, problem Problem, vocab LabelVocab, tok *FullTokenizer, output CheckpointDir) error {
	examples, err := problem.Read(cfg.DataDir, "test")
	if err != nil {
		return err
	}
	batcher := NewBatcher(NewFeatsReader(examples, vocab, cfg.MaxSeqLength, tok), cfg.BatchSize)

	f, err := os.Create(output.TestResultsFile())
	if err != nil {
		return errors.Wrap(err, "creating test results file")
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	for {
		batch, ok, err := batcher.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		model.Forward(batch, nil, ModeEval)
		for _, row := range model.Probabilities() {
			for i, p := range row {
				if i > 0 {
					if err := w.WriteByte('\t'); err != nil {
						return errors.Wrap(err, "writing test results")
					}
				}
				if _, err := w.WriteString(strconv.FormatFloat(float64(p), 'g', -1, 32)); err != nil {
					return errors.Wrap(err, "writing test results")
				}
			}
			if err := w.WriteByte('\n'); err != nil {
				return errors.Wrap(err, "writing test results")
			}
		}
	}
	if err := w.Flush(); err != nil {
		return errors.Wrap(err, "flushing test results")
	}
	return errors.Wrap(f.Close(), "closing test results")
}
