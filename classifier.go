package bertgo

import (
	"math/rand"

	"github.com/pkg/errors"
)

// Mode selects training or evaluation behavior. It is threaded explicitly
// through the forward pass: dropout is live in ModeTrain and an identity in
// ModeEval.
type Mode int

const (
	ModeTrain Mode = iota
	ModeEval
)

// BertClassifier wraps the pooled BERT encoder with a dropout-regularized
// dense projection to the class count.
type BertClassifier struct {
	Config     BertConfig
	NumClasses int
	// Params has the actual weights of the model
	Params ParameterTensors
	// Grads contains the delta/gradient that will eventually be applied to the params
	Grads ParameterTensors
	// First and second moment estimates for Adam
	MMemory []float32
	VMemory []float32
	Acts     ActivationTensors
	GradActs ActivationTensors
	B        int // current batch size
	T        int // current sequence length
	Inputs   []int32
	TypeIDs  []int32
	Mask     []int32
	Targets  []int32
	dropMask []float32
	// MeanLoss is the mean per-example loss after a forward pass with
	// targets; -1 otherwise
	MeanLoss float32
	// SumLoss is the summed per-example loss of the same forward pass
	SumLoss float32
	Rand    *rand.Rand
}

// NewBertClassifier builds a classifier for numClasses classes. The encoder
// and pooler parameters are zero until loaded from a pretrained checkpoint;
// the head projection is initialized from a truncated normal with the
// pretrained model's configured standard deviation, bias zero.
func NewBertClassifier(config BertConfig, numClasses int) *BertClassifier {
	model := &BertClassifier{
		Config:     config,
		NumClasses: numClasses,
		Rand:       rand.New(rand.NewSource(21)),
	}
	model.Params.Init(config, numClasses)
	std := float32(config.InitializerRange)
	for i := range model.Params.OutputW.data {
		model.Params.OutputW.data[i] = truncatedNormal(model.Rand, std)
	}
	return model
}

// truncatedNormal samples a zero-mean normal with the given std, resampling
// anything beyond two standard deviations.
func truncatedNormal(rng *rand.Rand, std float32) float32 {
	for {
		x := float32(rng.NormFloat64()) * std
		if Abs(x) <= 2*std {
			return x
		}
	}
}

// Forward runs the classifier on one batch. With non-nil targets it also
// computes log-probabilities and the negative log likelihood loss (MeanLoss
// averaged over the batch, SumLoss summed). Dropout applies after the output
// projection, only in ModeTrain.
func (model *BertClassifier) Forward(batch Batch, targets []int32, mode Mode) {
	B, T, C, K := batch.Size, batch.SeqLen, model.Config.HiddenSize, model.NumClasses
	if model.Acts.Memory == nil || model.B != B || model.T != T {
		model.B, model.T = B, T
		model.Acts.Init(B, T, model.Config, K)
		model.GradActs = ActivationTensors{}
		model.Inputs = make([]int32, B*T)
		model.TypeIDs = make([]int32, B*T)
		model.Mask = make([]int32, B*T)
		model.Targets = make([]int32, B)
		model.dropMask = make([]float32, B*K)
	}
	copy(model.Inputs, batch.InputIDs)
	copy(model.TypeIDs, batch.InputTypeIDs)
	copy(model.Mask, batch.InputMask)

	acts := model.Acts
	model.encodeForward(model.Inputs, model.TypeIDs, model.Mask, B, T)
	matmulForward(acts.Logits.data, acts.Pooled.data, model.Params.OutputW.data, model.Params.OutputB.data, B, 1, C, K)
	if mode == ModeTrain {
		dropoutForward(acts.DropLogits.data, acts.Logits.data, model.dropMask, float32(model.Config.HiddenDropoutProb), model.Rand.Float32, B*K)
	} else {
		dropoutForward(acts.DropLogits.data, acts.Logits.data, model.dropMask, 0, nil, B*K)
	}
	softmaxForward(acts.Probs.data, acts.DropLogits.data, B, K)
	logSoftmaxForward(acts.LogProbs.data, acts.DropLogits.data, B, K)

	if targets != nil {
		copy(model.Targets, targets)
		nllLossForward(acts.Losses.data, acts.LogProbs.data, targets, B, K)
		var sum float32
		for b := 0; b < B; b++ {
			sum += acts.Losses.data[b]
		}
		model.SumLoss = sum
		model.MeanLoss = sum / float32(B)
	} else {
		model.MeanLoss = -1.0
		model.SumLoss = -1.0
	}
}

// Backward accumulates gradients for the last forward pass. Parameter
// gradients are never reset here, so consecutive calls sum up across
// micro-batches; ZeroGradients draws the macro-batch boundary.
func (model *BertClassifier) Backward() error {
	if model.MeanLoss == -1.0 {
		return errors.New("error: must forward with targets before backward")
	}
	B, K := model.B, model.NumClasses
	if len(model.Grads.Memory) == 0 {
		model.Grads.Init(model.Config, K)
	}
	if model.GradActs.Memory == nil {
		model.GradActs.Init(B, model.T, model.Config, K)
	}
	// activation gradients are scratch per backward pass
	for i := range model.GradActs.Memory {
		model.GradActs.Memory[i] = 0.0
	}
	gradActs, acts := model.GradActs, model.Acts

	// the loss was averaged over the batch, so the chain starts at 1/B
	dlossMean := 1.0 / float32(B)
	for i := range gradActs.Losses.data {
		gradActs.Losses.data[i] = dlossMean
	}
	nllSoftmaxBackward(gradActs.DropLogits.data, gradActs.Losses.data, acts.Probs.data, model.Targets, B, K)
	dropoutBackward(gradActs.Logits.data, gradActs.DropLogits.data, model.dropMask, B*K)
	matmulBackward(gradActs.Pooled.data, model.Grads.OutputW.data, model.Grads.OutputB.data, gradActs.Logits.data, acts.Pooled.data, model.Params.OutputW.data, B, 1, model.Config.HiddenSize, K)
	model.encodeBackward(model.Inputs, model.TypeIDs, model.Mask, B, model.T)
	return nil
}

// ZeroGradients clears the accumulated parameter gradients. Called at the
// start of each macro-batch cycle, never implicitly.
func (model *BertClassifier) ZeroGradients() {
	for i := range model.Grads.Memory {
		model.Grads.Memory[i] = 0.0
	}
}

// Update applies one Adam step with bias correction. t is the 1-based step
// count.
func (model *BertClassifier) Update(learningRate, beta1, beta2, eps float32, t int) {
	if model.MMemory == nil {
		model.MMemory = make([]float32, model.Params.Len())
		model.VMemory = make([]float32, model.Params.Len())
	}
	for i := 0; i < model.Params.Len(); i++ {
		gradient := model.Grads.Memory[i]
		// momentum update
		m := beta1*model.MMemory[i] + (1.0-beta1)*gradient
		// RMSprop update
		v := beta2*model.VMemory[i] + (1.0-beta2)*gradient*gradient
		// bias correction
		mHat := m / (1.0 - Pow(beta1, float32(t)))
		vHat := v / (1.0 - Pow(beta2, float32(t)))
		model.MMemory[i] = m
		model.VMemory[i] = v
		model.Params.Memory[i] -= learningRate * mHat / (Sqrt(vHat) + eps)
	}
}

// Predictions returns the argmax class of each row from the last forward
// pass.
func (model *BertClassifier) Predictions() []int32 {
	out := make([]int32, model.B)
	for b := 0; b < model.B; b++ {
		out[b] = argmax(model.Acts.LogProbs.data[b*model.NumClasses : (b+1)*model.NumClasses])
	}
	return out
}

// Probabilities returns the per-class probability rows of the last forward
// pass.
func (model *BertClassifier) Probabilities() [][]float32 {
	out := make([][]float32, model.B)
	for b := 0; b < model.B; b++ {
		row := make([]float32, model.NumClasses)
		copy(row, model.Acts.Probs.data[b*model.NumClasses:(b+1)*model.NumClasses])
		out[b] = row
	}
	return out
}
