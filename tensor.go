package bertgo

type tensor struct {
	data []float32
	dims []int
}

func (t tensor) Data() []float32 {
	return t.data
}

func newTensor(data []float32, dims ...int) (tensor, int) {
	s := 1
	for _, d := range dims {
		s *= d
	}
	if s > len(data) {
		panic("dimensions larger than supplied data")
	}
	ss := min(s, len(data))
	return tensor{
		data: data[:ss],
		dims: dims,
	}, ss
}

func (t tensor) size() int {
	size := 1
	for _, dim := range t.dims {
		size *= dim
	}
	return size
}

// ParameterTensors are the parameters of the classifier: the BERT encoder
// (embeddings plus attention stack), the pooler, and the output projection.
// Memory is one flat backing array so that the optimizer can walk every
// parameter uniformly; EncoderMemory/PoolerMemory/HeadMemory are contiguous
// sub-slices of it matching the three persistence units.
type ParameterTensors struct {
	Memory []float32
	// embeddings
	WordEmbed  tensor // (V, C) - token embedding table
	PosEmbed   tensor // (maxT, C) - position embedding table
	TypeEmbed  tensor // (TV, C) - token-type (segment) embedding table
	EmbedNormW tensor // (C) - embedding layernorm weight
	EmbedNormB tensor // (C) - embedding layernorm bias
	// encoder layers
	QueryKeyValW tensor // (L, 3*C, C) - attention QKV weights
	QueryKeyValB tensor // (L, 3*C) - attention QKV biases
	AttProjW     tensor // (L, C, C) - attention output projection weights
	AttProjB     tensor // (L, C) - attention output projection biases
	AttNormW     tensor // (L, C) - post-attention layernorm weight
	AttNormB     tensor // (L, C) - post-attention layernorm bias
	FeedFwdW     tensor // (L, I, C) - feed-forward weights
	FeedFwdB     tensor // (L, I) - feed-forward biases
	FeedFwdProjW tensor // (L, C, I) - feed-forward projection weights
	FeedFwdProjB tensor // (L, C) - feed-forward projection biases
	OutNormW     tensor // (L, C) - layer output layernorm weight
	OutNormB     tensor // (L, C) - layer output layernorm bias
	// pooler
	PoolerW tensor // (C, C)
	PoolerB tensor // (C)
	// classification head
	OutputW tensor // (K, C)
	OutputB tensor // (K)

	EncoderMemory []float32
	PoolerMemory  []float32
	HeadMemory    []float32
}

// Init allocates the backing memory and carves the named tensor views out of
// it, in persistence order: encoder, pooler, head.
func (tensors *ParameterTensors) Init(config BertConfig, numClasses int) {
	V := config.VocabSize
	C := config.HiddenSize
	L := config.NumHiddenLayers
	I := config.IntermediateSize
	TV := config.TypeVocabSize
	maxT := config.MaxPositionEmbeddings
	K := numClasses

	encoderLen := V*C + // WordEmbed
		maxT*C + // PosEmbed
		TV*C + // TypeEmbed
		C + // EmbedNormW
		C + // EmbedNormB
		L*3*C*C + // QueryKeyValW
		L*3*C + // QueryKeyValB
		L*C*C + // AttProjW
		L*C + // AttProjB
		L*C + // AttNormW
		L*C + // AttNormB
		L*I*C + // FeedFwdW
		L*I + // FeedFwdB
		L*C*I + // FeedFwdProjW
		L*C + // FeedFwdProjB
		L*C + // OutNormW
		L*C // OutNormB
	poolerLen := C*C + C
	headLen := K*C + K
	tensors.Memory = make([]float32, encoderLen+poolerLen+headLen)
	tensors.EncoderMemory = tensors.Memory[:encoderLen]
	tensors.PoolerMemory = tensors.Memory[encoderLen : encoderLen+poolerLen]
	tensors.HeadMemory = tensors.Memory[encoderLen+poolerLen:]

	var ptr int
	memPtr := tensors.Memory
	tensors.WordEmbed, ptr = newTensor(memPtr, V, C)
	memPtr = memPtr[ptr:]
	tensors.PosEmbed, ptr = newTensor(memPtr, maxT, C)
	memPtr = memPtr[ptr:]
	tensors.TypeEmbed, ptr = newTensor(memPtr, TV, C)
	memPtr = memPtr[ptr:]
	tensors.EmbedNormW, ptr = newTensor(memPtr, C)
	memPtr = memPtr[ptr:]
	tensors.EmbedNormB, ptr = newTensor(memPtr, C)
	memPtr = memPtr[ptr:]
	tensors.QueryKeyValW, ptr = newTensor(memPtr, L, 3*C, C)
	memPtr = memPtr[ptr:]
	tensors.QueryKeyValB, ptr = newTensor(memPtr, L, 3*C)
	memPtr = memPtr[ptr:]
	tensors.AttProjW, ptr = newTensor(memPtr, L, C, C)
	memPtr = memPtr[ptr:]
	tensors.AttProjB, ptr = newTensor(memPtr, L, C)
	memPtr = memPtr[ptr:]
	tensors.AttNormW, ptr = newTensor(memPtr, L, C)
	memPtr = memPtr[ptr:]
	tensors.AttNormB, ptr = newTensor(memPtr, L, C)
	memPtr = memPtr[ptr:]
	tensors.FeedFwdW, ptr = newTensor(memPtr, L, I, C)
	memPtr = memPtr[ptr:]
	tensors.FeedFwdB, ptr = newTensor(memPtr, L, I)
	memPtr = memPtr[ptr:]
	tensors.FeedFwdProjW, ptr = newTensor(memPtr, L, C, I)
	memPtr = memPtr[ptr:]
	tensors.FeedFwdProjB, ptr = newTensor(memPtr, L, C)
	memPtr = memPtr[ptr:]
	tensors.OutNormW, ptr = newTensor(memPtr, L, C)
	memPtr = memPtr[ptr:]
	tensors.OutNormB, ptr = newTensor(memPtr, L, C)
	memPtr = memPtr[ptr:]
	tensors.PoolerW, ptr = newTensor(memPtr, C, C)
	memPtr = memPtr[ptr:]
	tensors.PoolerB, ptr = newTensor(memPtr, C)
	memPtr = memPtr[ptr:]
	tensors.OutputW, ptr = newTensor(memPtr, K, C)
	memPtr = memPtr[ptr:]
	tensors.OutputB, ptr = newTensor(memPtr, K)
	memPtr = memPtr[ptr:]
	if len(memPtr) != 0 {
		panic("something went real bad here")
	}
}

func (tensors *ParameterTensors) Len() int {
	return len(tensors.Memory)
}

// ActivationTensors hold every intermediate value of a forward pass, kept
// around for the backward pass.
type ActivationTensors struct {
	Memory          []float32
	EmbedSum        tensor // (B, T, C) - word + position + type embeddings before layernorm
	Embedded        tensor // (B, T, C) - embeddings after layernorm
	EmbedNormMean   tensor // (B, T)
	EmbedNormRstd   tensor // (B, T)
	QueryKeyVal     tensor // (L, B, T, 3*C)
	PreAttention    tensor // (L, B, NH, T, T) - raw attention scores
	Attention       tensor // (L, B, NH, T, T) - normalized attention weights
	AttentionOut    tensor // (L, B, T, C) - attention-weighted values
	AttentionProj   tensor // (L, B, T, C)
	Residual1       tensor // (L, B, T, C) - layer input + attention projection
	AttNorm         tensor // (L, B, T, C)
	AttNormMean     tensor // (L, B, T)
	AttNormRstd     tensor // (L, B, T)
	FeedForward     tensor // (L, B, T, I)
	FeedForwardGelu tensor // (L, B, T, I)
	FeedForwardProj tensor // (L, B, T, C)
	Residual2       tensor // (L, B, T, C)
	OutNorm         tensor // (L, B, T, C)
	OutNormMean     tensor // (L, B, T)
	OutNormRstd     tensor // (L, B, T)
	CLSVec          tensor // (B, C) - the [CLS] vector gathered from the final layer
	PoolerDense     tensor // (B, C) - pooler projection before tanh
	Pooled          tensor // (B, C)
	Logits          tensor // (B, K)
	DropLogits      tensor // (B, K) - logits after post-projection dropout
	Probs           tensor // (B, K)
	LogProbs        tensor // (B, K)
	Losses          tensor // (B)
}

func (tensors *ActivationTensors) Init(B, T int, config BertConfig, numClasses int) {
	C := config.HiddenSize
	L := config.NumHiddenLayers
	NH := config.NumAttentionHeads
	I := config.IntermediateSize
	K := numClasses
	tensors.Memory = make([]float32,
		B*T*C+
			B*T*C+
			B*T+
			B*T+
			L*B*T*3*C+
			L*B*NH*T*T+
			L*B*NH*T*T+
			L*B*T*C+
			L*B*T*C+
			L*B*T*C+
			L*B*T*C+
			L*B*T+
			L*B*T+
			L*B*T*I+
			L*B*T*I+
			L*B*T*C+
			L*B*T*C+
			L*B*T*C+
			L*B*T+
			L*B*T+
			B*C+
			B*C+
			B*C+
			B*K+
			B*K+
			B*K+
			B*K+
			B)
	var ptr int
	memPtr := tensors.Memory
	tensors.EmbedSum, ptr = newTensor(memPtr, B, T, C)
	memPtr = memPtr[ptr:]
	tensors.Embedded, ptr = newTensor(memPtr, B, T, C)
	memPtr = memPtr[ptr:]
	tensors.EmbedNormMean, ptr = newTensor(memPtr, B, T)
	memPtr = memPtr[ptr:]
	tensors.EmbedNormRstd, ptr = newTensor(memPtr, B, T)
	memPtr = memPtr[ptr:]
	tensors.QueryKeyVal, ptr = newTensor(memPtr, L, B, T, 3*C)
	memPtr = memPtr[ptr:]
	tensors.PreAttention, ptr = newTensor(memPtr, L, B, NH, T, T)
	memPtr = memPtr[ptr:]
	tensors.Attention, ptr = newTensor(memPtr, L, B, NH, T, T)
	memPtr = memPtr[ptr:]
	tensors.AttentionOut, ptr = newTensor(memPtr, L, B, T, C)
	memPtr = memPtr[ptr:]
	tensors.AttentionProj, ptr = newTensor(memPtr, L, B, T, C)
	memPtr = memPtr[ptr:]
	tensors.Residual1, ptr = newTensor(memPtr, L, B, T, C)
	memPtr = memPtr[ptr:]
	tensors.AttNorm, ptr = newTensor(memPtr, L, B, T, C)
	memPtr = memPtr[ptr:]
	tensors.AttNormMean, ptr = newTensor(memPtr, L, B, T)
	memPtr = memPtr[ptr:]
	tensors.AttNormRstd, ptr = newTensor(memPtr, L, B, T)
	memPtr = memPtr[ptr:]
	tensors.FeedForward, ptr = newTensor(memPtr, L, B, T, I)
	memPtr = memPtr[ptr:]
	tensors.FeedForwardGelu, ptr = newTensor(memPtr, L, B, T, I)
	memPtr = memPtr[ptr:]
	tensors.FeedForwardProj, ptr = newTensor(memPtr, L, B, T, C)
	memPtr = memPtr[ptr:]
	tensors.Residual2, ptr = newTensor(memPtr, L, B, T, C)
	memPtr = memPtr[ptr:]
	tensors.OutNorm, ptr = newTensor(memPtr, L, B, T, C)
	memPtr = memPtr[ptr:]
	tensors.OutNormMean, ptr = newTensor(memPtr, L, B, T)
	memPtr = memPtr[ptr:]
	tensors.OutNormRstd, ptr = newTensor(memPtr, L, B, T)
	memPtr = memPtr[ptr:]
	tensors.CLSVec, ptr = newTensor(memPtr, B, C)
	memPtr = memPtr[ptr:]
	tensors.PoolerDense, ptr = newTensor(memPtr, B, C)
	memPtr = memPtr[ptr:]
	tensors.Pooled, ptr = newTensor(memPtr, B, C)
	memPtr = memPtr[ptr:]
	tensors.Logits, ptr = newTensor(memPtr, B, K)
	memPtr = memPtr[ptr:]
	tensors.DropLogits, ptr = newTensor(memPtr, B, K)
	memPtr = memPtr[ptr:]
	tensors.Probs, ptr = newTensor(memPtr, B, K)
	memPtr = memPtr[ptr:]
	tensors.LogProbs, ptr = newTensor(memPtr, B, K)
	memPtr = memPtr[ptr:]
	tensors.Losses, ptr = newTensor(memPtr, B)
	memPtr = memPtr[ptr:]
	if len(memPtr) != 0 {
		panic("something went real bad here")
	}
}
