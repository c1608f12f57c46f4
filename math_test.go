package bertgo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const delta = 1e-5

func TestEmbeddingForward(t *testing.T) {
	type args struct {
		ids     []int32
		typeIDs []int32
		wte     []float32
		wpe     []float32
		wty     []float32
		B, T, C int
	}
	tests := []struct {
		name    string
		args    args
		wantOut []float32
	}{
		{
			name: "word plus position plus type",
			args: args{
				ids:     []int32{1, 0},
				typeIDs: []int32{0, 1},
				wte:     []float32{0, 1, 2, 3},
				wpe:     []float32{4, 5, 6, 7},
				wty:     []float32{10, 20, 30, 40},
				B:       1,
				T:       2,
				C:       2,
			},
			wantOut: []float32{16, 28, 36, 48},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := make([]float32, tt.args.B*tt.args.T*tt.args.C)
			embeddingForward(out, tt.args.ids, tt.args.typeIDs, tt.args.wte, tt.args.wpe, tt.args.wty, tt.args.B, tt.args.T, tt.args.C)
			assert.Equal(t, tt.wantOut, out)
		})
	}
}

func TestEmbeddingBackward(t *testing.T) {
	ids := []int32{1, 1}
	typeIDs := []int32{0, 0}
	dout := []float32{1, 2, 3, 4}
	dwte := make([]float32, 4)
	dwpe := make([]float32, 4)
	dwty := make([]float32, 4)
	embeddingBackward(dwte, dwpe, dwty, dout, ids, typeIDs, 1, 2, 2)
	// both positions hit token 1 and type 0; positions stay separate
	assert.Equal(t, []float32{0, 0, 4, 6}, dwte)
	assert.Equal(t, []float32{1, 2, 3, 4}, dwpe)
	assert.Equal(t, []float32{4, 6, 0, 0}, dwty)
}

func TestLayernormForward(t *testing.T) {
	out := make([]float32, 2)
	mean := make([]float32, 1)
	rstd := make([]float32, 1)
	layernormForward(out, mean, rstd, []float32{1, 3}, []float32{1, 1}, []float32{0, 0}, 1, 1, 2)
	assert.InDelta(t, 2.0, mean[0], delta)
	assert.InDelta(t, -1.0, out[0], 1e-4)
	assert.InDelta(t, 1.0, out[1], 1e-4)
}

func TestMatmulForward(t *testing.T) {
	out := make([]float32, 2)
	inp := []float32{1, 2}
	weight := []float32{1, 2, 3, 4} // (OC=2, C=2)
	bias := []float32{0.5, -0.5}
	matmulForward(out, inp, weight, bias, 1, 1, 2, 2)
	assert.Equal(t, []float32{5.5, 10.5}, out)
}

func TestMatmulBackward(t *testing.T) {
	dinp := make([]float32, 2)
	dweight := make([]float32, 4)
	dbias := make([]float32, 2)
	inp := []float32{1, 2}
	weight := []float32{1, 2, 3, 4}
	dout := []float32{1, 1}
	matmulBackward(dinp, dweight, dbias, dout, inp, weight, 1, 1, 2, 2)
	assert.Equal(t, []float32{4, 6}, dinp)
	assert.Equal(t, []float32{1, 2, 1, 2}, dweight)
	assert.Equal(t, []float32{1, 1}, dbias)
}

func TestAttentionForwardMasking(t *testing.T) {
	B, T, C, NH := 1, 2, 2, 1
	// packed (T, 3C) query/key/value rows
	inp := []float32{
		1, 2, 3, 4, 5, 6, // position 0
		9, 9, 9, 9, 7, 8, // position 1, masked out
	}
	mask := []int32{1, 0}
	out := make([]float32, B*T*C)
	preatt := make([]float32, B*NH*T*T)
	att := make([]float32, B*NH*T*T)
	attentionForward(out, preatt, att, inp, mask, B, T, C, NH)

	// with a single unmasked key its weight is 1 and the masked weight is
	// exactly 0
	assert.Equal(t, float32(1), att[0])
	assert.Equal(t, float32(0), att[1])
	assert.Equal(t, float32(1), att[2])
	assert.Equal(t, float32(0), att[3])

	// every position attends only to position 0's value
	assert.InDelta(t, 5.0, out[0], delta)
	assert.InDelta(t, 6.0, out[1], delta)
	assert.InDelta(t, 5.0, out[2], delta)
	assert.InDelta(t, 6.0, out[3], delta)
}

func TestAttentionForwardUniform(t *testing.T) {
	B, T, C, NH := 1, 2, 2, 1
	// identical zero queries and keys give uniform attention over both values
	inp := []float32{
		0, 0, 0, 0, 2, 4,
		0, 0, 0, 0, 6, 8,
	}
	mask := []int32{1, 1}
	out := make([]float32, B*T*C)
	preatt := make([]float32, B*NH*T*T)
	att := make([]float32, B*NH*T*T)
	attentionForward(out, preatt, att, inp, mask, B, T, C, NH)

	assert.InDelta(t, 0.5, att[0], delta)
	assert.InDelta(t, 0.5, att[1], delta)
	assert.InDelta(t, 4.0, out[0], delta)
	assert.InDelta(t, 6.0, out[1], delta)
}

func TestGeluForward(t *testing.T) {
	out := make([]float32, 3)
	geluForward(out, []float32{-10, 0, 1}, 3)
	assert.InDelta(t, 0.0, out[0], 1e-4)
	assert.Equal(t, float32(0), out[1])
	assert.InDelta(t, 0.841192, out[2], 1e-4)
}

func TestTanhBackward(t *testing.T) {
	inp := []float32{0, 1}
	out := make([]float32, 2)
	tanhForward(out, inp, 2)
	dinp := make([]float32, 2)
	tanhBackward(dinp, out, []float32{1, 1}, 2)
	// derivative at 0 is 1, and 1 - tanh(x)^2 elsewhere
	assert.InDelta(t, 1.0, dinp[0], delta)
	assert.InDelta(t, 1.0-out[1]*out[1], dinp[1], delta)
}

func TestResidual(t *testing.T) {
	out := make([]float32, 2)
	residualForward(out, []float32{1, 2}, []float32{10, 20}, 2)
	assert.Equal(t, []float32{11, 22}, out)

	dinp1 := make([]float32, 2)
	dinp2 := make([]float32, 2)
	residualBackward(dinp1, dinp2, []float32{3, 4}, 2)
	assert.Equal(t, []float32{3, 4}, dinp1)
	assert.Equal(t, []float32{3, 4}, dinp2)
}

func TestCLSGather(t *testing.T) {
	B, T, C := 2, 2, 2
	inp := []float32{1, 2, 3, 4, 5, 6, 7, 8}
	out := make([]float32, B*C)
	clsGatherForward(out, inp, B, T, C)
	assert.Equal(t, []float32{1, 2, 5, 6}, out)

	dinp := make([]float32, B*T*C)
	clsGatherBackward(dinp, []float32{1, 1, 1, 1}, B, T, C)
	assert.Equal(t, []float32{1, 1, 0, 0, 1, 1, 0, 0}, dinp)
}

func TestDropoutForward(t *testing.T) {
	inp := []float32{1, 2, 3}
	out := make([]float32, 3)
	mask := make([]float32, 3)

	// disabled dropout is the identity
	dropoutForward(out, inp, mask, 0, nil, 3)
	assert.Equal(t, inp, out)
	assert.Equal(t, []float32{1, 1, 1}, mask)

	// deterministic coins: drop, keep, keep
	coins := []float32{0.3, 0.7, 0.9}
	i := 0
	coin := func() float32 { c := coins[i]; i++; return c }
	dropoutForward(out, inp, mask, 0.5, coin, 3)
	assert.Equal(t, []float32{0, 4, 6}, out)
	assert.Equal(t, []float32{0, 2, 2}, mask)

	dinp := make([]float32, 3)
	dropoutBackward(dinp, []float32{1, 1, 1}, mask, 3)
	assert.Equal(t, []float32{0, 2, 2}, dinp)
}

func TestSoftmaxForward(t *testing.T) {
	probs := make([]float32, 4)
	softmaxForward(probs, []float32{0, 0, 1, 1}, 2, 2)
	assert.InDelta(t, 0.5, probs[0], delta)
	assert.InDelta(t, 0.5, probs[1], delta)
	var sum float32
	for _, p := range probs[2:] {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, delta)
}

func TestLogSoftmaxMatchesSoftmax(t *testing.T) {
	logits := []float32{0.5, -1.5, 2.0}
	probs := make([]float32, 3)
	logProbs := make([]float32, 3)
	softmaxForward(probs, logits, 1, 3)
	logSoftmaxForward(logProbs, logits, 1, 3)
	for i := range probs {
		assert.InDelta(t, float64(probs[i]), float64(Exp(logProbs[i])), delta)
	}
}

func TestNLLLossForward(t *testing.T) {
	logProbs := []float32{-0.1, -2.3, -1.2, -0.4}
	losses := make([]float32, 2)
	nllLossForward(losses, logProbs, []int32{1, 0}, 2, 2)
	assert.Equal(t, []float32{2.3, 1.2}, losses)
}

func TestNLLSoftmaxBackward(t *testing.T) {
	dlogits := make([]float32, 2)
	nllSoftmaxBackward(dlogits, []float32{2}, []float32{0.25, 0.75}, []int32{0}, 1, 2)
	assert.InDelta(t, -1.5, dlogits[0], delta)
	assert.InDelta(t, 1.5, dlogits[1], delta)
}

func TestArgmax(t *testing.T) {
	tests := []struct {
		name string
		row  []float32
		want int32
	}{
		{name: "distinct", row: []float32{0.1, 0.7, 0.2}, want: 1},
		{name: "ties go to the lowest index", row: []float32{1, 3, 3}, want: 1},
		{name: "single", row: []float32{4}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, argmax(tt.row))
		})
	}
}
