package bertgo

// encodeForward runs the pooled BERT encoder: embeddings, the bidirectional
// attention stack, and the pooler over the [CLS] position. Results land in
// the activation tensors; acts.Pooled holds the (B,C) pooled representation.
func (model *BertClassifier) encodeForward(ids, typeIDs, mask []int32, B, T int) {
	C := model.Config.HiddenSize
	L := model.Config.NumHiddenLayers
	NH := model.Config.NumAttentionHeads
	I := model.Config.IntermediateSize
	params, acts := model.Params, model.Acts

	embeddingForward(acts.EmbedSum.data, ids, typeIDs, params.WordEmbed.data, params.PosEmbed.data, params.TypeEmbed.data, B, T, C)
	layernormForward(acts.Embedded.data, acts.EmbedNormMean.data, acts.EmbedNormRstd.data, acts.EmbedSum.data, params.EmbedNormW.data, params.EmbedNormB.data, B, T, C)

	input := acts.Embedded.data
	for l := 0; l < L; l++ {
		// parameters
		lQkvw := params.QueryKeyValW.data[l*3*C*C:]
		lQkvb := params.QueryKeyValB.data[l*3*C:]
		lAttprojw := params.AttProjW.data[l*C*C:]
		lAttprojb := params.AttProjB.data[l*C:]
		lAttnormw := params.AttNormW.data[l*C:]
		lAttnormb := params.AttNormB.data[l*C:]
		lFcw := params.FeedFwdW.data[l*I*C:]
		lFcb := params.FeedFwdB.data[l*I:]
		lFcprojw := params.FeedFwdProjW.data[l*C*I:]
		lFcprojb := params.FeedFwdProjB.data[l*C:]
		lOutnormw := params.OutNormW.data[l*C:]
		lOutnormb := params.OutNormB.data[l*C:]
		// activations
		lQkv := acts.QueryKeyVal.data[l*B*T*3*C:]
		lPreatt := acts.PreAttention.data[l*B*NH*T*T:]
		lAtt := acts.Attention.data[l*B*NH*T*T:]
		lAtty := acts.AttentionOut.data[l*B*T*C:]
		lAttproj := acts.AttentionProj.data[l*B*T*C:]
		lResidual1 := acts.Residual1.data[l*B*T*C:]
		lAttnorm := acts.AttNorm.data[l*B*T*C:]
		lAttnormMean := acts.AttNormMean.data[l*B*T:]
		lAttnormRstd := acts.AttNormRstd.data[l*B*T:]
		lFch := acts.FeedForward.data[l*B*T*I:]
		lFchGelu := acts.FeedForwardGelu.data[l*B*T*I:]
		lFcproj := acts.FeedForwardProj.data[l*B*T*C:]
		lResidual2 := acts.Residual2.data[l*B*T*C:]
		lOutnorm := acts.OutNorm.data[l*B*T*C:]
		lOutnormMean := acts.OutNormMean.data[l*B*T:]
		lOutnormRstd := acts.OutNormRstd.data[l*B*T:]

		// project the layer input into packed query/key/value vectors
		matmulForward(lQkv, input, lQkvw, lQkvb, B, T, C, 3*C)
		attentionForward(lAtty, lPreatt, lAtt, lQkv, mask, B, T, C, NH)
		matmulForward(lAttproj, lAtty, lAttprojw, lAttprojb, B, T, C, C)
		// BERT is post-layernorm: add the residual, then normalize
		residualForward(lResidual1, input, lAttproj, B*T*C)
		layernormForward(lAttnorm, lAttnormMean, lAttnormRstd, lResidual1, lAttnormw, lAttnormb, B, T, C)
		matmulForward(lFch, lAttnorm, lFcw, lFcb, B, T, C, I)
		geluForward(lFchGelu, lFch, B*T*I)
		matmulForward(lFcproj, lFchGelu, lFcprojw, lFcprojb, B, T, I, C)
		residualForward(lResidual2, lAttnorm, lFcproj, B*T*C)
		layernormForward(lOutnorm, lOutnormMean, lOutnormRstd, lResidual2, lOutnormw, lOutnormb, B, T, C)

		input = lOutnorm
	}

	// pooler: dense + tanh over the [CLS] vector of the final layer
	clsGatherForward(acts.CLSVec.data, input, B, T, C)
	matmulForward(acts.PoolerDense.data, acts.CLSVec.data, params.PoolerW.data, params.PoolerB.data, B, 1, C, C)
	tanhForward(acts.Pooled.data, acts.PoolerDense.data, B*C)
}

// encodeBackward propagates gradActs.Pooled back through the pooler, the
// attention stack, and the embeddings, accumulating parameter gradients.
func (model *BertClassifier) encodeBackward(ids, typeIDs, mask []int32, B, T int) {
	C := model.Config.HiddenSize
	L := model.Config.NumHiddenLayers
	NH := model.Config.NumAttentionHeads
	I := model.Config.IntermediateSize
	params, grads, acts, gradActs := model.Params, model.Grads, model.Acts, model.GradActs

	tanhBackward(gradActs.PoolerDense.data, acts.Pooled.data, gradActs.Pooled.data, B*C)
	matmulBackward(gradActs.CLSVec.data, grads.PoolerW.data, grads.PoolerB.data, gradActs.PoolerDense.data, acts.CLSVec.data, params.PoolerW.data, B, 1, C, C)

	// seed the final layer's output gradient from the gathered [CLS] slot
	finalOutNorm := gradActs.OutNorm.data[(L-1)*B*T*C:]
	clsGatherBackward(finalOutNorm, gradActs.CLSVec.data, B, T, C)

	for l := L - 1; l >= 0; l-- {
		var input, dinput []float32
		if l == 0 {
			input = acts.Embedded.data
			dinput = gradActs.Embedded.data
		} else {
			input = acts.OutNorm.data[(l-1)*B*T*C:]
			dinput = gradActs.OutNorm.data[(l-1)*B*T*C:]
		}

		// parameters
		lQkvw := params.QueryKeyValW.data[l*3*C*C:]
		lAttprojw := params.AttProjW.data[l*C*C:]
		lAttnormw := params.AttNormW.data[l*C:]
		lFcw := params.FeedFwdW.data[l*I*C:]
		lFcprojw := params.FeedFwdProjW.data[l*C*I:]
		lOutnormw := params.OutNormW.data[l*C:]
		// parameter gradients
		dlQkvw := grads.QueryKeyValW.data[l*3*C*C:]
		dlQkvb := grads.QueryKeyValB.data[l*3*C:]
		dlAttprojw := grads.AttProjW.data[l*C*C:]
		dlAttprojb := grads.AttProjB.data[l*C:]
		dlAttnormw := grads.AttNormW.data[l*C:]
		dlAttnormb := grads.AttNormB.data[l*C:]
		dlFcw := grads.FeedFwdW.data[l*I*C:]
		dlFcb := grads.FeedFwdB.data[l*I:]
		dlFcprojw := grads.FeedFwdProjW.data[l*C*I:]
		dlFcprojb := grads.FeedFwdProjB.data[l*C:]
		dlOutnormw := grads.OutNormW.data[l*C:]
		dlOutnormb := grads.OutNormB.data[l*C:]
		// activations
		lQkv := acts.QueryKeyVal.data[l*B*T*3*C:]
		lAtt := acts.Attention.data[l*B*NH*T*T:]
		lAtty := acts.AttentionOut.data[l*B*T*C:]
		lResidual1 := acts.Residual1.data[l*B*T*C:]
		lAttnorm := acts.AttNorm.data[l*B*T*C:]
		lAttnormMean := acts.AttNormMean.data[l*B*T:]
		lAttnormRstd := acts.AttNormRstd.data[l*B*T:]
		lFch := acts.FeedForward.data[l*B*T*I:]
		lFchGelu := acts.FeedForwardGelu.data[l*B*T*I:]
		lResidual2 := acts.Residual2.data[l*B*T*C:]
		lOutnormMean := acts.OutNormMean.data[l*B*T:]
		lOutnormRstd := acts.OutNormRstd.data[l*B*T:]
		// activation gradients
		dlQkv := gradActs.QueryKeyVal.data[l*B*T*3*C:]
		dlPreatt := gradActs.PreAttention.data[l*B*NH*T*T:]
		dlAtt := gradActs.Attention.data[l*B*NH*T*T:]
		dlAtty := gradActs.AttentionOut.data[l*B*T*C:]
		dlAttproj := gradActs.AttentionProj.data[l*B*T*C:]
		dlResidual1 := gradActs.Residual1.data[l*B*T*C:]
		dlAttnorm := gradActs.AttNorm.data[l*B*T*C:]
		dlFch := gradActs.FeedForward.data[l*B*T*I:]
		dlFchGelu := gradActs.FeedForwardGelu.data[l*B*T*I:]
		dlFcproj := gradActs.FeedForwardProj.data[l*B*T*C:]
		dlResidual2 := gradActs.Residual2.data[l*B*T*C:]
		dlOutnorm := gradActs.OutNorm.data[l*B*T*C:]

		layernormBackward(dlResidual2, dlOutnormw, dlOutnormb, dlOutnorm, lResidual2, lOutnormw, lOutnormMean, lOutnormRstd, B, T, C)
		residualBackward(dlAttnorm, dlFcproj, dlResidual2, B*T*C)
		matmulBackward(dlFchGelu, dlFcprojw, dlFcprojb, dlFcproj, lFchGelu, lFcprojw, B, T, I, C)
		geluBackward(dlFch, lFch, dlFchGelu, B*T*I)
		matmulBackward(dlAttnorm, dlFcw, dlFcb, dlFch, lAttnorm, lFcw, B, T, C, I)
		layernormBackward(dlResidual1, dlAttnormw, dlAttnormb, dlAttnorm, lResidual1, lAttnormw, lAttnormMean, lAttnormRstd, B, T, C)
		residualBackward(dinput, dlAttproj, dlResidual1, B*T*C)
		matmulBackward(dlAtty, dlAttprojw, dlAttprojb, dlAttproj, lAtty, lAttprojw, B, T, C, C)
		attentionBackward(dlQkv, dlPreatt, dlAtt, dlAtty, lQkv, lAtt, mask, B, T, C, NH)
		matmulBackward(dinput, dlQkvw, dlQkvb, dlQkv, input, lQkvw, B, T, C, 3*C)
	}

	layernormBackward(gradActs.EmbedSum.data, grads.EmbedNormW.data, grads.EmbedNormB.data, gradActs.Embedded.data, acts.EmbedSum.data, params.EmbedNormW.data, acts.EmbedNormMean.data, acts.EmbedNormRstd.data, B, T, C)
	embeddingBackward(grads.WordEmbed.data, grads.PosEmbed.data, grads.TypeEmbed.data, gradActs.EmbedSum.data, ids, typeIDs, B, T, C)
}
