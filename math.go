package bertgo

import "math"

// embeddingForward combines the word token embeddings with the position and
// token-type embeddings. Each position's vector encodes the token, where it
// sits in the sequence, and which segment of the pair it belongs to.
func embeddingForward(out []float32, ids, typeIDs []int32, wte, wpe, wty []float32, B, T, C int) {
	for b := 0; b < B; b++ {
		for t := 0; t < T; t++ {
			startOutIndex := b*T*C + t*C
			ix := ids[b*T+t]
			tx := typeIDs[b*T+t]
			startWteIndex := int(ix) * C
			startWpeIndex := t * C
			startWtyIndex := int(tx) * C
			for i := 0; i < C; i++ {
				out[startOutIndex+i] = wte[startWteIndex+i] + wpe[startWpeIndex+i] + wty[startWtyIndex+i]
			}
		}
	}
}

// embeddingBackward scatters the output gradient back into the three
// embedding tables.
func embeddingBackward(dwte, dwpe, dwty []float32, dout []float32, ids, typeIDs []int32, B, T, C int) {
	for b := 0; b < B; b++ {
		for t := 0; t < T; t++ {
			doutBTOffset := b*T*C + t*C
			ix := ids[b*T+t]
			tx := typeIDs[b*T+t]
			dwteIxOffset := int(ix) * C
			dwpeTOffset := t * C
			dwtyTxOffset := int(tx) * C
			for i := 0; i < C; i++ {
				d := dout[doutBTOffset+i]
				dwte[dwteIxOffset+i] += d
				dwpe[dwpeTOffset+i] += d
				dwty[dwtyTxOffset+i] += d
			}
		}
	}
}

// layernormForward normalises the C-dimensional vector at each (b,t) position
// to zero mean and unit variance, then scales and shifts it. mean and rstd
// are (B,T) buffers kept for the backward pass.
func layernormForward(out, mean, rstd, inp, weight, bias []float32, B, T, C int) {
	var eps float64 = 1e-5
	for b := 0; b < B; b++ {
		for t := 0; t < T; t++ {
			x := inp[b*T*C+t*C:]
			var m float64 = 0.0
			for i := 0; i < C; i++ {
				m += float64(x[i])
			}
			m /= float64(C)
			var v float64 = 0.0
			for i := 0; i < C; i++ {
				xshift := float64(x[i]) - m
				v += xshift * xshift
			}
			v /= float64(C)
			s := 1.0 / math.Sqrt(v+eps)
			outBT := out[b*T*C+t*C:]
			for i := 0; i < C; i++ {
				n := s * (float64(x[i]) - m)
				outBT[i] = float32(n*float64(weight[i]) + float64(bias[i]))
			}
			mean[b*T+t] = float32(m)
			rstd[b*T+t] = float32(s)
		}
	}
}

func layernormBackward(dinp, dweight, dbias, dout, inp, weight, mean, rstd []float32, B, T, C int) {
	for b := 0; b < B; b++ {
		for t := 0; t < T; t++ {
			baseIndex := b*T*C + t*C
			doutBT := dout[baseIndex : baseIndex+C]
			inpBT := inp[baseIndex : baseIndex+C]
			dinpBT := dinp[baseIndex : baseIndex+C]
			meanBT := mean[b*T+t]
			rstdBT := rstd[b*T+t]

			var dnormMean float32 = 0.0
			var dnormNormMean float32 = 0.0
			for i := 0; i < C; i++ {
				normBTI := (inpBT[i] - meanBT) * rstdBT
				dnormI := weight[i] * doutBT[i]
				dnormMean += dnormI
				dnormNormMean += dnormI * normBTI
			}
			dnormMean /= float32(C)
			dnormNormMean /= float32(C)

			for i := 0; i < C; i++ {
				normBTI := (inpBT[i] - meanBT) * rstdBT
				dnormI := weight[i] * doutBT[i]
				dbias[i] += doutBT[i]
				dweight[i] += normBTI * doutBT[i]

				var dval float32
				dval += dnormI
				dval -= dnormMean
				dval -= normBTI * dnormNormMean
				dval *= rstdBT

				dinpBT[i] += dval
			}
		}
	}
}

// matmulForward computes out = inp @ weight^T + bias at every (b,t) position.
// inp is (B,T,C), weight is (OC,C), out is (B,T,OC).
func matmulForward(out, inp, weight, bias []float32, B, T, C, OC int) {
	for b := 0; b < B; b++ {
		for t := 0; t < T; t++ {
			inpBT := inp[b*T*C+t*C:]
			outBT := out[b*T*OC+t*OC:]
			for o := 0; o < OC; o++ {
				var val float64
				if bias != nil {
					val = float64(bias[o])
				}
				wrow := weight[o*C:]
				for i := 0; i < C; i++ {
					val += float64(inpBT[i]) * float64(wrow[i])
				}
				outBT[o] = float32(val)
			}
		}
	}
}

func matmulBackward(dinp, dweight, dbias, dout, inp, weight []float32, B, T, C, OC int) {
	// backward into inp
	for b := 0; b < B; b++ {
		for t := 0; t < T; t++ {
			doutBT := dout[b*T*OC+t*OC:]
			dinpBT := dinp[b*T*C+t*C:]
			for o := 0; o < OC; o++ {
				wrow := weight[o*C:]
				d := doutBT[o]
				for i := 0; i < C; i++ {
					dinpBT[i] += wrow[i] * d
				}
			}
		}
	}
	// backward into weight/bias
	for o := 0; o < OC; o++ {
		for b := 0; b < B; b++ {
			for t := 0; t < T; t++ {
				doutBT := dout[b*T*OC+t*OC:]
				inpBT := inp[b*T*C+t*C:]
				dwrow := dweight[o*C:]
				d := doutBT[o]
				if dbias != nil {
					dbias[o] += d
				}
				for i := 0; i < C; i++ {
					dwrow[i] += inpBT[i] * d
				}
			}
		}
	}
}

// attentionForward performs the bidirectional attention forward pass. Unlike
// a decoder there is no causal bound: every position attends to every
// position whose input mask is 1, and padding positions never contribute as
// keys. inp is (B,T,3C) holding the packed query/key/value vectors; preatt
// and att are (B,NH,T,T); out is (B,T,C); mask is (B,T) of 0/1.
func attentionForward(out, preatt, att, inp []float32, mask []int32, B, T, C, NH int) {
	C3 := C * 3
	hs := C / NH // head size
	scale := 1.0 / math.Sqrt(float64(hs))
	for b := 0; b < B; b++ {
		for t := 0; t < T; t++ {
			for h := 0; h < NH; h++ {
				queryT := inp[b*T*C3+t*C3+h*hs:]
				preattBTH := preatt[b*NH*T*T+h*T*T+t*T:]
				attBTH := att[b*NH*T*T+h*T*T+t*T:]

				// pass 1: query dot key over unmasked positions
				maxval := -10000.0
				for t2 := 0; t2 < T; t2++ {
					if mask[b*T+t2] == 0 {
						continue
					}
					keyT2 := inp[b*T*C3+t2*C3+h*hs+C:]
					var val float64
					for i := 0; i < hs; i++ {
						val += float64(queryT[i]) * float64(keyT2[i])
					}
					val *= scale
					if val > maxval {
						maxval = val
					}
					preattBTH[t2] = float32(val)
				}

				// pass 2: exponentiate and sum
				expsum := 0.0
				for t2 := 0; t2 < T; t2++ {
					if mask[b*T+t2] == 0 {
						continue
					}
					expv := math.Exp(float64(preattBTH[t2]) - maxval)
					expsum += expv
					attBTH[t2] = float32(expv)
				}
				expsumInv := 0.0
				if expsum != 0.0 {
					expsumInv = 1.0 / expsum
				}

				// pass 3: normalize; masked positions get exactly zero weight
				for t2 := 0; t2 < T; t2++ {
					if mask[b*T+t2] == 0 {
						attBTH[t2] = 0.0
						continue
					}
					attBTH[t2] *= float32(expsumInv)
				}

				// pass 4: weighted sum of values
				outBTH := out[b*T*C+t*C+h*hs:]
				for i := 0; i < hs; i++ {
					outBTH[i] = 0.0
				}
				for t2 := 0; t2 < T; t2++ {
					if mask[b*T+t2] == 0 {
						continue
					}
					valueT2 := inp[b*T*C3+t2*C3+h*hs+C*2:]
					attBTHT2 := attBTH[t2]
					for i := 0; i < hs; i++ {
						outBTH[i] += attBTHT2 * valueT2[i]
					}
				}
			}
		}
	}
}

// attentionBackward is the backward pass of attentionForward; the unmasked
// key set at each (b,t,h) mirrors the forward pass.
func attentionBackward(dinp, dpreatt, datt, dout, inp, att []float32, mask []int32, B, T, C, NH int) {
	C3 := C * 3
	hs := C / NH
	scale := float32(1.0 / math.Sqrt(float64(hs)))
	for b := 0; b < B; b++ {
		for t := 0; t < T; t++ {
			for h := 0; h < NH; h++ {
				attBTH := att[b*NH*T*T+h*T*T+t*T:]
				dattBTH := datt[b*NH*T*T+h*T*T+t*T:]
				dpreattBTH := dpreatt[b*NH*T*T+h*T*T+t*T:]
				dqueryT := dinp[b*T*C3+t*C3+h*hs:]
				queryT := inp[b*T*C3+t*C3+h*hs:]

				// backward pass 4: value accumulation
				doutBTH := dout[b*T*C+t*C+h*hs:]
				for t2 := 0; t2 < T; t2++ {
					if mask[b*T+t2] == 0 {
						continue
					}
					valueT2 := inp[b*T*C3+t2*C3+h*hs+C*2:]
					dvalueT2 := dinp[b*T*C3+t2*C3+h*hs+C*2:]
					for i := 0; i < hs; i++ {
						dattBTH[t2] += valueT2[i] * doutBTH[i]
						dvalueT2[i] += attBTH[t2] * doutBTH[i]
					}
				}

				// backward pass 2 & 3: softmax backward
				for t2 := 0; t2 < T; t2++ {
					if mask[b*T+t2] == 0 {
						continue
					}
					for t3 := 0; t3 < T; t3++ {
						if mask[b*T+t3] == 0 {
							continue
						}
						indicator := float32(0.0)
						if t2 == t3 {
							indicator = 1.0
						}
						localDerivative := attBTH[t2] * (indicator - attBTH[t3])
						dpreattBTH[t3] += localDerivative * dattBTH[t2]
					}
				}

				// backward pass 1: query @ key matmul
				for t2 := 0; t2 < T; t2++ {
					if mask[b*T+t2] == 0 {
						continue
					}
					keyT2 := inp[b*T*C3+t2*C3+h*hs+C:]
					dkeyT2 := dinp[b*T*C3+t2*C3+h*hs+C:]
					for i := 0; i < hs; i++ {
						dqueryT[i] += keyT2[i] * dpreattBTH[t2] * scale
						dkeyT2[i] += queryT[i] * dpreattBTH[t2] * scale
					}
				}
			}
		}
	}
}

var geluScalingFactor = math.Sqrt(2.0 / math.Pi)

func geluForward(out, inp []float32, n int) {
	for i := 0; i < n; i++ {
		x := float64(inp[i])
		cube := 0.044715 * x * x * x
		out[i] = float32(0.5 * x * (1.0 + math.Tanh(geluScalingFactor*(x+cube))))
	}
}

func geluBackward(dinp, inp, dout []float32, n int) {
	for i := 0; i < n; i++ {
		x := float64(inp[i])
		cube := 0.044715 * x * x * x
		tanhArg := geluScalingFactor * (x + cube)
		tanhOut := math.Tanh(tanhArg)
		coshOut := math.Cosh(tanhArg)
		sechOut := 1.0 / (coshOut * coshOut)
		localGrad := 0.5*(1.0+tanhOut) + x*0.5*sechOut*geluScalingFactor*(1.0+3.0*0.044715*x*x)
		dinp[i] += float32(localGrad) * dout[i]
	}
}

func tanhForward(out, inp []float32, n int) {
	for i := 0; i < n; i++ {
		out[i] = Tanh(inp[i])
	}
}

// tanhBackward uses the forward output: d/dx tanh(x) = 1 - tanh(x)^2.
func tanhBackward(dinp, out, dout []float32, n int) {
	for i := 0; i < n; i++ {
		dinp[i] += (1.0 - out[i]*out[i]) * dout[i]
	}
}

func residualForward(out, inp1, inp2 []float32, N int) {
	for i := 0; i < N; i++ {
		out[i] = inp1[i] + inp2[i]
	}
}

func residualBackward(dinp1, dinp2, dout []float32, N int) {
	for i := 0; i < N; i++ {
		dinp1[i] += dout[i]
		dinp2[i] += dout[i]
	}
}

// clsGatherForward copies the first position's vector of each sequence into a
// contiguous (B,C) buffer for the pooler.
func clsGatherForward(out, inp []float32, B, T, C int) {
	for b := 0; b < B; b++ {
		copy(out[b*C:b*C+C], inp[b*T*C:b*T*C+C])
	}
}

func clsGatherBackward(dinp, dout []float32, B, T, C int) {
	for b := 0; b < B; b++ {
		for i := 0; i < C; i++ {
			dinp[b*T*C+i] += dout[b*C+i]
		}
	}
}

// dropoutForward applies inverted dropout: each kept element is scaled by
// 1/(1-p) so the expectation is unchanged. The keep mask is recorded for the
// backward pass.
func dropoutForward(out, inp, mask []float32, p float32, coin func() float32, n int) {
	if p <= 0 {
		copy(out[:n], inp[:n])
		for i := 0; i < n; i++ {
			mask[i] = 1.0
		}
		return
	}
	keep := 1.0 / (1.0 - p)
	for i := 0; i < n; i++ {
		if coin() < p {
			mask[i] = 0.0
			out[i] = 0.0
		} else {
			mask[i] = keep
			out[i] = inp[i] * keep
		}
	}
}

func dropoutBackward(dinp, dout, mask []float32, n int) {
	for i := 0; i < n; i++ {
		dinp[i] += dout[i] * mask[i]
	}
}

// softmaxForward turns logit rows (B,V) into probability rows.
func softmaxForward(probs, logits []float32, B, V int) {
	for b := 0; b < B; b++ {
		logitsB := logits[b*V : b*V+V]
		probsB := probs[b*V : b*V+V]

		maxval := float32(-10000.0)
		for i := 0; i < V; i++ {
			if logitsB[i] > maxval {
				maxval = logitsB[i]
			}
		}
		sum := 0.0
		for i := 0; i < V; i++ {
			probsB[i] = float32(math.Exp(float64(logitsB[i] - maxval)))
			sum += float64(probsB[i])
		}
		for i := 0; i < V; i++ {
			probsB[i] /= float32(sum)
		}
	}
}

// logSoftmaxForward computes log probabilities: x - max - log(sum(exp(x-max))).
func logSoftmaxForward(logProbs, logits []float32, B, V int) {
	for b := 0; b < B; b++ {
		logitsB := logits[b*V : b*V+V]
		logProbsB := logProbs[b*V : b*V+V]

		maxval := float32(-10000.0)
		for i := 0; i < V; i++ {
			if logitsB[i] > maxval {
				maxval = logitsB[i]
			}
		}
		sum := 0.0
		for i := 0; i < V; i++ {
			sum += math.Exp(float64(logitsB[i] - maxval))
		}
		logSum := float32(math.Log(sum))
		for i := 0; i < V; i++ {
			logProbsB[i] = logitsB[i] - maxval - logSum
		}
	}
}

// nllLossForward picks the negative log probability of each row's gold class.
func nllLossForward(losses, logProbs []float32, targets []int32, B, V int) {
	for b := 0; b < B; b++ {
		losses[b] = -logProbs[b*V+int(targets[b])]
	}
}

// nllSoftmaxBackward is the fused backward of log-softmax + NLL:
// dlogits = (probs - onehot(target)) * dloss.
func nllSoftmaxBackward(dlogits, dlosses, probs []float32, targets []int32, B, V int) {
	for b := 0; b < B; b++ {
		baseIndex := b * V
		dlogitsB := dlogits[baseIndex : baseIndex+V]
		probsB := probs[baseIndex : baseIndex+V]
		dloss := dlosses[b]
		ix := targets[b]

		for i := 0; i < V; i++ {
			p := probsB[i]
			var indicator float32
			if int32(i) == ix {
				indicator = 1.0
			}
			dlogitsB[i] += (p - indicator) * dloss
		}
	}
}

// argmax returns the index of the largest element; ties go to the lowest
// index, matching how predictions are compared against gold labels.
func argmax(row []float32) int32 {
	best := 0
	for i := 1; i < len(row); i++ {
		if row[i] > row[best] {
			best = i
		}
	}
	return int32(best)
}
