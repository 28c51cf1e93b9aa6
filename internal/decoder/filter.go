package decoder

import (
	"math"
	"sort"
)

// negInf guarantees zero probability after softmax.
var negInf = float32(math.Inf(-1))

// FilterConfig controls temperature scaling and the composable top-k /
// nucleus filtering policy applied to next-token logits.
type FilterConfig struct {
	// Temperature divides the logits before filtering. Must be positive.
	Temperature float32 `yaml:"temperature"`

	// TopK keeps only the k highest-scoring entries. 0 disables.
	TopK int `yaml:"top_k"`

	// TopP keeps the smallest probability-sorted prefix whose cumulative
	// softmax probability first exceeds the threshold. 0 disables.
	TopP float32 `yaml:"top_p"`
}

// Validate reports the first malformed field, if any.
func (c FilterConfig) Validate() error {
	if c.Temperature <= 0 {
		return errorfPrecondition("invalid temperature: %g (must be positive)", c.Temperature)
	}
	if c.TopK < 0 {
		return errorfPrecondition("invalid top_k: %d (must be non-negative)", c.TopK)
	}
	if c.TopP < 0 || c.TopP > 1 {
		return errorfPrecondition("invalid top_p: %g (must be in [0,1])", c.TopP)
	}
	return nil
}

// TopKTopPFilter suppresses logits in place and returns the same slice.
// Suppressed entries become -Inf; kept entries are unchanged.
//
// With topK > 0, k is clamped to the vocabulary size and every entry
// strictly below the k-th largest value is removed — ties at the boundary
// all survive, so more than k entries may remain. With topP > 0 the
// surviving entries are then narrowed to the inclusive nucleus: the
// descending-probability prefix up to and including the first entry whose
// cumulative probability exceeds topP. The top entry is never removed, so
// the nucleus always contains at least one token. With both set to 0 the
// input is returned untouched.
func TopKTopPFilter(logits []float32, topK int, topP float32) []float32 {
	if topK > 0 {
		k := topK
		if k > len(logits) {
			k = len(logits)
		}
		kth := kthLargest(logits, k)
		for i, v := range logits {
			if v < kth {
				logits[i] = negInf
			}
		}
	}

	if topP > 0 {
		order := make([]int, len(logits))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return logits[order[a]] > logits[order[b]]
		})

		probs := sortedSoftmax(logits, order)

		// Walk the sorted order accumulating probability. An entry is
		// removed only if the threshold was already crossed before it,
		// which keeps the entry that first crosses topP and always keeps
		// the top-ranked entry.
		cum := float64(0)
		crossed := false
		for _, idx := range order {
			if crossed {
				logits[idx] = negInf
				continue
			}
			cum += probs[idx]
			if float32(cum) > topP {
				crossed = true
			}
		}
	}

	return logits
}

// kthLargest returns the k-th largest value (1-based) without disturbing
// the input. k must be in [1, len(logits)].
func kthLargest(logits []float32, k int) float32 {
	sorted := append([]float32(nil), logits...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })
	return sorted[k-1]
}

// sortedSoftmax computes softmax probabilities indexed by vocabulary id,
// using the provided descending order for the max subtraction. -Inf entries
// get probability zero.
func sortedSoftmax(logits []float32, order []int) []float64 {
	probs := make([]float64, len(logits))
	if len(order) == 0 {
		return probs
	}
	maxVal := float64(logits[order[0]])

	sum := 0.0
	for _, idx := range order {
		v := float64(logits[idx])
		if math.IsInf(v, -1) {
			continue
		}
		e := math.Exp(v - maxVal)
		probs[idx] = e
		sum += e
	}
	if sum == 0 {
		return probs
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// Softmax converts a logits row to probabilities. Suppressed (-Inf)
// entries map to exactly zero.
func Softmax(logits []float32) []float64 {
	probs := make([]float64, len(logits))
	maxVal := math.Inf(-1)
	for _, v := range logits {
		if float64(v) > maxVal {
			maxVal = float64(v)
		}
	}
	if math.IsInf(maxVal, -1) {
		return probs
	}

	sum := 0.0
	for i, v := range logits {
		if math.IsInf(float64(v), -1) {
			continue
		}
		e := math.Exp(float64(v) - maxVal)
		probs[i] = e
		sum += e
	}
	if sum > 0 {
		for i := range probs {
			probs[i] /= sum
		}
	}
	return probs
}
