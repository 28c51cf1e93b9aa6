package eval

import (
	"context"
	"fmt"
	"math"
)

// BLEU is corpus-level BLEU-N: the geometric mean of modified n-gram
// precisions for n=1..N, scaled by the brevity penalty.
type BLEU struct {
	N int
}

func (b BLEU) Name() string { return fmt.Sprintf("Bleu_%d", b.N) }

func (b BLEU) Score(_ context.Context, insts []Instance) (float64, error) {
	if b.N < 1 || b.N > 4 {
		return 0, fmt.Errorf("unsupported BLEU order %d", b.N)
	}
	if len(insts) == 0 {
		return 0, fmt.Errorf("no instances to score")
	}

	matched := make([]int, b.N)
	total := make([]int, b.N)
	candLen, refLen := 0, 0

	for _, inst := range insts {
		cand := tokenize(inst.Prediction)
		candLen += len(cand)
		refLen += closestRefLen(inst.References, len(cand))

		for n := 1; n <= b.N; n++ {
			candCounts := ngramCounts(cand, n)

			// Clip candidate counts by the per-reference maximum.
			maxRef := make(map[string]int)
			for _, ref := range inst.References {
				for gram, c := range ngramCounts(tokenize(ref), n) {
					if c > maxRef[gram] {
						maxRef[gram] = c
					}
				}
			}
			for gram, c := range candCounts {
				m := c
				if maxRef[gram] < m {
					m = maxRef[gram]
				}
				matched[n-1] += m
				total[n-1] += c
			}
		}
	}

	logSum := 0.0
	for n := 0; n < b.N; n++ {
		if matched[n] == 0 || total[n] == 0 {
			return 0, nil
		}
		logSum += math.Log(float64(matched[n]) / float64(total[n]))
	}
	score := math.Exp(logSum / float64(b.N))

	if candLen < refLen && candLen > 0 {
		score *= math.Exp(1 - float64(refLen)/float64(candLen))
	}
	return score, nil
}

// closestRefLen picks the reference length nearest to the candidate
// length, shorter winning ties.
func closestRefLen(refs []string, candLen int) int {
	best, bestDiff := 0, math.MaxInt
	for _, ref := range refs {
		l := len(tokenize(ref))
		diff := l - candLen
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff || (diff == bestDiff && l < best) {
			best, bestDiff = l, diff
		}
	}
	return best
}
