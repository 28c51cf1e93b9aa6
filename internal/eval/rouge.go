package eval

import (
	"context"
	"fmt"
)

// ROUGEL is ROUGE-L: an F-measure over the longest common subsequence
// between prediction and reference, taking the best reference per
// instance and averaging across the corpus. Beta weights recall over
// precision, matching the common summarization setting.
type ROUGEL struct{}

const rougeBeta = 1.2

func (ROUGEL) Name() string { return "ROUGE_L" }

func (ROUGEL) Score(_ context.Context, insts []Instance) (float64, error) {
	if len(insts) == 0 {
		return 0, fmt.Errorf("no instances to score")
	}

	sum := 0.0
	for _, inst := range insts {
		cand := tokenize(inst.Prediction)
		best := 0.0
		for _, ref := range inst.References {
			if f := lcsFMeasure(cand, tokenize(ref)); f > best {
				best = f
			}
		}
		sum += best
	}
	return sum / float64(len(insts)), nil
}

func lcsFMeasure(cand, ref []string) float64 {
	if len(cand) == 0 || len(ref) == 0 {
		return 0
	}
	lcs := float64(lcsLen(cand, ref))
	prec := lcs / float64(len(cand))
	rec := lcs / float64(len(ref))
	if prec == 0 || rec == 0 {
		return 0
	}
	b2 := rougeBeta * rougeBeta
	return (1 + b2) * prec * rec / (rec + b2*prec)
}

// lcsLen is the classic dynamic program over two token rows.
func lcsLen(a, b []string) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else if prev[j] >= cur[j-1] {
				cur[j] = prev[j]
			} else {
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
