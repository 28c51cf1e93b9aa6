package eval

import (
	"context"
	"fmt"
	"math"
)

// CIDEr scores consensus between a prediction and its references using
// tf-idf weighted n-gram cosine similarity, averaged over n=1..4 and over
// the corpus, scaled by 10 as in the reference implementation. The idf
// table is built from the references of the scored corpus itself.
type CIDEr struct{}

const ciderMaxN = 4

func (CIDEr) Name() string { return "CIDEr" }

func (CIDEr) Score(_ context.Context, insts []Instance) (float64, error) {
	if len(insts) == 0 {
		return 0, fmt.Errorf("no instances to score")
	}

	// Document frequency per n-gram, one document per instance's
	// reference set.
	df := make([]map[string]float64, ciderMaxN)
	for n := range df {
		df[n] = make(map[string]float64)
	}
	for _, inst := range insts {
		for n := 1; n <= ciderMaxN; n++ {
			seen := make(map[string]bool)
			for _, ref := range inst.References {
				for gram := range ngramCounts(tokenize(ref), n) {
					seen[gram] = true
				}
			}
			for gram := range seen {
				df[n-1][gram]++
			}
		}
	}
	logN := math.Log(float64(len(insts)))

	total := 0.0
	for _, inst := range insts {
		cand := tokenize(inst.Prediction)
		instScore := 0.0
		for n := 1; n <= ciderMaxN; n++ {
			cv, cn := tfidf(ngramCounts(cand, n), df[n-1], logN)
			simSum := 0.0
			for _, ref := range inst.References {
				rv, rn := tfidf(ngramCounts(tokenize(ref), n), df[n-1], logN)
				simSum += cosine(cv, cn, rv, rn)
			}
			if len(inst.References) > 0 {
				instScore += simSum / float64(len(inst.References))
			}
		}
		total += instScore / ciderMaxN
	}
	return 10.0 * total / float64(len(insts)), nil
}

// tfidf weights raw counts by idf and returns the vector with its norm.
func tfidf(counts map[string]int, df map[string]float64, logN float64) (map[string]float64, float64) {
	vec := make(map[string]float64, len(counts))
	norm := 0.0
	for gram, c := range counts {
		d := df[gram]
		if d < 1 {
			d = 1
		}
		w := float64(c) * math.Max(0, logN-math.Log(d))
		vec[gram] = w
		norm += w * w
	}
	return vec, math.Sqrt(norm)
}

func cosine(a map[string]float64, an float64, b map[string]float64, bn float64) float64 {
	if an == 0 || bn == 0 {
		return 0
	}
	dot := 0.0
	for gram, av := range a {
		dot += av * b[gram]
	}
	return dot / (an * bn)
}
