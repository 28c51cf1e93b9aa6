package eval

import (
	"context"
	"fmt"
	"math"

	"github.com/hypogenlab/hypogen/internal/knowledge"
)

// EmbeddingSimilarity scores the mean cosine similarity between each
// prediction and its best-matching reference, using sentence embeddings
// from the knowledge encoder.
type EmbeddingSimilarity struct {
	Encoder knowledge.Encoder
}

func (EmbeddingSimilarity) Name() string { return "EmbeddingSim" }

func (e EmbeddingSimilarity) Score(ctx context.Context, insts []Instance) (float64, error) {
	if e.Encoder == nil {
		return 0, fmt.Errorf("no knowledge encoder configured")
	}
	if len(insts) == 0 {
		return 0, fmt.Errorf("no instances to score")
	}

	sum := 0.0
	for _, inst := range insts {
		texts := append([]string{inst.Prediction}, inst.References...)
		vecs, err := e.Encoder.Embed(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("embedding fetch failed: %w", err)
		}
		pred := vecs[0]
		best := 0.0
		for i, ref := range vecs[1:] {
			if s := cosine32(pred, ref); i == 0 || s > best {
				best = s
			}
		}
		sum += best
	}
	return sum / float64(len(insts)), nil
}

func cosine32(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
