package knowledge

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/hypogenlab/hypogen/internal/decoder"
)

// Mock is an offline Encoder with deterministic output, for tests and for
// running the pipeline without a live knowledge service. Event strings map
// to stable pseudo-token rows; embeddings are unit vectors derived from
// the text hash.
type Mock struct {
	EventWidth   int
	EmbeddingDim int
	VocabSize    int
}

func NewMock() *Mock {
	return &Mock{EventWidth: 16, EmbeddingDim: 32, VocabSize: 40000}
}

func (m *Mock) Conditioning(_ context.Context, events []string) (*decoder.Conditioning, error) {
	cond := &decoder.Conditioning{
		Events: make([][]int64, len(events)),
		Mask:   make([][]float32, len(events)),
	}
	for i, ev := range events {
		seed := hash64(ev)
		row := make([]int64, m.EventWidth)
		mask := make([]float32, m.EventWidth)
		// Roughly one token per word, padded with zeros and a mask that
		// marks the filled prefix, like a real encoder would.
		filled := len(ev)/4 + 1
		if filled > m.EventWidth {
			filled = m.EventWidth
		}
		for j := 0; j < filled; j++ {
			seed = seed*6364136223846793005 + 1442695040888963407
			row[j] = int64(seed % uint64(m.VocabSize))
			mask[j] = 1
		}
		cond.Events[i] = row
		cond.Mask[i] = mask
	}
	return cond, nil
}

func (m *Mock) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		seed := hash64(text)
		vec := make([]float32, m.EmbeddingDim)
		var norm float64
		for j := range vec {
			seed = seed*6364136223846793005 + 1442695040888963407
			v := float64(int64(seed>>32))/float64(1<<31) - 1
			vec[j] = float32(v)
			norm += v * v
		}
		if norm > 0 {
			inv := float32(1 / math.Sqrt(norm))
			for j := range vec {
				vec[j] *= inv
			}
		}
		out[i] = vec
	}
	return out, nil
}

func hash64(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}
