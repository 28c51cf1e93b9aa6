package scoring

import (
	"context"
	"hash/fnv"
	"math/rand"

	"github.com/hypogenlab/hypogen/internal/decoder"
)

// StubScorer is a deterministic in-process scoring model. Logits are
// drawn from an RNG seeded by the sample's token sequence, so the same
// sequence always scores the same way regardless of call order. Useful
// for offline runs (--stub) and for exercising the decode loop in tests
// without a Flight service.
type StubScorer struct {
	vocab  int
	maxSeq int
}

func NewStubScorer(vocabSize, maxSeqLen int) *StubScorer {
	return &StubScorer{vocab: vocabSize, maxSeq: maxSeqLen}
}

// Score implements decoder.Scorer.
func (s *StubScorer) Score(_ context.Context, in *decoder.StepInput) ([][]float32, error) {
	out := make([][]float32, len(in.Tokens))
	for i, row := range in.Tokens {
		h := fnv.New64a()
		for _, id := range row {
			var buf [4]byte
			buf[0] = byte(id)
			buf[1] = byte(id >> 8)
			buf[2] = byte(id >> 16)
			buf[3] = byte(id >> 24)
			h.Write(buf[:])
		}
		rng := rand.New(rand.NewSource(int64(h.Sum64())))

		logits := make([]float32, s.vocab)
		for j := range logits {
			logits[j] = float32(rng.NormFloat64())
		}
		out[i] = logits
	}
	return out, nil
}

func (s *StubScorer) VocabSize() int { return s.vocab }
func (s *StubScorer) MaxSeqLen() int { return s.maxSeq }
