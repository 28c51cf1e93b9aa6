package decoder

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/hypogenlab/hypogen/internal/logger"
	"github.com/hypogenlab/hypogen/internal/metrics"
)

// SamplerConfig configures a SequenceSampler. The seed makes a run
// reproducible; 0 falls back to the wall clock.
type SamplerConfig struct {
	Seed int64
}

// GenerateRequest describes one generation call: a single logical context
// replicated across NumSamples parallel samples, grown by exactly Length
// tokens each.
type GenerateRequest struct {
	Context    []int
	Length     int
	NumSamples int
	Mode       InputMode
	Filter     FilterConfig
	Cond       *Conditioning
}

// GenerateResult carries the finished sequences, generated suffix only —
// the context prefix is already stripped.
type GenerateResult struct {
	Sequences [][]int
	Mode      InputMode
	Steps     int
}

// SequenceSampler drives the step loop: encode, score, scale, filter,
// draw, append. The scoring model is the only external call in the loop
// and is invoked once per step for all samples together.
type SequenceSampler struct {
	scorer Scorer
	rng    *rand.Rand
	log    *logger.Logger
}

// NewSequenceSampler builds a sampler around the given scoring model.
// A nil log falls back to the package default.
func NewSequenceSampler(scorer Scorer, cfg SamplerConfig, log *logger.Logger) *SequenceSampler {
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if log == nil {
		log = logger.Default()
	}
	return &SequenceSampler{
		scorer: scorer,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		log:    log,
	}
}

// Generate runs the fixed-length decode loop. There is no early stop:
// even if the scoring model defines an end-of-sequence token, the loop
// always takes exactly req.Length steps. Any precondition violation fails
// the whole call before the first step; nothing partial is ever returned.
func (s *SequenceSampler) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	batch, err := Replicate(req.Context, req.Cond, req.NumSamples)
	if err != nil {
		return nil, err
	}

	vocab := s.scorer.VocabSize()
	s.log.Debug("generation start",
		"context_len", len(req.Context),
		"length", req.Length,
		"num_samples", req.NumSamples,
		"mode", req.Mode.String(),
		"vocab_size", vocab)
	metrics.ContextLength.Observe(float64(len(req.Context)))

	for step := 0; step < req.Length; step++ {
		tStep := time.Now()

		in := EncodeStep(batch.Samples, req.Mode, batch.Cond)

		tScore := time.Now()
		logits, err := s.scorer.Score(ctx, in)
		metrics.ScorerCallDuration.Observe(time.Since(tScore).Seconds())
		if err != nil {
			metrics.ScorerErrors.Inc()
			return nil, err
		}
		if err := checkLogitsShape(logits, req.NumSamples, vocab, step); err != nil {
			return nil, err
		}

		for i, row := range logits {
			for j := range row {
				row[j] /= req.Filter.Temperature
			}
			TopKTopPFilter(row, req.Filter.TopK, req.Filter.TopP)

			next := s.drawToken(Softmax(row))
			batch.Samples[i] = append(batch.Samples[i], next)
		}

		metrics.DecodeStepsTotal.Inc()
		metrics.TokensGeneratedTotal.Add(float64(req.NumSamples))
		metrics.DecodeStepDuration.Observe(time.Since(tStep).Seconds())
	}

	out := &GenerateResult{
		Sequences: make([][]int, req.NumSamples),
		Mode:      req.Mode,
		Steps:     req.Length,
	}
	prefix := len(req.Context)
	for i, seq := range batch.Samples {
		out.Sequences[i] = seq[prefix:]
	}
	return out, nil
}

// validate enforces every caller-facing precondition before any step runs.
func (s *SequenceSampler) validate(req *GenerateRequest) error {
	if len(req.Context) == 0 {
		return errorfPrecondition("empty context")
	}
	if req.Length <= 0 {
		return errorfPrecondition("invalid length: %d (must be positive)", req.Length)
	}
	if req.NumSamples < 1 {
		return errorfPrecondition("num_samples must be >= 1, got %d", req.NumSamples)
	}
	if err := req.Filter.Validate(); err != nil {
		return err
	}
	if maxLen := s.scorer.MaxSeqLen(); maxLen > 0 && len(req.Context)+req.Length > maxLen {
		return errorfPrecondition("context %d + length %d exceeds scorer max sequence length %d",
			len(req.Context), req.Length, maxLen)
	}
	for i, id := range req.Context {
		if id < 0 || id >= s.scorer.VocabSize() {
			return errorfPrecondition("context token %d at position %d out of vocab range [0, %d)",
				id, i, s.scorer.VocabSize())
		}
	}
	if req.Cond != nil {
		if err := req.Cond.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// drawToken performs one categorical draw over the probability row. This
// is the only place randomness enters the decode loop.
func (s *SequenceSampler) drawToken(probs []float64) int {
	r := s.rng.Float64()
	cum := 0.0
	last := 0
	for i, p := range probs {
		if p <= 0 {
			continue
		}
		cum += p
		last = i
		if r < cum {
			return i
		}
	}
	// Rounding left a sliver below 1.0: fall back to the last token that
	// carried probability mass.
	return last
}

func checkLogitsShape(logits [][]float32, numSamples, vocab, step int) error {
	if len(logits) != numSamples {
		return fmt.Errorf("%w: scorer returned %d logits rows for %d samples at step %d",
			ErrShapeMismatch, len(logits), numSamples, step)
	}
	for i, row := range logits {
		if len(row) != vocab {
			return fmt.Errorf("%w: logits row %d has %d entries, vocab is %d (step %d)",
				ErrShapeMismatch, i, len(row), vocab, step)
		}
	}
	return nil
}
