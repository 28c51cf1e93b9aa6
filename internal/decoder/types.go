package decoder

import (
	"context"
	"errors"
	"fmt"
)

// Error classes. Precondition violations abort a generation call before any
// step runs; shape mismatches surface on the first step that observes them.
var (
	ErrPrecondition  = errors.New("precondition violation")
	ErrShapeMismatch = errors.New("shape mismatch")
)

func errorfPrecondition(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrPrecondition, fmt.Sprintf(format, args...))
}

// InputMode selects how per-step model inputs are constructed.
type InputMode int

const (
	// ModeCausal feeds the raw growing sequence; the scoring model predicts
	// the token after the last position.
	ModeCausal InputMode = iota

	// ModePermutation appends a synthetic placeholder position plus an
	// explicit visibility mask and target map, for scoring models that
	// predict a masked position directly instead of "next after last".
	ModePermutation
)

func (m InputMode) String() string {
	switch m {
	case ModeCausal:
		return "causal"
	case ModePermutation:
		return "permutation"
	default:
		return fmt.Sprintf("InputMode(%d)", int(m))
	}
}

// ParseInputMode maps a flag value to an InputMode.
func ParseInputMode(s string) (InputMode, error) {
	switch s {
	case "", "causal":
		return ModeCausal, nil
	case "permutation":
		return ModePermutation, nil
	default:
		return 0, fmt.Errorf("%w: unknown input mode %q", ErrPrecondition, s)
	}
}

// Conditioning is an auxiliary knowledge signal produced by an external
// encoder: a matrix of event token encodings and a same-shaped visibility
// mask. Both are read-only once handed to the decoder.
type Conditioning struct {
	Events [][]int64
	Mask   [][]float32
}

// Validate checks that Events and Mask agree on shape and are non-ragged.
func (c *Conditioning) Validate() error {
	if len(c.Events) == 0 {
		return fmt.Errorf("%w: conditioning has no event rows", ErrShapeMismatch)
	}
	if len(c.Events) != len(c.Mask) {
		return fmt.Errorf("%w: conditioning events rows %d != mask rows %d",
			ErrShapeMismatch, len(c.Events), len(c.Mask))
	}
	width := len(c.Events[0])
	for i := range c.Events {
		if len(c.Events[i]) != width || len(c.Mask[i]) != width {
			return fmt.Errorf("%w: ragged conditioning row %d", ErrShapeMismatch, i)
		}
	}
	return nil
}

// clone deep-copies the conditioning so per-sample consumers never alias
// the source data.
func (c *Conditioning) clone() *Conditioning {
	if c == nil {
		return nil
	}
	out := &Conditioning{
		Events: make([][]int64, len(c.Events)),
		Mask:   make([][]float32, len(c.Mask)),
	}
	for i, row := range c.Events {
		out.Events[i] = append([]int64(nil), row...)
	}
	for i, row := range c.Mask {
		out.Mask[i] = append([]float32(nil), row...)
	}
	return out
}

// StepInput is the model-ready encoding for a single decode step. Tokens
// always carries one row per parallel sample. The permutation-mode fields
// and the conditioning fields are nil when unused; the scoring model is
// responsible for consuming whichever fields are present.
type StepInput struct {
	// Tokens is the token id matrix, one row per sample. In permutation
	// mode every row ends with the synthetic placeholder token.
	Tokens [][]int

	// PermMask is the (L+1)x(L+1) visibility mask in permutation mode:
	// PermMask[i][j] == 1 means position i must not attend to position j.
	// Shared across samples.
	PermMask [][]float32

	// TargetMap is the 1x(L+1) one-hot row selecting the position whose
	// output is the prediction. Shared across samples.
	TargetMap []float32

	// Cond carries the replicated auxiliary conditioning, one entry per
	// sample row, attached unmodified. Nil when no conditioning is in use.
	Cond []*Conditioning
}

// SeqLen returns the per-row token count (including the placeholder in
// permutation mode). Zero for an empty input.
func (in *StepInput) SeqLen() int {
	if len(in.Tokens) == 0 {
		return 0
	}
	return len(in.Tokens[0])
}

// Scorer is the external scoring model collaborator. One Score call
// processes all parallel samples of a step as a single batch and returns a
// logits row per sample for exactly one predicted position.
type Scorer interface {
	Score(ctx context.Context, in *StepInput) ([][]float32, error)
	VocabSize() int
	MaxSeqLen() int
}
