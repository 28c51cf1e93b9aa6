package decoder

// EncodeStep builds the model input for one decode step from the current
// per-sample sequences. All rows of samples must have equal length (the
// sampler grows every row by one token per step, so this holds by
// construction).
//
// Causal mode passes the sequences through untouched. Permutation mode
// appends one synthetic placeholder token per row and builds the visibility
// mask and target map that tell a bidirectional scoring model to predict
// the placeholder position: no position may attend to the placeholder, and
// only the placeholder's output is the prediction.
//
// Conditioning, when present, is attached unmodified in either mode; cond
// holds one replicated copy per sample row.
func EncodeStep(samples [][]int, mode InputMode, cond []*Conditioning) *StepInput {
	in := &StepInput{}

	switch mode {
	case ModePermutation:
		seqLen := 0
		if len(samples) > 0 {
			seqLen = len(samples[0])
		}
		in.Tokens = make([][]int, len(samples))
		for i, row := range samples {
			withPlaceholder := make([]int, len(row)+1)
			copy(withPlaceholder, row)
			withPlaceholder[len(row)] = placeholderToken
			in.Tokens[i] = withPlaceholder
		}

		// Square mask over seqLen+1 positions. Column seqLen is the
		// placeholder: invisible to every position, itself included.
		n := seqLen + 1
		in.PermMask = make([][]float32, n)
		for i := range in.PermMask {
			in.PermMask[i] = make([]float32, n)
			in.PermMask[i][n-1] = 1.0
		}

		in.TargetMap = make([]float32, n)
		in.TargetMap[n-1] = 1.0

	default:
		in.Tokens = samples
	}

	in.Cond = cond
	return in
}

// placeholderToken fills the synthetic masked position. Its value never
// influences the prediction because the visibility mask hides it.
const placeholderToken = 0
