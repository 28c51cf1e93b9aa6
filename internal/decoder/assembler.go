package decoder

// Batch holds the per-sample state for one generation call: n independent
// copies of the caller's context plus n independent copies of the optional
// conditioning. Rows never alias each other or the source data, so
// appending to one sample can never leak into another.
type Batch struct {
	Samples [][]int
	Cond    []*Conditioning
}

// Replicate broadcasts context and conditioning across n parallel samples.
func Replicate(context []int, cond *Conditioning, n int) (*Batch, error) {
	if n < 1 {
		return nil, errorfPrecondition("num_samples must be >= 1, got %d", n)
	}

	b := &Batch{Samples: make([][]int, n)}
	for i := 0; i < n; i++ {
		b.Samples[i] = append([]int(nil), context...)
	}
	if cond != nil {
		b.Cond = make([]*Conditioning, n)
		for i := 0; i < n; i++ {
			b.Cond[i] = cond.clone()
		}
	}
	return b, nil
}
