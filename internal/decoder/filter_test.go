package decoder

import (
	"math"
	"testing"
)

func suppressed(v float32) bool {
	return math.IsInf(float64(v), -1)
}

func TestFilter_DisabledIsIdentity(t *testing.T) {
	logits := []float32{1.0, -2.5, 3.0, 0.0}
	want := append([]float32(nil), logits...)

	got := TopKTopPFilter(logits, 0, 0)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d changed: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestFilter_TopK(t *testing.T) {
	// Top 2 are ids 1 (10.0) and 2 (5.0); ids 0 and 3 must be suppressed.
	logits := []float32{2.0, 10.0, 5.0, 1.0}
	TopKTopPFilter(logits, 2, 0)

	if !suppressed(logits[0]) || !suppressed(logits[3]) {
		t.Errorf("expected ids 0 and 3 suppressed, got %v", logits)
	}
	if logits[1] != 10.0 || logits[2] != 5.0 {
		t.Errorf("kept entries must be unchanged, got %v", logits)
	}
}

func TestFilter_TopKTiesKept(t *testing.T) {
	// k=2 but three entries tie at the boundary value; all three survive.
	logits := []float32{5.0, 3.0, 3.0, 3.0, 1.0}
	TopKTopPFilter(logits, 2, 0)

	for i := 0; i < 4; i++ {
		if suppressed(logits[i]) {
			t.Errorf("id %d tied at threshold, must be kept: %v", i, logits)
		}
	}
	if !suppressed(logits[4]) {
		t.Errorf("id 4 below threshold, must be suppressed: %v", logits)
	}
}

func TestFilter_TopKClampedToVocab(t *testing.T) {
	logits := []float32{1.0, 2.0, 3.0}
	TopKTopPFilter(logits, 100, 0)

	for i, v := range logits {
		if suppressed(v) {
			t.Errorf("k >= vocab must be a no-op, entry %d suppressed", i)
		}
	}
}

func TestFilter_TopPInclusiveNucleus(t *testing.T) {
	// Probabilities roughly 0.4, 0.3, 0.2, 0.1 (ln of each). With
	// top_p=0.5 the cumulative crosses at the second entry, which stays in
	// (inclusive nucleus); ids 2 and 3 are cut.
	logits := []float32{-0.91, -1.20, -1.61, -2.30}
	TopKTopPFilter(logits, 0, 0.5)

	if suppressed(logits[0]) || suppressed(logits[1]) {
		t.Errorf("nucleus must keep ids 0 and 1: %v", logits)
	}
	if !suppressed(logits[2]) || !suppressed(logits[3]) {
		t.Errorf("ids 2 and 3 past the nucleus must be suppressed: %v", logits)
	}
}

func TestFilter_TopPKeepsAtLeastOne(t *testing.T) {
	logits := []float32{3.0, 1.0, 0.5, -2.0}
	TopKTopPFilter(logits, 0, 0.01)

	if suppressed(logits[0]) {
		t.Fatalf("highest-scoring token must never be suppressed: %v", logits)
	}
	for i := 1; i < len(logits); i++ {
		if !suppressed(logits[i]) {
			t.Errorf("id %d should be outside a 0.01 nucleus: %v", i, logits)
		}
	}
}

func TestFilter_Composition(t *testing.T) {
	// top_k narrows to 3, then the nucleus narrows further within those 3.
	logits := []float32{4.0, 3.0, 2.0, 1.0, 0.0}
	TopKTopPFilter(logits, 3, 0.6)

	if !suppressed(logits[3]) || !suppressed(logits[4]) {
		t.Errorf("ids 3 and 4 removed by top_k must stay suppressed: %v", logits)
	}
	if suppressed(logits[0]) {
		t.Errorf("top entry must survive both filters: %v", logits)
	}
	// Within the k=3 shortlist probs are ~0.66/0.24/0.09; 0.66 > 0.6
	// crosses immediately, so only id 0 remains.
	if !suppressed(logits[1]) || !suppressed(logits[2]) {
		t.Errorf("nucleus within shortlist should keep only id 0: %v", logits)
	}
}

func TestFilter_SoftmaxZeroOnSuppressed(t *testing.T) {
	logits := []float32{2.0, 10.0, 5.0, 1.0}
	TopKTopPFilter(logits, 2, 0)
	probs := Softmax(logits)

	sum := 0.0
	for i, p := range probs {
		if suppressed(logits[i]) && p != 0 {
			t.Errorf("suppressed id %d has probability %v", i, p)
		}
		sum += p
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("probabilities sum to %v, want 1.0", sum)
	}
}

func TestFilterConfig_Validate(t *testing.T) {
	cases := []struct {
		name string
		cfg  FilterConfig
		ok   bool
	}{
		{"defaults", FilterConfig{Temperature: 1.0}, true},
		{"zero temperature", FilterConfig{Temperature: 0}, false},
		{"negative temperature", FilterConfig{Temperature: -0.5}, false},
		{"negative top_k", FilterConfig{Temperature: 1.0, TopK: -1}, false},
		{"top_p above one", FilterConfig{Temperature: 1.0, TopP: 1.5}, false},
		{"full config", FilterConfig{Temperature: 0.7, TopK: 40, TopP: 0.9}, true},
	}

	for _, tc := range cases {
		err := tc.cfg.Validate()
		if tc.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}
