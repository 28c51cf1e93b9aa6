package decoder

import (
	"errors"
	"testing"
)

func TestReplicate_Broadcast(t *testing.T) {
	context := []int{3, 1, 4}
	cond := &Conditioning{
		Events: [][]int64{{7, 8, 9}},
		Mask:   [][]float32{{1, 1, 0}},
	}

	b, err := Replicate(context, cond, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Samples) != 4 || len(b.Cond) != 4 {
		t.Fatalf("expected 4 replicated rows, got %d samples, %d cond", len(b.Samples), len(b.Cond))
	}
	for i, row := range b.Samples {
		if len(row) != len(context) {
			t.Errorf("sample %d length %d, want %d", i, len(row), len(context))
		}
	}
}

func TestReplicate_NoAliasing(t *testing.T) {
	context := []int{3, 1}
	cond := &Conditioning{
		Events: [][]int64{{7, 8}},
		Mask:   [][]float32{{1, 1}},
	}

	b, err := Replicate(context, cond, 3)
	if err != nil {
		t.Fatal(err)
	}

	// Mutating one sample's row must not leak into siblings or the source.
	b.Samples[0] = append(b.Samples[0], 99)
	b.Samples[1][0] = -1
	b.Cond[0].Events[0][0] = 42
	b.Cond[0].Mask[0][1] = 0

	if context[0] != 3 || len(context) != 2 {
		t.Errorf("source context mutated: %v", context)
	}
	if b.Samples[2][0] != 3 || len(b.Samples[2]) != 2 {
		t.Errorf("sibling sample mutated: %v", b.Samples[2])
	}
	if cond.Events[0][0] != 7 || cond.Mask[0][1] != 1 {
		t.Errorf("source conditioning mutated: %+v", cond)
	}
	if b.Cond[1].Events[0][0] != 7 || b.Cond[1].Mask[0][1] != 1 {
		t.Errorf("sibling conditioning mutated: %+v", b.Cond[1])
	}
}

func TestReplicate_WithoutConditioning(t *testing.T) {
	b, err := Replicate([]int{1}, nil, 2)
	if err != nil {
		t.Fatal(err)
	}
	if b.Cond != nil {
		t.Errorf("expected nil conditioning, got %v", b.Cond)
	}
}

func TestReplicate_RejectsBadSampleCount(t *testing.T) {
	for _, n := range []int{0, -1} {
		_, err := Replicate([]int{1, 2}, nil, n)
		if err == nil {
			t.Errorf("n=%d: expected error", n)
		}
		if !errors.Is(err, ErrPrecondition) {
			t.Errorf("n=%d: expected precondition violation, got %v", n, err)
		}
	}
}
