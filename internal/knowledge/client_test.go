package knowledge

import (
	"context"
	"testing"
)

func TestMock_ConditioningShape(t *testing.T) {
	m := NewMock()
	cond, err := m.Conditioning(context.Background(), []string{
		"PersonX went to the garage",
		"PersonX discovered a flat tire",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := cond.Validate(); err != nil {
		t.Fatalf("mock produced invalid conditioning: %v", err)
	}
	if len(cond.Events) != 2 {
		t.Fatalf("rows: got %d, want 2", len(cond.Events))
	}
	for i, row := range cond.Events {
		if len(row) != m.EventWidth {
			t.Errorf("row %d width %d, want %d", i, len(row), m.EventWidth)
		}
		for j, id := range row {
			if id < 0 || id >= int64(m.VocabSize) {
				t.Errorf("token (%d,%d) = %d out of encoder vocab", i, j, id)
			}
		}
	}
}

func TestMock_ConditioningDeterministic(t *testing.T) {
	m := NewMock()
	events := []string{"the car pulled to the left"}

	a, err := m.Conditioning(context.Background(), events)
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.Conditioning(context.Background(), events)
	if err != nil {
		t.Fatal(err)
	}
	for j := range a.Events[0] {
		if a.Events[0][j] != b.Events[0][j] {
			t.Fatalf("mock conditioning not deterministic at %d", j)
		}
	}
}

func TestMock_EmbedUnitNorm(t *testing.T) {
	m := NewMock()
	vecs, err := m.Embed(context.Background(), []string{"one", "two", "three"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 3 {
		t.Fatalf("rows: got %d, want 3", len(vecs))
	}
	for i, vec := range vecs {
		if len(vec) != m.EmbeddingDim {
			t.Fatalf("vec %d dim %d, want %d", i, len(vec), m.EmbeddingDim)
		}
		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		if norm < 0.99 || norm > 1.01 {
			t.Errorf("vec %d norm² = %v, want ~1", i, norm)
		}
	}
}
