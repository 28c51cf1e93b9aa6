package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/hypogenlab/hypogen/internal/decoder"
	"github.com/hypogenlab/hypogen/internal/knowledge"
	"github.com/hypogenlab/hypogen/internal/records"
)

// wordCodec maps whole words to ids over a tiny fixed vocabulary.
type wordCodec struct {
	words []string
	index map[string]int
}

func newWordCodec(words ...string) *wordCodec {
	c := &wordCodec{words: words, index: make(map[string]int)}
	for i, w := range words {
		c.index[w] = i
	}
	return c
}

func (c *wordCodec) Encode(text string) []int {
	var ids []int
	for _, w := range strings.Fields(text) {
		if id, ok := c.index[w]; ok {
			ids = append(ids, id)
		} else {
			ids = append(ids, 0)
		}
	}
	return ids
}

func (c *wordCodec) Decode(ids []int) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, c.words[id])
	}
	return strings.Join(parts, " ")
}

// scriptedScorer peaks the logits at a scripted token id per step so the
// generated suffix is fully determined under top-k 1.
type scriptedScorer struct {
	vocab  int
	script []int
	calls  int
}

func (s *scriptedScorer) Score(_ context.Context, in *decoder.StepInput) ([][]float32, error) {
	peak := s.script[s.calls%len(s.script)]
	s.calls++
	out := make([][]float32, len(in.Tokens))
	for i := range out {
		row := make([]float32, s.vocab)
		for j := range row {
			row[j] = -4
		}
		row[peak] = 4
		out[i] = row
	}
	return out, nil
}

func (s *scriptedScorer) VocabSize() int { return s.vocab }
func (s *scriptedScorer) MaxSeqLen() int { return 0 }

func greedyFilter() decoder.FilterConfig {
	return decoder.FilterConfig{Temperature: 1.0, TopK: 1, TopP: 0}
}

func TestRunnerAnnotatesRecords(t *testing.T) {
	codec := newWordCodec("pad", "cat", "door", "slept", "soundly.", "<|beginhyp|>")
	scorer := &scriptedScorer{vocab: len(codec.words), script: []int{3, 4}}
	sampler := decoder.NewSequenceSampler(scorer, decoder.SamplerConfig{Seed: 7}, nil)

	runner := NewRunner(sampler, codec, nil, Options{
		ModelKey:   "hypogen",
		Mode:       decoder.ModeCausal,
		Length:     2,
		NumSamples: 3,
		Filter:     greedyFilter(),
	}, nil)

	recs := []*records.Record{
		{StoryID: "s1", Obs1: "cat door", Obs2: "cat"},
		{StoryID: "s2", Obs1: "door", Obs2: "door cat"},
	}
	if err := runner.Run(context.Background(), recs); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for _, rec := range recs {
		gens := rec.Generations["hypogen"]
		if len(gens) != 3 {
			t.Fatalf("record %s: got %d generations, want 3", rec.StoryID, len(gens))
		}
		for _, g := range gens {
			if g != "slept soundly." {
				t.Errorf("record %s: generation = %q", rec.StoryID, g)
			}
		}
	}
}

func TestRunnerStripsMarkers(t *testing.T) {
	codec := newWordCodec("pad", "obs", "<|beginhyp|>", "fine.", "<|endhyp|>")
	scorer := &scriptedScorer{vocab: len(codec.words), script: []int{3, 4}}
	sampler := decoder.NewSequenceSampler(scorer, decoder.SamplerConfig{Seed: 1}, nil)

	runner := NewRunner(sampler, codec, nil, Options{
		ModelKey:   "m",
		Mode:       decoder.ModeCausal,
		Length:     2,
		NumSamples: 1,
		Filter:     greedyFilter(),
	}, nil)

	rec := &records.Record{Obs1: "obs", Obs2: "obs"}
	if err := runner.Run(context.Background(), []*records.Record{rec}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := rec.Generations["m"][0]; got != "fine." {
		t.Errorf("generation = %q, want marker stripped and truncated", got)
	}
}

// countingEncoder wraps the mock to observe conditioning fetches.
type countingEncoder struct {
	knowledge.Mock
	calls int
}

func (c *countingEncoder) Conditioning(ctx context.Context, events []string) (*decoder.Conditioning, error) {
	c.calls++
	return c.Mock.Conditioning(ctx, events)
}

func TestRunnerFetchesConditioningPerRecord(t *testing.T) {
	codec := newWordCodec("pad", "obs", "word.", "tail")
	scorer := &scriptedScorer{vocab: len(codec.words), script: []int{2}}
	sampler := decoder.NewSequenceSampler(scorer, decoder.SamplerConfig{Seed: 3}, nil)
	enc := &countingEncoder{Mock: knowledge.Mock{EventWidth: 16, EmbeddingDim: 32, VocabSize: 40000}}

	runner := NewRunner(sampler, codec, enc, Options{
		ModelKey:   "m",
		Mode:       decoder.ModePermutation,
		Length:     1,
		NumSamples: 2,
		Filter:     greedyFilter(),
	}, nil)

	recs := []*records.Record{
		{Obs1: "obs", Obs2: "obs"},
		{Obs1: "obs tail", Obs2: "obs"},
	}
	if err := runner.Run(context.Background(), recs); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if enc.calls != 2 {
		t.Errorf("encoder consulted %d times, want once per record", enc.calls)
	}
}

func TestRunLines(t *testing.T) {
	codec := newWordCodec("pad", "sky", "fell.", "hard")
	scorer := &scriptedScorer{vocab: len(codec.words), script: []int{2}}
	sampler := decoder.NewSequenceSampler(scorer, decoder.SamplerConfig{Seed: 9}, nil)

	runner := NewRunner(sampler, codec, nil, Options{
		ModelKey:   "m",
		Mode:       decoder.ModeCausal,
		Length:     1,
		NumSamples: 2,
		Filter:     greedyFilter(),
	}, nil)

	gens, err := runner.RunLines(context.Background(), []string{"sky hard", "sky"})
	if err != nil {
		t.Fatalf("RunLines failed: %v", err)
	}
	if len(gens) != 2 {
		t.Fatalf("got %d prompt results, want 2", len(gens))
	}
	for i, perPrompt := range gens {
		if len(perPrompt) != 2 {
			t.Fatalf("prompt %d: got %d generations, want 2", i, len(perPrompt))
		}
		for _, g := range perPrompt {
			if g != "fell." {
				t.Errorf("prompt %d: generation = %q", i, g)
			}
		}
	}
}

func TestRunnerPropagatesFailure(t *testing.T) {
	codec := newWordCodec("pad", "obs")
	scorer := &scriptedScorer{vocab: len(codec.words), script: []int{1}}
	sampler := decoder.NewSequenceSampler(scorer, decoder.SamplerConfig{Seed: 3}, nil)

	runner := NewRunner(sampler, codec, nil, Options{
		ModelKey:   "m",
		Mode:       decoder.ModeCausal,
		Length:     0, // invalid on purpose
		NumSamples: 1,
		Filter:     greedyFilter(),
	}, nil)

	rec := &records.Record{StoryID: "bad", Obs1: "obs", Obs2: "obs"}
	err := runner.Run(context.Background(), []*records.Record{rec})
	if err == nil {
		t.Fatal("expected error for invalid length")
	}
	if !strings.Contains(err.Error(), "bad") {
		t.Errorf("error should name the failing record: %v", err)
	}
	if len(rec.Generations) != 0 {
		t.Errorf("failed record should carry no generations")
	}
}
