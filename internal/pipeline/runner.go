// Package pipeline drives a generation run end to end: build the prompt
// for each record, tokenize it, optionally fetch knowledge conditioning,
// sample hypotheses and attach the cleaned text back onto the record.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/hypogenlab/hypogen/internal/decoder"
	"github.com/hypogenlab/hypogen/internal/knowledge"
	"github.com/hypogenlab/hypogen/internal/logger"
	"github.com/hypogenlab/hypogen/internal/metrics"
	"github.com/hypogenlab/hypogen/internal/records"
)

// TokenCodec is the tokenization contract the runner needs. The BPE
// tokenizer satisfies it; tests substitute a fixed mapping.
type TokenCodec interface {
	Encode(text string) []int
	Decode(ids []int) string
}

// Options fixes the shape of every generation in a run.
type Options struct {
	ModelKey   string
	Mode       decoder.InputMode
	Length     int
	NumSamples int
	Filter     decoder.FilterConfig
}

// Runner annotates records with generated hypotheses. Encoder is
// optional; when nil, generation runs unconditioned.
type Runner struct {
	sampler *decoder.SequenceSampler
	codec   TokenCodec
	encoder knowledge.Encoder
	opts    Options
	log     *logger.Logger
}

func NewRunner(sampler *decoder.SequenceSampler, codec TokenCodec, encoder knowledge.Encoder, opts Options, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.Default()
	}
	return &Runner{sampler: sampler, codec: codec, encoder: encoder, opts: opts, log: log}
}

// Run generates hypotheses for every record in place. A failing record
// fails the run; partially annotated records keep what they got.
func (r *Runner) Run(ctx context.Context, recs []*records.Record) error {
	start := time.Now()
	for i, rec := range recs {
		if err := r.runOne(ctx, rec); err != nil {
			metrics.GenerationsTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("record %d (%s): %w", i, rec.StoryID, err)
		}
		metrics.GenerationsTotal.WithLabelValues("ok").Inc()
		if (i+1)%50 == 0 {
			r.log.Info("generation progress", "done", i+1, "total", len(recs))
		}
	}
	r.log.Info("generation run complete",
		"records", len(recs),
		"model_key", r.opts.ModelKey,
		"elapsed", time.Since(start).Round(time.Millisecond).String())
	return nil
}

// RunLines generates for bare prompt lines instead of structured records.
// The returned slice holds NumSamples cleaned generations per prompt, in
// prompt order.
func (r *Runner) RunLines(ctx context.Context, prompts []string) ([][]string, error) {
	out := make([][]string, len(prompts))
	for i, prompt := range prompts {
		gens, err := r.generate(ctx, prompt, nil)
		if err != nil {
			return nil, fmt.Errorf("prompt %d: %w", i, err)
		}
		out[i] = gens
	}
	return out, nil
}

func (r *Runner) runOne(ctx context.Context, rec *records.Record) error {
	var events []string
	if r.encoder != nil {
		events = records.ConditioningEvents(rec)
	}
	gens, err := r.generate(ctx, records.BuildPrompt(rec), events)
	if err != nil {
		return err
	}
	for _, g := range gens {
		rec.AddGeneration(r.opts.ModelKey, g)
	}
	return nil
}

func (r *Runner) generate(ctx context.Context, prompt string, events []string) ([]string, error) {
	var cond *decoder.Conditioning
	if r.encoder != nil && len(events) > 0 {
		var err error
		cond, err = r.encoder.Conditioning(ctx, events)
		if err != nil {
			return nil, fmt.Errorf("knowledge conditioning: %w", err)
		}
	}

	res, err := r.sampler.Generate(ctx, &decoder.GenerateRequest{
		Context:    r.codec.Encode(prompt),
		Length:     r.opts.Length,
		NumSamples: r.opts.NumSamples,
		Mode:       r.opts.Mode,
		Filter:     r.opts.Filter,
		Cond:       cond,
	})
	if err != nil {
		return nil, err
	}

	gens := make([]string, len(res.Sequences))
	for i, seq := range res.Sequences {
		gens[i] = records.CleanGeneration(r.codec.Decode(seq))
	}
	return gens, nil
}
