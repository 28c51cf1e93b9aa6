// Command hypogen generates abductive hypotheses for a JSONL task file.
// It reads records, samples hypotheses from an external scoring model (or
// the in-process stub) and writes the annotated records back out.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/hypogenlab/hypogen/internal/config"
	"github.com/hypogenlab/hypogen/internal/decoder"
	"github.com/hypogenlab/hypogen/internal/knowledge"
	"github.com/hypogenlab/hypogen/internal/logger"
	"github.com/hypogenlab/hypogen/internal/monitoring"
	"github.com/hypogenlab/hypogen/internal/pipeline"
	"github.com/hypogenlab/hypogen/internal/records"
	"github.com/hypogenlab/hypogen/internal/scoring"
	"github.com/hypogenlab/hypogen/internal/tokenizer"
)

func main() {
	var (
		configPath string
		inputPath  string
		outputPath string

		plainLines bool

		scorerAddr string
		stub       bool
		modelKey   string
		mode       string
		length     int64
		numSamples int64
		seed       int64
		knowAddr   string
		knowCond   bool
	)

	app := &cli.Command{
		Name:  "hypogen",
		Usage: "Sample abductive hypotheses with a constrained decoding loop",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "YAML config file overlaid onto the defaults",
				Destination: &configPath,
			},
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "JSONL file of task records",
				Required:    true,
				Destination: &inputPath,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "JSONL file for the annotated records",
				Required:    true,
				Destination: &outputPath,
			},
			&cli.BoolFlag{
				Name:        "plain",
				Usage:       "treat the input as bare prompt lines instead of task records",
				Destination: &plainLines,
			},
			&cli.StringFlag{
				Name:        "scorer-addr",
				Usage:       "Arrow Flight address of the scoring model",
				Destination: &scorerAddr,
			},
			&cli.BoolFlag{
				Name:        "stub",
				Usage:       "score with the deterministic in-process stub",
				Destination: &stub,
			},
			&cli.StringFlag{
				Name:        "model-key",
				Usage:       "key the generations are stored under",
				Destination: &modelKey,
			},
			&cli.StringFlag{
				Name:        "mode",
				Usage:       "input encoding mode: causal or permutation",
				Destination: &mode,
			},
			&cli.Int64Flag{
				Name:        "length",
				Aliases:     []string{"n"},
				Usage:       "number of tokens to generate per sample",
				Destination: &length,
			},
			&cli.Int64Flag{
				Name:        "num-samples",
				Usage:       "parallel samples per record",
				Destination: &numSamples,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "RNG seed, 0 uses the wall clock",
				Destination: &seed,
			},
			&cli.StringFlag{
				Name:        "knowledge-addr",
				Usage:       "Arrow Flight address of the knowledge encoder",
				Destination: &knowAddr,
			},
			&cli.BoolFlag{
				Name:        "include-knowledge",
				Usage:       "condition generation on encoded observations",
				Destination: &knowCond,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.IsSet("scorer-addr") {
				cfg.ScorerAddr = scorerAddr
			}
			if cmd.IsSet("stub") {
				cfg.Stub = stub
			}
			if cmd.IsSet("model-key") {
				cfg.ModelKey = modelKey
			}
			if cmd.IsSet("mode") {
				cfg.Mode = mode
			}
			if cmd.IsSet("length") {
				cfg.Length = int(length)
			}
			if cmd.IsSet("num-samples") {
				cfg.NumSamples = int(numSamples)
			}
			if cmd.IsSet("seed") {
				cfg.Seed = seed
			}
			if cmd.IsSet("knowledge-addr") {
				cfg.KnowledgeAddr = knowAddr
			}
			if cmd.IsSet("include-knowledge") {
				cfg.IncludeKnowledge = knowCond
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(ctx, cfg, inputPath, outputPath, plainLines)
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, inputPath, outputPath string, plainLines bool) error {
	logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log := logger.Default()

	codec, err := tokenizer.New(cfg.Encoding)
	if err != nil {
		return err
	}

	scorer, closeScorer, err := buildScorer(ctx, cfg, codec.VocabSize(), log)
	if err != nil {
		return err
	}
	defer closeScorer()

	encoder, closeEncoder, err := buildEncoder(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeEncoder()

	mon := monitoring.NewServer(log)
	mon.SetRunInfo(monitoring.RunInfo{
		ModelKey:  cfg.ModelKey,
		Mode:      cfg.Mode,
		VocabSize: scorer.VocabSize(),
		Scorer:    scorerKind(cfg),
	})
	go func() {
		if err := mon.ListenAndServe(cfg.MetricsAddr); err != nil {
			log.Error("monitoring server stopped", "error", err.Error())
		}
	}()

	sampler := decoder.NewSequenceSampler(scorer, decoder.SamplerConfig{Seed: cfg.Seed}, log)
	runner := pipeline.NewRunner(sampler, codec, encoder, pipeline.Options{
		ModelKey:   cfg.ModelKey,
		Mode:       cfg.InputMode(),
		Length:     cfg.Length,
		NumSamples: cfg.NumSamples,
		Filter:     cfg.Filter,
	}, log)

	if plainLines {
		prompts, err := records.ReadLines(inputPath)
		if err != nil {
			return fmt.Errorf("failed to read prompts: %w", err)
		}
		log.Info("prompts loaded", "path", inputPath, "count", len(prompts))

		gens, err := runner.RunLines(ctx, prompts)
		if err != nil {
			return err
		}
		var lines []string
		for _, perPrompt := range gens {
			lines = append(lines, perPrompt...)
		}
		if err := records.WriteLines(outputPath, lines); err != nil {
			return fmt.Errorf("failed to write generations: %w", err)
		}
		log.Info("generations written", "path", outputPath, "count", len(lines))
		return nil
	}

	recs, err := records.ReadJSONL(inputPath)
	if err != nil {
		return fmt.Errorf("failed to read records: %w", err)
	}
	log.Info("records loaded", "path", inputPath, "count", len(recs))

	if err := runner.Run(ctx, recs); err != nil {
		return err
	}
	if err := records.WriteJSONL(outputPath, recs); err != nil {
		return fmt.Errorf("failed to write annotated records: %w", err)
	}
	log.Info("annotated records written", "path", outputPath)
	return nil
}

func buildScorer(ctx context.Context, cfg config.Config, vocab int, log *logger.Logger) (decoder.Scorer, func(), error) {
	if cfg.Stub {
		log.Warn("stub scorer active, generations are placeholder quality")
		return scoring.NewStubScorer(cfg.StubVocab, cfg.StubMaxSeq), func() {}, nil
	}
	fs, err := scoring.NewFlightScorer(ctx, cfg.ScorerAddr, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to reach scoring model: %w", err)
	}
	if fs.VocabSize() < vocab {
		log.Warn("scoring model vocab smaller than tokenizer vocab",
			"scorer_vocab", fs.VocabSize(), "tokenizer_vocab", vocab)
	}
	return fs, func() { _ = fs.Close() }, nil
}

func buildEncoder(ctx context.Context, cfg config.Config, log *logger.Logger) (knowledge.Encoder, func(), error) {
	if !cfg.IncludeKnowledge {
		return nil, func() {}, nil
	}
	if cfg.KnowledgeAddr == "" {
		log.Warn("no knowledge encoder address, using the offline mock")
		return knowledge.NewMock(), func() {}, nil
	}
	kc, err := knowledge.NewClient(ctx, cfg.KnowledgeAddr, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to reach knowledge encoder: %w", err)
	}
	return kc, func() { _ = kc.Close() }, nil
}

func scorerKind(cfg config.Config) string {
	if cfg.Stub {
		return "stub"
	}
	return "flight:" + cfg.ScorerAddr
}
