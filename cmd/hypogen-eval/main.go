// Command hypogen-eval scores generated hypotheses against the labeled
// references and appends one result row per model key to a JSONL sink.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/urfave/cli/v3"

	"github.com/hypogenlab/hypogen/internal/eval"
	"github.com/hypogenlab/hypogen/internal/knowledge"
	"github.com/hypogenlab/hypogen/internal/logger"
	"github.com/hypogenlab/hypogen/internal/records"
)

func main() {
	var (
		inputPath     string
		resultsPath   string
		modelKeys     []string
		knowledgeAddr string
		embedding     bool
		logLevel      string
		logFormat     string
	)

	app := &cli.Command{
		Name:  "hypogen-eval",
		Usage: "Score generated hypotheses against labeled references",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "annotated JSONL file produced by hypogen",
				Required:    true,
				Destination: &inputPath,
			},
			&cli.StringFlag{
				Name:        "results",
				Aliases:     []string{"r"},
				Usage:       "JSONL results sink, appended to",
				Required:    true,
				Destination: &resultsPath,
			},
			&cli.StringSliceFlag{
				Name:        "model-key",
				Aliases:     []string{"k"},
				Usage:       "model keys to score, default every key present",
				Destination: &modelKeys,
			},
			&cli.StringFlag{
				Name:        "knowledge-addr",
				Usage:       "Arrow Flight address of the knowledge encoder, for embedding similarity",
				Destination: &knowledgeAddr,
			},
			&cli.BoolFlag{
				Name:        "embedding",
				Usage:       "include embedding similarity (mock encoder when no address is given)",
				Destination: &embedding,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Value:       "INFO",
				Destination: &logLevel,
			},
			&cli.StringFlag{
				Name:        "log-format",
				Value:       "console",
				Destination: &logFormat,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logger.Setup(logLevel, logFormat)
			return run(ctx, inputPath, resultsPath, modelKeys, knowledgeAddr, embedding)
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, inputPath, resultsPath string, modelKeys []string, knowledgeAddr string, embedding bool) error {
	log := logger.Default()

	recs, err := records.ReadJSONL(inputPath)
	if err != nil {
		return fmt.Errorf("failed to read records: %w", err)
	}
	if len(modelKeys) == 0 {
		modelKeys = collectModelKeys(recs)
	}
	if len(modelKeys) == 0 {
		return fmt.Errorf("no generations found in %s", inputPath)
	}

	scorers := []eval.Scorer{
		eval.BLEU{N: 1}, eval.BLEU{N: 2}, eval.BLEU{N: 3}, eval.BLEU{N: 4},
		eval.ROUGEL{}, eval.CIDEr{},
	}
	if embedding {
		encoder, closeEncoder, err := buildEncoder(ctx, knowledgeAddr, log)
		if err != nil {
			return err
		}
		defer closeEncoder()
		scorers = append(scorers, eval.EmbeddingSimilarity{Encoder: encoder})
	}

	agg := eval.NewAggregator(resultsPath, log, scorers...)
	for _, key := range modelKeys {
		insts := buildInstances(recs, key)
		if len(insts) == 0 {
			log.Warn("no scoreable instances for key", "model_key", key)
			continue
		}
		row, err := agg.Run(ctx, key, insts)
		if err != nil {
			return fmt.Errorf("failed to record results for %s: %w", key, err)
		}
		log.Info("model scored",
			"model_key", key,
			"instances", row.Instances,
			"scores", row.Scores,
			"run_id", row.RunID)
	}
	return nil
}

// buildInstances pairs each record's first generation under key with its
// labeled reference. Records missing either side are skipped.
func buildInstances(recs []*records.Record, key string) []eval.Instance {
	var insts []eval.Instance
	for _, rec := range recs {
		ref := rec.Reference()
		gens := rec.Generations[key]
		if ref == "" || len(gens) == 0 {
			continue
		}
		insts = append(insts, eval.Instance{
			Source:     rec.StoryID,
			References: []string{ref},
			Prediction: gens[0],
		})
	}
	return insts
}

func collectModelKeys(recs []*records.Record) []string {
	seen := make(map[string]bool)
	for _, rec := range recs {
		for key := range rec.Generations {
			seen[key] = true
		}
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func buildEncoder(ctx context.Context, addr string, log *logger.Logger) (knowledge.Encoder, func(), error) {
	if addr == "" {
		log.Warn("no knowledge encoder address, embedding similarity uses the offline mock")
		return knowledge.NewMock(), func() {}, nil
	}
	kc, err := knowledge.NewClient(ctx, addr, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to reach knowledge encoder: %w", err)
	}
	return kc, func() { _ = kc.Close() }, nil
}
