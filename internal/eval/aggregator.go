// Package eval aggregates generation quality metrics. The aggregator is a
// fan-out/fan-in wrapper: every registered scorer runs independently, one
// scorer's failure never blocks the others, and whatever succeeded is
// appended to the results sink before Run returns.
package eval

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hypogenlab/hypogen/internal/logger"
	"github.com/hypogenlab/hypogen/internal/metrics"
	"github.com/hypogenlab/hypogen/internal/records"
)

// Instance is one scored example: the generated prediction and the gold
// references it is judged against. Source identifies the originating
// record for debugging.
type Instance struct {
	Source     string
	References []string
	Prediction string
}

// Scorer computes a single corpus-level metric over a set of instances.
type Scorer interface {
	Name() string
	Score(ctx context.Context, insts []Instance) (float64, error)
}

// Row is one line of the results sink.
type Row struct {
	RunID     string             `json:"run_id"`
	ModelKey  string             `json:"model_key"`
	Timestamp time.Time          `json:"timestamp"`
	Instances int                `json:"instances"`
	Scores    map[string]float64 `json:"scores"`
	Errors    map[string]string  `json:"errors,omitempty"`
}

// Aggregator fans instance sets out to its scorers.
type Aggregator struct {
	scorers     []Scorer
	resultsPath string
	log         *logger.Logger
}

// NewAggregator builds an aggregator writing to the given results sink.
func NewAggregator(resultsPath string, log *logger.Logger, scorers ...Scorer) *Aggregator {
	if log == nil {
		log = logger.Default()
	}
	return &Aggregator{scorers: scorers, resultsPath: resultsPath, log: log}
}

// Run scores the instances with every scorer concurrently and appends one
// row to the results sink. The returned row carries every score that
// succeeded plus the error text of every scorer that did not; Run itself
// only fails when the sink cannot be written.
func (a *Aggregator) Run(ctx context.Context, modelKey string, insts []Instance) (*Row, error) {
	row := &Row{
		RunID:     uuid.NewString(),
		ModelKey:  modelKey,
		Timestamp: time.Now().UTC(),
		Instances: len(insts),
		Scores:    make(map[string]float64),
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, sc := range a.scorers {
		wg.Add(1)
		go func(sc Scorer) {
			defer wg.Done()
			start := time.Now()
			val, err := sc.Score(ctx, insts)
			metrics.EvalScorerDuration.WithLabelValues(sc.Name()).Observe(time.Since(start).Seconds())

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				metrics.EvalScorerRuns.WithLabelValues(sc.Name(), "error").Inc()
				a.log.Warn("scorer failed", "scorer", sc.Name(), "error", err.Error())
				if row.Errors == nil {
					row.Errors = make(map[string]string)
				}
				row.Errors[sc.Name()] = err.Error()
				return
			}
			metrics.EvalScorerRuns.WithLabelValues(sc.Name(), "ok").Inc()
			a.log.Info("scorer finished", "scorer", sc.Name(), "score", val)
			row.Scores[sc.Name()] = val
		}(sc)
	}
	wg.Wait()

	if err := records.AppendJSONL(a.resultsPath, row); err != nil {
		return row, err
	}
	return row, nil
}
