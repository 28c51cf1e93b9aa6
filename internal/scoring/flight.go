// Package scoring provides implementations of the decoder.Scorer
// collaborator: a remote scoring model reached over Arrow Flight, and a
// deterministic in-process stub for offline runs and tests.
package scoring

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	json "github.com/goccy/go-json"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/hypogenlab/hypogen/internal/decoder"
	"github.com/hypogenlab/hypogen/internal/logger"
)

// ActionModelInfo asks the scoring service for its fixed dimensions.
const ActionModelInfo = "model_info"

// ModelInfo is the scoring service's self-description.
type ModelInfo struct {
	Name      string `json:"name"`
	VocabSize int    `json:"vocab_size"`
	MaxSeqLen int    `json:"max_seq_len"`
}

// FlightScorer invokes a remote scoring model over Arrow Flight. Each
// Score call is one DoExchange round trip: the step input goes out as a
// single record batch, the per-sample logits come back as one batch.
type FlightScorer struct {
	client flight.Client
	mem    memory.Allocator
	info   ModelInfo
	log    *logger.Logger
}

// NewFlightScorer dials the scoring service and fetches its model info.
func NewFlightScorer(ctx context.Context, addr string, log *logger.Logger) (*FlightScorer, error) {
	if log == nil {
		log = logger.Default()
	}
	client, err := flight.NewClientWithMiddleware(addr, nil, nil,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to dial scoring service %s: %w", addr, err)
	}

	s := &FlightScorer{
		client: client,
		mem:    memory.NewGoAllocator(),
		log:    log,
	}
	if err := s.fetchModelInfo(ctx); err != nil {
		client.Close()
		return nil, err
	}
	log.Info("connected to scoring service",
		"addr", addr,
		"model", s.info.Name,
		"vocab_size", s.info.VocabSize,
		"max_seq_len", s.info.MaxSeqLen)
	return s, nil
}

func (s *FlightScorer) fetchModelInfo(ctx context.Context) error {
	stream, err := s.client.DoAction(ctx, &flight.Action{Type: ActionModelInfo})
	if err != nil {
		return fmt.Errorf("model_info action failed: %w", err)
	}
	res, err := stream.Recv()
	if err != nil {
		return fmt.Errorf("model_info result missing: %w", err)
	}
	if err := json.Unmarshal(res.Body, &s.info); err != nil {
		return fmt.Errorf("malformed model_info body: %w", err)
	}
	if s.info.VocabSize <= 0 || s.info.MaxSeqLen <= 0 {
		return fmt.Errorf("scoring service reported invalid dimensions: vocab=%d max_seq=%d",
			s.info.VocabSize, s.info.MaxSeqLen)
	}
	return nil
}

// Score implements decoder.Scorer.
func (s *FlightScorer) Score(ctx context.Context, in *decoder.StepInput) ([][]float32, error) {
	rec, err := buildStepRecord(s.mem, in)
	if err != nil {
		return nil, err
	}
	defer rec.Release()

	stream, err := s.client.DoExchange(ctx)
	if err != nil {
		return nil, fmt.Errorf("score exchange failed to open: %w", err)
	}

	wr := flight.NewRecordWriter(stream, ipc.WithSchema(rec.Schema()))
	wr.SetFlightDescriptor(&flight.FlightDescriptor{
		Type: flight.DescriptorPATH,
		Path: []string{"score"},
	})
	if err := wr.Write(rec); err != nil {
		return nil, fmt.Errorf("failed to send step input: %w", err)
	}
	if err := wr.Close(); err != nil {
		return nil, fmt.Errorf("failed to flush step input: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, fmt.Errorf("failed to close send side: %w", err)
	}

	rd, err := flight.NewRecordReader(stream)
	if err != nil {
		return nil, fmt.Errorf("failed to open logits stream: %w", err)
	}
	defer rd.Release()

	if !rd.Next() {
		if err := rd.Err(); err != nil {
			return nil, fmt.Errorf("logits stream failed: %w", err)
		}
		return nil, fmt.Errorf("scoring service returned no logits batch")
	}
	return parseLogitsRecord(rd.Record())
}

func (s *FlightScorer) VocabSize() int { return s.info.VocabSize }
func (s *FlightScorer) MaxSeqLen() int { return s.info.MaxSeqLen }

// Close tears down the Flight connection.
func (s *FlightScorer) Close() error { return s.client.Close() }
