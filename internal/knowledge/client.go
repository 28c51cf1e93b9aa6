// Package knowledge talks to the auxiliary knowledge encoder: an external
// service that turns raw event text into fixed-shape conditioning tensors
// (event encodings plus a visibility mask) and sentence embeddings. The
// encoder owns its own vocabulary, separate from the scoring model's.
package knowledge

import (
	"context"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/flight"
	json "github.com/goccy/go-json"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/hypogenlab/hypogen/internal/decoder"
	"github.com/hypogenlab/hypogen/internal/logger"
	"github.com/hypogenlab/hypogen/internal/metrics"
)

// ActionEncoderInfo asks the encoder service for its fixed shapes.
const ActionEncoderInfo = "encoder_info"

// Response column names.
const (
	colEventTokens = "event_tokens"
	colEventMask   = "event_mask"
	colEmbedding   = "embedding"
)

// EncoderInfo is the encoder service's self-description.
type EncoderInfo struct {
	Name         string `json:"name"`
	EventWidth   int    `json:"event_width"`
	EmbeddingDim int    `json:"embedding_dim"`
}

// ticket is the DoGet request body.
type ticket struct {
	Op     string   `json:"op"`
	Events []string `json:"events,omitempty"`
	Texts  []string `json:"texts,omitempty"`
}

// Encoder is the client-side interface; Client and the test Mock both
// satisfy it.
type Encoder interface {
	Conditioning(ctx context.Context, events []string) (*decoder.Conditioning, error)
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Client reaches the encoder service over Arrow Flight.
type Client struct {
	client flight.Client
	info   EncoderInfo
	log    *logger.Logger
}

// NewClient dials the encoder service and fetches its shape info.
func NewClient(ctx context.Context, addr string, log *logger.Logger) (*Client, error) {
	if log == nil {
		log = logger.Default()
	}
	fc, err := flight.NewClientWithMiddleware(addr, nil, nil,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to dial knowledge encoder %s: %w", addr, err)
	}

	c := &Client{client: fc, log: log}
	if err := c.fetchInfo(ctx); err != nil {
		fc.Close()
		return nil, err
	}
	log.Info("connected to knowledge encoder",
		"addr", addr,
		"encoder", c.info.Name,
		"event_width", c.info.EventWidth,
		"embedding_dim", c.info.EmbeddingDim)
	return c, nil
}

func (c *Client) fetchInfo(ctx context.Context) error {
	stream, err := c.client.DoAction(ctx, &flight.Action{Type: ActionEncoderInfo})
	if err != nil {
		return fmt.Errorf("encoder_info action failed: %w", err)
	}
	res, err := stream.Recv()
	if err != nil {
		return fmt.Errorf("encoder_info result missing: %w", err)
	}
	if err := json.Unmarshal(res.Body, &c.info); err != nil {
		return fmt.Errorf("malformed encoder_info body: %w", err)
	}
	if c.info.EventWidth <= 0 {
		return fmt.Errorf("knowledge encoder reported invalid event width %d", c.info.EventWidth)
	}
	return nil
}

// Conditioning fetches the (EventEncoding, VisibilityMask) pair for the
// given event strings. The returned shapes are validated before use so a
// mismatched encoder surfaces as ErrShapeMismatch instead of a confusing
// scorer failure later.
func (c *Client) Conditioning(ctx context.Context, events []string) (*decoder.Conditioning, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("no events to encode")
	}
	start := time.Now()
	defer func() {
		metrics.ConditioningFetchDuration.Observe(time.Since(start).Seconds())
	}()

	rec, release, err := c.doGet(ctx, ticket{Op: "conditioning", Events: events})
	if err != nil {
		return nil, err
	}
	defer release()

	tokens, err := int64Matrix(rec, colEventTokens)
	if err != nil {
		return nil, err
	}
	mask, err := float32Matrix(rec, colEventMask)
	if err != nil {
		return nil, err
	}

	cond := &decoder.Conditioning{Events: tokens, Mask: mask}
	if err := cond.Validate(); err != nil {
		return nil, err
	}
	if w := len(cond.Events[0]); w != c.info.EventWidth {
		return nil, fmt.Errorf("%w: encoder returned event width %d, advertised %d",
			decoder.ErrShapeMismatch, w, c.info.EventWidth)
	}
	return cond, nil
}

// Embed returns one embedding row per input text.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts to embed")
	}
	rec, release, err := c.doGet(ctx, ticket{Op: "embed", Texts: texts})
	if err != nil {
		return nil, err
	}
	defer release()

	vecs, err := float32Matrix(rec, colEmbedding)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: encoder returned %d embeddings for %d texts",
			decoder.ErrShapeMismatch, len(vecs), len(texts))
	}
	return vecs, nil
}

// doGet issues a DoGet with a JSON ticket and returns the first record
// batch of the response stream.
func (c *Client) doGet(ctx context.Context, t ticket) (arrow.Record, func(), error) {
	body, err := json.Marshal(t)
	if err != nil {
		return nil, nil, err
	}
	stream, err := c.client.DoGet(ctx, &flight.Ticket{Ticket: body})
	if err != nil {
		return nil, nil, fmt.Errorf("knowledge %s fetch failed: %w", t.Op, err)
	}
	rd, err := flight.NewRecordReader(stream)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s stream: %w", t.Op, err)
	}
	if !rd.Next() {
		rd.Release()
		if err := rd.Err(); err != nil {
			return nil, nil, fmt.Errorf("%s stream failed: %w", t.Op, err)
		}
		return nil, nil, fmt.Errorf("knowledge encoder returned no %s batch", t.Op)
	}
	rec := rd.Record()
	rec.Retain()
	release := func() {
		rec.Release()
		rd.Release()
	}
	return rec, release, nil
}

// Close tears down the Flight connection.
func (c *Client) Close() error { return c.client.Close() }

func int64Matrix(rec arrow.Record, name string) ([][]int64, error) {
	col, width, err := fixedList(rec, name)
	if err != nil {
		return nil, err
	}
	vals, ok := col.ListValues().(*array.Int64)
	if !ok {
		return nil, fmt.Errorf("%q values are %T, want int64", name, col.ListValues())
	}
	out := make([][]int64, col.Len())
	raw := vals.Int64Values()
	for i := range out {
		row := make([]int64, width)
		copy(row, raw[i*width:(i+1)*width])
		out[i] = row
	}
	return out, nil
}

func float32Matrix(rec arrow.Record, name string) ([][]float32, error) {
	col, width, err := fixedList(rec, name)
	if err != nil {
		return nil, err
	}
	vals, ok := col.ListValues().(*array.Float32)
	if !ok {
		return nil, fmt.Errorf("%q values are %T, want float32", name, col.ListValues())
	}
	out := make([][]float32, col.Len())
	raw := vals.Float32Values()
	for i := range out {
		row := make([]float32, width)
		copy(row, raw[i*width:(i+1)*width])
		out[i] = row
	}
	return out, nil
}

func fixedList(rec arrow.Record, name string) (*array.FixedSizeList, int, error) {
	idx := rec.Schema().FieldIndices(name)
	if len(idx) == 0 {
		return nil, 0, fmt.Errorf("response batch missing %q column", name)
	}
	col, ok := rec.Column(idx[0]).(*array.FixedSizeList)
	if !ok {
		return nil, 0, fmt.Errorf("%q column is %T, want fixed-size list", name, rec.Column(idx[0]))
	}
	width := int(col.DataType().(*arrow.FixedSizeListType).Len())
	return col, width, nil
}
