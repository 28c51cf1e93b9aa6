package scoring

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/hypogenlab/hypogen/internal/decoder"
)

// Column names of the step-input record batch sent to the scoring service
// and of the logits batch it returns.
const (
	colTokens     = "tokens"
	colPermMask   = "perm_mask"
	colTargetMap  = "target_map"
	colCondEvents = "cond_events"
	colCondMask   = "cond_mask"
	colLogits     = "logits"
)

// stepInputSchema builds the per-call schema. Every field is a
// fixed-size-list row per parallel sample; the mask and target map are
// broadcast to each row so the batch stays rectangular.
func stepInputSchema(in *decoder.StepInput) *arrow.Schema {
	seqLen := in.SeqLen()
	fields := []arrow.Field{
		{Name: colTokens, Type: arrow.FixedSizeListOf(int32(seqLen), arrow.PrimitiveTypes.Int64)},
	}
	if in.PermMask != nil {
		fields = append(fields,
			arrow.Field{Name: colPermMask, Type: arrow.FixedSizeListOf(int32(seqLen*seqLen), arrow.PrimitiveTypes.Float32)},
			arrow.Field{Name: colTargetMap, Type: arrow.FixedSizeListOf(int32(seqLen), arrow.PrimitiveTypes.Float32)},
		)
	}
	if len(in.Cond) > 0 {
		rows := len(in.Cond[0].Events)
		cols := len(in.Cond[0].Events[0])
		fields = append(fields,
			arrow.Field{Name: colCondEvents, Type: arrow.FixedSizeListOf(int32(rows*cols), arrow.PrimitiveTypes.Int64)},
			arrow.Field{Name: colCondMask, Type: arrow.FixedSizeListOf(int32(rows*cols), arrow.PrimitiveTypes.Float32)},
		)
		md := arrow.NewMetadata(
			[]string{"seq_len", "cond_rows", "cond_cols"},
			[]string{fmt.Sprint(seqLen), fmt.Sprint(rows), fmt.Sprint(cols)},
		)
		return arrow.NewSchema(fields, &md)
	}
	md := arrow.NewMetadata([]string{"seq_len"}, []string{fmt.Sprint(seqLen)})
	return arrow.NewSchema(fields, &md)
}

// buildStepRecord serializes a StepInput into one Arrow record batch with
// len(in.Tokens) rows.
func buildStepRecord(mem memory.Allocator, in *decoder.StepInput) (arrow.Record, error) {
	if len(in.Tokens) == 0 {
		return nil, fmt.Errorf("step input has no sample rows")
	}
	schema := stepInputSchema(in)
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	field := 0
	tokens := b.Field(field).(*array.FixedSizeListBuilder)
	tokenVals := tokens.ValueBuilder().(*array.Int64Builder)
	for _, row := range in.Tokens {
		tokens.Append(true)
		for _, id := range row {
			tokenVals.Append(int64(id))
		}
	}
	field++

	if in.PermMask != nil {
		mask := b.Field(field).(*array.FixedSizeListBuilder)
		maskVals := mask.ValueBuilder().(*array.Float32Builder)
		target := b.Field(field + 1).(*array.FixedSizeListBuilder)
		targetVals := target.ValueBuilder().(*array.Float32Builder)
		for range in.Tokens {
			mask.Append(true)
			for _, maskRow := range in.PermMask {
				maskVals.AppendValues(maskRow, nil)
			}
			target.Append(true)
			targetVals.AppendValues(in.TargetMap, nil)
		}
		field += 2
	}

	if len(in.Cond) > 0 {
		events := b.Field(field).(*array.FixedSizeListBuilder)
		eventVals := events.ValueBuilder().(*array.Int64Builder)
		condMask := b.Field(field + 1).(*array.FixedSizeListBuilder)
		condMaskVals := condMask.ValueBuilder().(*array.Float32Builder)
		for i := range in.Tokens {
			c := in.Cond[i]
			events.Append(true)
			for _, row := range c.Events {
				eventVals.AppendValues(row, nil)
			}
			condMask.Append(true)
			for _, row := range c.Mask {
				condMaskVals.AppendValues(row, nil)
			}
		}
	}

	return b.NewRecord(), nil
}

// logitsSchema is the response layout: one fixed-size logits row per
// sample.
func logitsSchema(vocab int) *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: colLogits, Type: arrow.FixedSizeListOf(int32(vocab), arrow.PrimitiveTypes.Float32)},
	}, nil)
}

// buildLogitsRecord serializes logits rows; used by the in-process test
// service and kept next to parseLogitsRecord so the two stay in sync.
func buildLogitsRecord(mem memory.Allocator, logits [][]float32) (arrow.Record, error) {
	if len(logits) == 0 {
		return nil, fmt.Errorf("no logits rows")
	}
	b := array.NewRecordBuilder(mem, logitsSchema(len(logits[0])))
	defer b.Release()

	lists := b.Field(0).(*array.FixedSizeListBuilder)
	vals := lists.ValueBuilder().(*array.Float32Builder)
	for _, row := range logits {
		lists.Append(true)
		vals.AppendValues(row, nil)
	}
	return b.NewRecord(), nil
}

// parseLogitsRecord extracts per-sample logits rows from a response batch.
func parseLogitsRecord(rec arrow.Record) ([][]float32, error) {
	idx := rec.Schema().FieldIndices(colLogits)
	if len(idx) == 0 {
		return nil, fmt.Errorf("response batch missing %q column", colLogits)
	}
	col, ok := rec.Column(idx[0]).(*array.FixedSizeList)
	if !ok {
		return nil, fmt.Errorf("%q column is %T, want fixed-size list", colLogits, rec.Column(idx[0]))
	}
	vals, ok := col.ListValues().(*array.Float32)
	if !ok {
		return nil, fmt.Errorf("%q values are %T, want float32", colLogits, col.ListValues())
	}
	width := int(col.DataType().(*arrow.FixedSizeListType).Len())

	raw := vals.Float32Values()
	out := make([][]float32, col.Len())
	for i := range out {
		row := make([]float32, width)
		copy(row, raw[i*width:(i+1)*width])
		out[i] = row
	}
	return out, nil
}

// parseStepRecord is the inverse of buildStepRecord; the in-process test
// service uses it to recover the StepInput.
func parseStepRecord(rec arrow.Record) (*decoder.StepInput, error) {
	in := &decoder.StepInput{}

	tokIdx := rec.Schema().FieldIndices(colTokens)
	if len(tokIdx) == 0 {
		return nil, fmt.Errorf("step batch missing %q column", colTokens)
	}
	tokens := rec.Column(tokIdx[0]).(*array.FixedSizeList)
	tokenVals := tokens.ListValues().(*array.Int64)
	seqLen := int(tokens.DataType().(*arrow.FixedSizeListType).Len())

	in.Tokens = make([][]int, tokens.Len())
	for i := range in.Tokens {
		row := make([]int, seqLen)
		for j := 0; j < seqLen; j++ {
			row[j] = int(tokenVals.Value(i*seqLen + j))
		}
		in.Tokens[i] = row
	}

	if maskIdx := rec.Schema().FieldIndices(colPermMask); len(maskIdx) > 0 {
		mask := rec.Column(maskIdx[0]).(*array.FixedSizeList)
		maskVals := mask.ListValues().(*array.Float32).Float32Values()
		// The mask is identical across rows; decode row 0.
		in.PermMask = make([][]float32, seqLen)
		for i := 0; i < seqLen; i++ {
			row := make([]float32, seqLen)
			copy(row, maskVals[i*seqLen:(i+1)*seqLen])
			in.PermMask[i] = row
		}

		target := rec.Column(rec.Schema().FieldIndices(colTargetMap)[0]).(*array.FixedSizeList)
		targetVals := target.ListValues().(*array.Float32).Float32Values()
		in.TargetMap = make([]float32, seqLen)
		copy(in.TargetMap, targetVals[:seqLen])
	}

	return in, nil
}
