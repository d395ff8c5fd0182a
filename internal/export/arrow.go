package export

import (
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/nvandessel/tradernet/internal/store"
)

// StepSchema is the Arrow schema of an exported price series.
var StepSchema = arrow.NewSchema([]arrow.Field{
	{Name: "t", Type: arrow.PrimitiveTypes.Int64},
	{Name: "price", Type: arrow.PrimitiveTypes.Float64},
	{Name: "buyers", Type: arrow.PrimitiveTypes.Int64},
	{Name: "holders", Type: arrow.PrimitiveTypes.Int64},
	{Name: "sellers", Type: arrow.PrimitiveTypes.Int64},
	{Name: "inverted", Type: arrow.PrimitiveTypes.Int64},
}, nil)

// WriteArrow writes steps as a single record batch in an Arrow IPC file.
func WriteArrow(w io.Writer, steps []store.Step) error {
	mem := memory.NewGoAllocator()

	b := array.NewRecordBuilder(mem, StepSchema)
	defer b.Release()

	ts := b.Field(0).(*array.Int64Builder)
	prices := b.Field(1).(*array.Float64Builder)
	buyers := b.Field(2).(*array.Int64Builder)
	holders := b.Field(3).(*array.Int64Builder)
	sellers := b.Field(4).(*array.Int64Builder)
	inverted := b.Field(5).(*array.Int64Builder)

	for _, st := range steps {
		ts.Append(int64(st.T))
		prices.Append(st.Price)
		buyers.Append(int64(st.Buyers))
		holders.Append(int64(st.Holders))
		sellers.Append(int64(st.Sellers))
		inverted.Append(int64(st.Inverted))
	}

	rec := b.NewRecord()
	defer rec.Release()

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(StepSchema), ipc.WithAllocator(mem))
	if err != nil {
		return fmt.Errorf("failed to create arrow writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return fmt.Errorf("failed to write arrow record: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("failed to finalize arrow file: %w", err)
	}
	return nil
}

// ReadArrow reads steps from an Arrow IPC file written by WriteArrow.
// Every record batch in the file is read in order.
func ReadArrow(r ipc.ReadAtSeeker) ([]store.Step, error) {
	mem := memory.NewGoAllocator()
	fr, err := ipc.NewFileReader(r, ipc.WithAllocator(mem), ipc.WithSchema(StepSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to open arrow file: %w", err)
	}
	defer fr.Close()

	var steps []store.Step
	for i := 0; i < fr.NumRecords(); i++ {
		rec, err := fr.Record(i)
		if err != nil {
			return nil, fmt.Errorf("failed to read record %d: %w", i, err)
		}

		ts, ok0 := rec.Column(0).(*array.Int64)
		prices, ok1 := rec.Column(1).(*array.Float64)
		buyers, ok2 := rec.Column(2).(*array.Int64)
		holders, ok3 := rec.Column(3).(*array.Int64)
		sellers, ok4 := rec.Column(4).(*array.Int64)
		inverted, ok5 := rec.Column(5).(*array.Int64)
		if !(ok0 && ok1 && ok2 && ok3 && ok4 && ok5) {
			return nil, fmt.Errorf("record %d does not match the step schema", i)
		}

		for j := 0; j < int(rec.NumRows()); j++ {
			steps = append(steps, store.Step{
				T:        int(ts.Value(j)),
				Price:    prices.Value(j),
				Buyers:   int(buyers.Value(j)),
				Holders:  int(holders.Value(j)),
				Sellers:  int(sellers.Value(j)),
				Inverted: int(inverted.Value(j)),
			})
		}
	}
	return steps, nil
}
