package tabular

import (
	"context"
	"fmt"
	"os"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/parquet"
	"github.com/apache/arrow/go/v17/parquet/compress"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"
)

// Schema is the arrow schema of the table's columns
func (t *Table) Schema() *arrow.Schema {
	fields := make([]arrow.Field, len(t.Columns))
	for i, c := range t.Columns {
		typ := arrow.DataType(arrow.PrimitiveTypes.Float64)
		if c.IsText() {
			typ = arrow.BinaryTypes.String
		}
		fields[i] = arrow.Field{Name: c.Name, Type: typ}
	}
	return arrow.NewSchema(fields, nil)
}

// Record builds an arrow record of the table. The caller releases it.
func (t *Table) Record(mem memory.Allocator) arrow.Record {
	b := array.NewRecordBuilder(mem, t.Schema())
	defer b.Release()
	for i, c := range t.Columns {
		if c.IsText() {
			b.Field(i).(*array.StringBuilder).AppendValues(c.Strings, nil)
		} else {
			b.Field(i).(*array.Float64Builder).AppendValues(c.Floats, nil)
		}
	}
	return b.NewRecord()
}

// WriteParquet writes the table to path as a snappy-compressed Parquet file,
// replacing any existing file
func WriteParquet(path string, t *Table) error {
	for _, c := range t.Columns {
		if c.Len() != t.NumRows() {
			return fmt.Errorf("column %q has %d rows, want %d", c.Name, c.Len(), t.NumRows())
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	// the parquet writer closes f
	defer f.Close()

	rec := t.Record(memory.DefaultAllocator)
	defer rec.Release()

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	w, err := pqarrow.NewFileWriter(rec.Schema(), f, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return err
	}
	if err := w.Write(rec); err != nil {
		w.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return w.Close()
}

// ReadParquet reads a Parquet file of float64 and string columns
func ReadParquet(ctx context.Context, path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tbl, err := pqarrow.ReadTable(ctx, f, parquet.NewReaderProperties(memory.DefaultAllocator), pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	defer tbl.Release()

	out := &Table{}
	for i := 0; i < int(tbl.NumCols()); i++ {
		col := tbl.Column(i)
		c := &Column{Name: col.Name()}
		switch col.DataType().ID() {
		case arrow.FLOAT64:
			c.Floats = []float64{}
		case arrow.STRING:
			c.Strings = []string{}
		default:
			return nil, fmt.Errorf("column %q has unsupported type %s", c.Name, col.DataType())
		}
		for _, chunk := range col.Data().Chunks() {
			switch a := chunk.(type) {
			case *array.Float64:
				c.Floats = append(c.Floats, a.Float64Values()...)
			case *array.String:
				for j := 0; j < a.Len(); j++ {
					c.Strings = append(c.Strings, a.Value(j))
				}
			}
		}
		out.Columns = append(out.Columns, c)
	}
	return out, nil
}
