package rustyshim

import (
	"bytes"
	"testing"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/stretchr/testify/require"
)

func buildRecord(t *testing.T, schema *arrow.Schema, fill func(b *array.RecordBuilder)) arrow.Record {
	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()
	fill(b)
	return b.NewRecord()
}

func TestResultSetToValues(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "x", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "ok", Type: arrow.FixedWidthTypes.Boolean},
	}, nil)
	rec := buildRecord(t, schema, func(b *array.RecordBuilder) {
		b.Field(0).(*array.Float64Builder).AppendValues([]float64{1.5, 0}, []bool{true, false})
		b.Field(1).(*array.BooleanBuilder).AppendValues([]bool{true, false}, nil)
	})

	rs := &ResultSet{Schema: schema, Records: []arrow.Record{rec}}
	defer rs.Release()

	require.Equal(t, int64(2), rs.TotalRows())
	require.Equal(t, []string{"x", "ok"}, rs.ColumnNames())

	values, err := rs.ToValues()
	require.NoError(t, err)
	require.Equal(t, [][]Value{{1.5, true}, {nil, false}}, values)
	require.Equal(t, [][]string{{"1.5", "true"}, {"(null)", "false"}}, rs.ToStrings())
}

func TestResultSetToValuesSchemaMismatch(t *testing.T) {
	narrow := arrow.NewSchema([]arrow.Field{{Name: "a", Type: arrow.PrimitiveTypes.Int32}}, nil)
	wide := arrow.NewSchema([]arrow.Field{
		{Name: "a", Type: arrow.PrimitiveTypes.Int32},
		{Name: "b", Type: arrow.PrimitiveTypes.Int32},
	}, nil)
	rec := buildRecord(t, narrow, func(b *array.RecordBuilder) {
		b.Field(0).(*array.Int32Builder).Append(1)
	})

	rs := &ResultSet{Schema: wide, Records: []arrow.Record{rec}}
	defer rs.Release()

	_, err := rs.ToValues()
	require.Error(t, err)
}

func TestResultSetEmpty(t *testing.T) {
	rs := &ResultSet{}
	values, err := rs.ToValues()
	require.NoError(t, err)
	require.Empty(t, values)
	require.Nil(t, rs.ColumnNames())
	require.Zero(t, rs.TotalRows())
}

func TestRecordBatchesRoundTrip(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{{Name: "s", Type: arrow.BinaryTypes.String}}, nil)
	first := buildRecord(t, schema, func(b *array.RecordBuilder) {
		b.Field(0).(*array.StringBuilder).AppendValues([]string{"a", "b"}, nil)
	})
	defer first.Release()
	second := buildRecord(t, schema, func(b *array.RecordBuilder) {
		b.Field(0).(*array.StringBuilder).Append("c")
	})
	defer second.Release()

	var buf bytes.Buffer
	require.NoError(t, WriteRecordBatches(&buf, schema, []arrow.Record{first, second}))

	rs, err := ReadRecordBatches(&buf)
	require.NoError(t, err)
	defer rs.Release()

	require.True(t, rs.Schema.Equal(schema))
	require.Len(t, rs.Records, 2)
	require.Equal(t, [][]string{{"a"}, {"b"}, {"c"}}, rs.ToStrings())
}

func TestWriteRecordBatchesWithoutSchema(t *testing.T) {
	require.Error(t, WriteRecordBatches(&bytes.Buffer{}, nil, nil))
}
