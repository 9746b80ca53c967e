package artifact

import (
	"os"

	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	pqfile "github.com/apache/arrow-go/v18/parquet/file"
	pqschema "github.com/apache/arrow-go/v18/parquet/schema"
)

// newWriterProperties builds the shared WriterProperties every artifact
// parquet file uses: the V2 page format with Snappy compression.
func newWriterProperties() *parquet.WriterProperties {
	return parquet.NewWriterProperties(
		parquet.WithVersion(parquet.V2_LATEST),
		parquet.WithCompression(compress.Codecs.Snappy),
	)
}

// float64Col declares a nullable double column.
func float64Col(name string) pqschema.Node {
	return pqschema.NewFloat64Node(name, parquet.Repetitions.Optional, -1)
}

// int64Col declares a nullable signed 64-bit integer column.
func int64Col(name string) pqschema.Node {
	return pqschema.MustPrimitive(pqschema.NewPrimitiveNodeLogical(
		name, parquet.Repetitions.Optional, pqschema.NewIntLogicalType(64, true), parquet.Types.Int64, 0, -1))
}

// boolCol declares a nullable column storing a boolean as 0/1, since the
// only primitive-node constructors this module relies on (confirmed against
// the pack's own arrow-go usage) are the Int32/Int64/Float64/ByteArray
// variants — not a dedicated boolean node constructor.
func boolCol(name string) pqschema.Node {
	return pqschema.NewInt32Node(name, parquet.Repetitions.Optional, -1)
}

// stringCol declares a nullable UTF-8 string column.
func stringCol(name string) pqschema.Node {
	return pqschema.MustPrimitive(pqschema.NewPrimitiveNodeConverted(
		name, parquet.Repetitions.Optional, parquet.Types.ByteArray, pqschema.ConvertedTypes.UTF8, 0, 0, 0, -1))
}

// writeInt64 writes a single-value batch to column idx of rgw.
func writeInt64(rgw pqfile.BufferedRowGroupWriter, idx int, v int64) {
	cw, _ := rgw.Column(idx)
	cw.(*pqfile.Int64ColumnChunkWriter).WriteBatch([]int64{v}, []int16{1}, nil)
}

// writeFloat64 writes a single-value batch to column idx of rgw.
func writeFloat64(rgw pqfile.BufferedRowGroupWriter, idx int, v float64) {
	cw, _ := rgw.Column(idx)
	cw.(*pqfile.Float64ColumnChunkWriter).WriteBatch([]float64{v}, []int16{1}, nil)
}

// writeBool writes a single-value batch to column idx of rgw, encoding the
// boolean as 0/1 to match boolCol's Int32 node.
func writeBool(rgw pqfile.BufferedRowGroupWriter, idx int, v bool) {
	n := int32(0)
	if v {
		n = 1
	}
	cw, _ := rgw.Column(idx)
	cw.(*pqfile.Int32ColumnChunkWriter).WriteBatch([]int32{n}, []int16{1}, nil)
}

// writeString writes a single-value batch to column idx of rgw.
func writeString(rgw pqfile.BufferedRowGroupWriter, idx int, v string) {
	cw, _ := rgw.Column(idx)
	cw.(*pqfile.ByteArrayColumnChunkWriter).WriteBatch([]parquet.ByteArray{parquet.ByteArray(v)}, []int16{1}, nil)
}

// writeParquetFile opens path, writes one buffered row group via writeRows,
// and flushes the footer. writeRows is handed the row-group writer and writes
// every row of the file into it.
func writeParquetFile(path string, schema *pqschema.GroupNode, writeRows func(rgw pqfile.BufferedRowGroupWriter)) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	pw := pqfile.NewParquetWriter(f, schema, pqfile.WithWriterProps(newWriterProperties()))
	defer pw.Close()

	rgw := pw.AppendBufferedRowGroup()
	writeRows(rgw)
	if err := rgw.Close(); err != nil {
		return err
	}
	return pw.FlushWithFooter()
}
