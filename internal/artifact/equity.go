package artifact

import (
	"github.com/apache/arrow-go/v18/parquet"
	pqfile "github.com/apache/arrow-go/v18/parquet/file"
	pqschema "github.com/apache/arrow-go/v18/parquet/schema"

	"github.com/plife507/TRADE-sub002/internal/runner"
)

// equitySchema lays out one row per exec bar's equity sample.
func equitySchema() *pqschema.GroupNode {
	return pqschema.MustGroup(pqschema.NewGroupNode("schema", parquet.Repetitions.Required, pqschema.FieldList{
		int64Col("ts_close_ms"),
		float64Col("equity_usdt"),
		float64Col("mark_price"),
		boolCol("has_position"),
	}, -1))
}

// WriteEquityParquet writes one row per EquityPoint, in the order the run
// produced them — one sample per processed exec bar, regardless of whether
// that bar submitted any order.
func WriteEquityParquet(path string, points []runner.EquityPoint) error {
	return writeParquetFile(path, equitySchema(), func(rgw pqfile.BufferedRowGroupWriter) {
		for _, p := range points {
			writeInt64(rgw, 0, p.TsCloseMs)
			writeFloat64(rgw, 1, p.EquityUSDT)
			writeFloat64(rgw, 2, p.MarkPrice)
			writeBool(rgw, 3, p.HasPosition)
		}
	})
}
