package artifact

import (
	"github.com/apache/arrow-go/v18/parquet"
	pqfile "github.com/apache/arrow-go/v18/parquet/file"
	pqschema "github.com/apache/arrow-go/v18/parquet/schema"
)

// tradesSchema lays out one row per closed trade, per spec.md §4.9.
func tradesSchema() *pqschema.GroupNode {
	return pqschema.MustGroup(pqschema.NewGroupNode("schema", parquet.Repetitions.Required, pqschema.FieldList{
		stringCol("side"),
		int64Col("entry_ts_ms"),
		int64Col("exit_ts_ms"),
		float64Col("entry_price"),
		float64Col("exit_price"),
		float64Col("qty"),
		float64Col("pnl_usdt"),
		float64Col("fees_usdt"),
		float64Col("mae_usdt"),
		float64Col("mfe_usdt"),
		int64Col("holding_bars"),
		stringCol("exit_reason"),
	}, -1))
}

// WriteTradesParquet writes one row per closed trade to path, in the
// reconciled trades' given order (ReconcileTrades already sorts by
// timestamp, so this is chronological).
func WriteTradesParquet(path string, trades []Trade) error {
	return writeParquetFile(path, tradesSchema(), func(rgw pqfile.BufferedRowGroupWriter) {
		for _, t := range trades {
			writeString(rgw, 0, t.Side)
			writeInt64(rgw, 1, t.EntryTsMs)
			writeInt64(rgw, 2, t.ExitTsMs)
			writeFloat64(rgw, 3, t.EntryPrice)
			writeFloat64(rgw, 4, t.ExitPrice)
			writeFloat64(rgw, 5, t.Qty)
			writeFloat64(rgw, 6, t.PnLUSDT)
			writeFloat64(rgw, 7, t.FeesUSDT)
			writeFloat64(rgw, 8, t.MAEUSDT)
			writeFloat64(rgw, 9, t.MFEUSDT)
			writeInt64(rgw, 10, int64(t.HoldingBars))
			writeString(rgw, 11, t.ExitReason)
		}
	})
}
