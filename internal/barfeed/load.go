package barfeed

import (
	"fmt"
	"os"

	pqfile "github.com/apache/arrow-go/v18/parquet/file"
)

// LoadParquet reads a kline parquet file written with the columns
// ts_open_ms, ts_close_ms, open, high, low, close, volume (int64/int64/
// float64 x5, in that order) into a slice of Bar.
func LoadParquet(path string) ([]Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("barfeed: open %s: %w", path, err)
	}
	defer f.Close()

	pr, err := pqfile.NewParquetReader(f)
	if err != nil {
		return nil, fmt.Errorf("barfeed: open parquet reader for %s: %w", path, err)
	}
	defer pr.Close()

	var bars []Bar
	for g := 0; g < pr.NumRowGroups(); g++ {
		rg := pr.RowGroup(g)
		n := rg.NumRows()
		if n == 0 {
			continue
		}

		tsOpen, err := readInt64Column(rg, 0, n)
		if err != nil {
			return nil, err
		}
		tsClose, err := readInt64Column(rg, 1, n)
		if err != nil {
			return nil, err
		}
		open, err := readFloat64Column(rg, 2, n)
		if err != nil {
			return nil, err
		}
		high, err := readFloat64Column(rg, 3, n)
		if err != nil {
			return nil, err
		}
		low, err := readFloat64Column(rg, 4, n)
		if err != nil {
			return nil, err
		}
		closeCol, err := readFloat64Column(rg, 5, n)
		if err != nil {
			return nil, err
		}
		volume, err := readFloat64Column(rg, 6, n)
		if err != nil {
			return nil, err
		}

		for i := int64(0); i < n; i++ {
			bars = append(bars, Bar{
				TsOpenMs:  tsOpen[i],
				TsCloseMs: tsClose[i],
				Open:      open[i],
				High:      high[i],
				Low:       low[i],
				Close:     closeCol[i],
				Volume:    volume[i],
			})
		}
	}
	return bars, nil
}

func readInt64Column(rg pqfile.RowGroupReader, idx int, n int64) ([]int64, error) {
	col, err := rg.Column(idx)
	if err != nil {
		return nil, err
	}
	r, ok := col.(*pqfile.Int64ColumnChunkReader)
	if !ok {
		return nil, fmt.Errorf("barfeed: column %d is not int64", idx)
	}
	values := make([]int64, n)
	_, _, err = r.ReadBatch(n, values, nil, nil)
	if err != nil {
		return nil, err
	}
	return values, nil
}

func readFloat64Column(rg pqfile.RowGroupReader, idx int, n int64) ([]float64, error) {
	col, err := rg.Column(idx)
	if err != nil {
		return nil, err
	}
	r, ok := col.(*pqfile.Float64ColumnChunkReader)
	if !ok {
		return nil, fmt.Errorf("barfeed: column %d is not float64", idx)
	}
	values := make([]float64, n)
	_, _, err = r.ReadBatch(n, values, nil, nil)
	if err != nil {
		return nil, err
	}
	return values, nil
}
