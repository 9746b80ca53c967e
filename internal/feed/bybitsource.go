package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	bybit "github.com/bybit-exchange/bybit.go.api"

	"github.com/plife507/TRADE-sub002/internal/barfeed"
)

// bybitIntervals maps this module's timeframe strings to Bybit's v5 kline
// interval parameter.
var bybitIntervals = map[string]string{
	"1m":  "1",
	"3m":  "3",
	"5m":  "5",
	"15m": "15",
	"30m": "30",
	"1h":  "60",
	"4h":  "240",
	"1d":  "D",
}

// BybitSource implements DataSource over Bybit's public v5 linear-perpetual
// kline endpoint.
type BybitSource struct {
	client *bybit.Client
}

// NewBybitSource builds a client against Bybit's public market data; apiKey
// and apiSecret may be empty since klines are a public endpoint, but the
// teacher's own NewAPIClient always threads credentials through the same
// constructor even when a given call doesn't need them.
func NewBybitSource(apiKey, apiSecret string) *BybitSource {
	client := bybit.NewBybitHttpClient(apiKey, apiSecret, bybit.WithBaseURL(bybit.MAINNET))
	return &BybitSource{client: client}
}

// klineRow is one row of Bybit's kline response array: [start, open, high,
// low, close, volume, turnover], all strings.
type klineRow [7]string

// FetchKlines pages through Bybit's kline endpoint (capped at 1000 rows per
// call) until the requested range is covered, returning bars oldest first.
func (b *BybitSource) FetchKlines(ctx context.Context, symbol, timeframe string, startMs, endMs int64) ([]barfeed.Bar, error) {
	interval, ok := bybitIntervals[timeframe]
	if !ok {
		return nil, fmt.Errorf("feed: unsupported timeframe %q", timeframe)
	}

	var bars []barfeed.Bar
	cursor := startMs
	for cursor < endMs {
		params := map[string]interface{}{
			"category": "linear",
			"symbol":   symbol,
			"interval": interval,
			"start":    cursor,
			"end":      endMs,
			"limit":    1000,
		}
		resp, err := b.client.NewUtaBybitServiceWithParams(params).GetMarketKline(ctx)
		if err != nil {
			return nil, fmt.Errorf("feed: bybit kline request for %s %s: %w", symbol, timeframe, err)
		}

		rows, err := decodeKlineRows(resp)
		if err != nil {
			return nil, fmt.Errorf("feed: decode bybit kline response: %w", err)
		}
		if len(rows) == 0 {
			break
		}

		tfMs, err := barfeed.TimeframeMs(timeframe)
		if err != nil {
			return nil, err
		}
		page := make([]barfeed.Bar, 0, len(rows))
		for _, row := range rows {
			bar, err := barFromRow(row, tfMs)
			if err != nil {
				return nil, err
			}
			if bar.TsOpenMs < cursor {
				continue
			}
			page = append(page, bar)
		}
		sort.Slice(page, func(i, j int) bool { return page[i].TsOpenMs < page[j].TsOpenMs })
		bars = append(bars, page...)

		last := page[len(page)-1]
		next := last.TsCloseMs
		if next <= cursor {
			break
		}
		cursor = next
	}
	return bars, nil
}

// decodeKlineRows re-marshals the client's generic response into the
// documented {"result":{"list":[[...]]}} shape: this library returns
// untyped JSON-ish values from every endpoint rather than a typed struct,
// so every caller round-trips through encoding/json once to get a concrete
// type back.
func decodeKlineRows(resp interface{}) ([]klineRow, error) {
	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Result struct {
			List [][]string `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}
	rows := make([]klineRow, 0, len(envelope.Result.List))
	for _, r := range envelope.Result.List {
		if len(r) < 7 {
			continue
		}
		rows = append(rows, klineRow{r[0], r[1], r[2], r[3], r[4], r[5], r[6]})
	}
	return rows, nil
}

func barFromRow(row klineRow, tfMs int64) (barfeed.Bar, error) {
	startMs, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return barfeed.Bar{}, fmt.Errorf("feed: bad kline start timestamp %q: %w", row[0], err)
	}
	open, err := strconv.ParseFloat(row[1], 64)
	if err != nil {
		return barfeed.Bar{}, err
	}
	high, err := strconv.ParseFloat(row[2], 64)
	if err != nil {
		return barfeed.Bar{}, err
	}
	low, err := strconv.ParseFloat(row[3], 64)
	if err != nil {
		return barfeed.Bar{}, err
	}
	closeVal, err := strconv.ParseFloat(row[4], 64)
	if err != nil {
		return barfeed.Bar{}, err
	}
	volume, err := strconv.ParseFloat(row[5], 64)
	if err != nil {
		return barfeed.Bar{}, err
	}
	return barfeed.Bar{
		TsOpenMs:  startMs,
		TsCloseMs: startMs + tfMs,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closeVal,
		Volume:    volume,
	}, nil
}
