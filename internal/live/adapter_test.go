package live

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/plife507/TRADE-sub002/internal/barfeed"
	"github.com/plife507/TRADE-sub002/internal/play"
	"github.com/plife507/TRADE-sub002/internal/runner"
)

func buildFlatFeed(t *testing.T, n int) *barfeed.MultiFeed {
	t.Helper()
	bars := make([]barfeed.Bar, n)
	for i := range bars {
		c := float64(100 + i)
		bars[i] = barfeed.Bar{
			TsOpenMs: int64(i) * 60_000, TsCloseMs: int64(i+1) * 60_000,
			Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 1,
		}
	}
	exec, err := barfeed.Build(barfeed.RoleExec, 60_000, bars)
	require.NoError(t, err)
	mf, err := barfeed.NewMultiFeed(map[barfeed.Role]*barfeed.Feed{barfeed.RoleExec: exec}, exec)
	require.NoError(t, err)
	return mf
}

func testPlay() *play.Play {
	return &play.Play{
		ID:     "live-test",
		Symbol: "BTCUSDT",
		Account: play.AccountConfig{
			StartingEquityUSDT: 10_000, MaxLeverage: 20, TakerFeeBps: 5,
			MaintenanceMarginRate: 0.005, MinNotionalUSDT: 5,
		},
		Timeframes: map[string]string{"exec": "1m"},
		Features:   []play.FeatureDecl{{Key: "ema_3", Kind: "ema", Role: "exec", Params: map[string]float64{"period": 3}}},
		Policy:     play.PositionPolicy{Side: "long_short", ExitMode: "signal"},
		Risk:       play.RiskModel{Sizing: play.SizingFixedUSDT, FixedUSDT: 1_000, Leverage: 1},
	}
}

var upgrader = websocket.Upgrader{}

func newFakeKlineServer(t *testing.T, messages []string) (*httptest.Server, string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for _, m := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}))
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	return srv, wsURL
}

func TestRunAdvancesOneBarPerConfirmedCandle(t *testing.T) {
	mf := buildFlatFeed(t, 10)
	bp, err := runner.New(testPlay(), mf)
	require.NoError(t, err)

	messages := []string{
		`{"topic":"kline.1.BTCUSDT","data":[{"start":0,"confirm":false}]}`,
		`{"topic":"kline.1.BTCUSDT","data":[{"start":0,"confirm":true}]}`,
		`{"topic":"kline.1.BTCUSDT","data":[{"start":60000,"confirm":true}]}`,
	}
	srv, wsURL := newFakeKlineServer(t, messages)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	var results []*runner.BarResult
	adapter := NewAdapter(conn, bp, 0)
	adapter.OnBar = func(r *runner.BarResult) { results = append(results, r) }

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err = adapter.Run(ctx)
	require.Error(t, err) // ctx deadline or closed connection, either way Run returns

	require.Len(t, results, 2)
	require.Equal(t, 0, results[0].ExecIdx)
	require.Equal(t, 1, results[1].ExecIdx)
}
