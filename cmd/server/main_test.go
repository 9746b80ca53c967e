package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/agiledragon/gomonkey/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/plife507/TRADE-sub002/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st, err := store.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return &Server{store: st, registry: prometheus.NewRegistry()}
}

func TestHandleGetRunReturnsNotFoundForUnknownHash(t *testing.T) {
	s := newTestServer(t)
	r := gin.New()
	r.GET("/runs/:hash", s.handleGetRun)

	req := httptest.NewRequest(http.MethodGet, "/runs/does-not-exist", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleGetRunReturnsStoredRecord(t *testing.T) {
	s := newTestServer(t)
	rec := &store.RunRecord{
		RunHash: "hash-1", PlayID: "play-1", PlayVersion: "1",
		Symbol: "BTCUSDT", WindowStartMs: 0, WindowEndMs: 60_000,
		ManifestPath: "manifest.json", ResultJSON: `{"final_equity_usdt":1000}`,
		CreatedAt: time.UnixMilli(60_000).UTC(),
	}
	require.NoError(t, s.store.Upsert(rec))

	r := gin.New()
	r.GET("/runs/:hash", s.handleGetRun)

	req := httptest.NewRequest(http.MethodGet, "/runs/hash-1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "final_equity_usdt")
}

// TestHandleGetRunReturns500OnStoreFailure patches the concrete *store.RunStore.Get
// method directly, since RunStore has no interface seam for a caller to swap in a
// failing double — gomonkey exists in this module's dependency set for exactly
// this situation.
func TestHandleGetRunReturns500OnStoreFailure(t *testing.T) {
	s := newTestServer(t)

	patch := gomonkey.ApplyMethod(reflect.TypeOf(s.store), "Get", func(_ *store.RunStore, _ string) (*store.RunRecord, error) {
		return nil, errors.New("disk exploded")
	})
	defer patch.Reset()

	r := gin.New()
	r.GET("/runs/:hash", s.handleGetRun)

	req := httptest.NewRequest(http.MethodGet, "/runs/hash-1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandleListRunsRequiresPlayID(t *testing.T) {
	s := newTestServer(t)
	r := gin.New()
	r.GET("/runs", s.handleListRuns)

	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	r := gin.New()
	r.Use(requestID)
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.NotEmpty(t, w.Header().Get("X-Request-Id"))
}
