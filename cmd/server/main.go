// Command server runs the read-only reporting API (SPEC_FULL.md §4.15):
// it never calls into internal/runner and only ever reads what
// internal/artifact already wrote and what internal/store already
// recorded, so browsing past runs can never itself affect a trade hash.
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/plife507/TRADE-sub002/internal/config"
	"github.com/plife507/TRADE-sub002/internal/store"
)

// requestID stamps every request with a fresh identifier (the same
// uuid.New().String() call the teacher used to mint tactic IDs) and echoes
// it back as a response header, so a caller can correlate a reporting-API
// response with the corresponding server log line.
func requestID(c *gin.Context) {
	id := uuid.New().String()
	c.Writer.Header().Set("X-Request-Id", id)
	c.Set("request_id", id)
	c.Next()
}

// Server owns the collaborators every handler reads from, the same shape
// the teacher's api.Server wraps a store behind.
type Server struct {
	store    *store.RunStore
	registry *prometheus.Registry
}

func main() {
	envPath := os.Getenv("ENV_FILE")
	if envPath == "" {
		envPath = ".env"
	}
	cfg, err := config.Load(envPath)
	if err != nil {
		log.Fatalf("server: config: %v", err)
	}

	eng, err := config.Bootstrap(cfg)
	if err != nil {
		log.Fatalf("server: bootstrap: %v", err)
	}
	defer eng.Close()

	s := &Server{store: eng.Store, registry: prometheus.NewRegistry()}

	r := gin.Default()
	r.Use(requestID)
	r.GET("/runs/:hash", s.handleGetRun)
	r.GET("/runs", s.handleListRuns)
	r.GET("/metrics", s.handleMetrics())

	addr := cfg.MetricsAddr
	log.Printf("server: listening on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}

// handleGetRun returns the stored record for a run hash, including its
// already-computed result JSON so a caller doesn't need filesystem access
// to the artifacts directory.
func (s *Server) handleGetRun(c *gin.Context) {
	hash := c.Param("hash")
	rec, err := s.store.Get(hash)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read run: " + err.Error()})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}

	var result json.RawMessage
	if rec.ResultJSON != "" {
		result = json.RawMessage(rec.ResultJSON)
	}

	c.JSON(http.StatusOK, gin.H{
		"run_hash":        rec.RunHash,
		"play_id":         rec.PlayID,
		"play_version":    rec.PlayVersion,
		"symbol":          rec.Symbol,
		"window_start_ms": rec.WindowStartMs,
		"window_end_ms":   rec.WindowEndMs,
		"manifest_path":   rec.ManifestPath,
		"result":          result,
		"created_at":      rec.CreatedAt,
	})
}

// handleListRuns lists every recorded run for the play_id query parameter.
func (s *Server) handleListRuns(c *gin.Context) {
	playID := c.Query("play_id")
	if playID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "play_id is required"})
		return
	}

	recs, err := s.store.List(playID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs: " + err.Error()})
		return
	}

	out := make([]gin.H, 0, len(recs))
	for _, rec := range recs {
		out = append(out, gin.H{
			"run_hash":        rec.RunHash,
			"symbol":          rec.Symbol,
			"window_start_ms": rec.WindowStartMs,
			"window_end_ms":   rec.WindowEndMs,
			"manifest_path":   rec.ManifestPath,
			"created_at":      rec.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"play_id": playID, "runs": out})
}

// handleMetrics exposes whatever registry the server currently holds over
// the standard promhttp handler, wrapped so it can be mounted as a gin
// route.
func (s *Server) handleMetrics() gin.HandlerFunc {
	h := promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
