package obslog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewRunLoggerBindsRunHashAndPlayID(t *testing.T) {
	var buf bytes.Buffer
	log := NewRunLogger(&buf, "hash-1", "play-1")
	BarEvent(log, 5, 1234, 1000.5)

	out := buf.String()
	require.Contains(t, out, `"run_hash":"hash-1"`)
	require.Contains(t, out, `"play_id":"play-1"`)
	require.Contains(t, out, `"exec_idx":5`)
}

func TestBarEventIsSilentAboveDebugLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewRunLogger(&buf, "hash-1", "play-1")
	log = log.Level(zerolog.InfoLevel)
	BarEvent(log, 5, 1234, 1000.5)

	require.Empty(t, buf.String())
}

func TestNewReportLoggerWritesTextFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewReportLogger(&buf)
	log.Info("preflight passed")

	require.True(t, strings.Contains(buf.String(), "preflight passed"))
}
