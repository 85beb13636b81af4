package storage

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBadgerLogger_Redirects_To_Slog(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	logger := NewBadgerLogger(log)
	logger.Warningf("Compaction took %d ms\n", 12)
	logger.Debugf("hidden")

	out := buf.String()
	req.Contains(out, "level=WARN")
	req.Contains(out, `msg="Compaction took 12 ms"`)
	req.Contains(out, "component=badger")
	req.NotContains(out, "hidden")
}
