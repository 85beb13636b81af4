package storage

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// badgerLogWriter redirects badger's own logging to the application logger,
// tagged so that storage noise can be filtered out.
type badgerLogWriter struct {
	log *slog.Logger
}

var _ badger.Logger = badgerLogWriter{}

func NewBadgerLogger(log *slog.Logger) badger.Logger {
	return badgerLogWriter{log: log.With("component", "badger")}
}

func (w badgerLogWriter) Errorf(format string, args ...any) {
	w.log.Error(clean(format, args))
}

func (w badgerLogWriter) Warningf(format string, args ...any) {
	w.log.Warn(clean(format, args))
}

func (w badgerLogWriter) Infof(format string, args ...any) {
	w.log.Info(clean(format, args))
}

func (w badgerLogWriter) Debugf(format string, args ...any) {
	w.log.Debug(clean(format, args))
}

// clean removes the trailing newline badger appends to most lines.
func clean(format string, args []any) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}
