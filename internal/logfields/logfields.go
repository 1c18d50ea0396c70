package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field names shared across packages.
const (
	KeyRunID      = "run_id"
	KeyMode       = "mode"
	KeyUnit       = "unit"
	KeyObject     = "object"
	KeyReason     = "reason"
	KeyStatus     = "status"
	KeyStage      = "stage"
	KeyDurationMS = "duration_ms"
	KeyPath       = "path"
	KeyRepo       = "repository"
	KeyCount      = "count"
	KeyError      = "error"
)

func RunID(id string) slog.Attr     { return slog.String(KeyRunID, id) }
func Mode(m string) slog.Attr       { return slog.String(KeyMode, m) }
func Unit(id string) slog.Attr      { return slog.String(KeyUnit, id) }
func Object(path string) slog.Attr  { return slog.String(KeyObject, path) }
func Reason(r string) slog.Attr     { return slog.String(KeyReason, r) }
func Status(s string) slog.Attr     { return slog.String(KeyStatus, s) }
func Stage(name string) slog.Attr   { return slog.String(KeyStage, name) }
func Path(p string) slog.Attr       { return slog.String(KeyPath, p) }
func Repository(r string) slog.Attr { return slog.String(KeyRepo, r) }
func Count(n int) slog.Attr         { return slog.Int(KeyCount, n) }

func Duration(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMS, float64(d.Microseconds())/1000)
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}

	return slog.String(KeyError, err.Error())
}
