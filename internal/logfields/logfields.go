package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyStage      = "stage"
	KeyPass       = "pass"
	KeyAsset      = "asset"
	KeyPath       = "path"
	KeyFile       = "file"
	KeyRef        = "ref"
	KeyWidth      = "width"
	KeyBucket     = "bucket"
	KeyCount      = "count"
	KeyRunID      = "run_id"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func Pass(name string) slog.Attr      { return slog.String(KeyPass, name) }
func Asset(p string) slog.Attr        { return slog.String(KeyAsset, p) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func File(f string) slog.Attr         { return slog.String(KeyFile, f) }
func Ref(r string) slog.Attr          { return slog.String(KeyRef, r) }
func Width(w int) slog.Attr           { return slog.Int(KeyWidth, w) }
func Bucket(b string) slog.Attr       { return slog.String(KeyBucket, b) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
