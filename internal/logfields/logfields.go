package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyURL          = "url"
	KeyHash         = "hash"
	KeyExpectedHash = "expected_hash"
	KeyActualHash   = "actual_hash"
	KeyPath         = "path"
	KeyCacheRoot    = "cache_root"
	KeyStatePath    = "state_path"
	KeyKeyPath      = "key_path"
	KeyCommand      = "command"
	KeyStatus       = "status"
	KeyBytes        = "bytes"
	KeyDurationMS   = "duration_ms"
	KeyAttempt      = "attempt"
	KeyError        = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Hash(h string) slog.Attr         { return slog.String(KeyHash, h) }
func ExpectedHash(h string) slog.Attr { return slog.String(KeyExpectedHash, h) }
func ActualHash(h string) slog.Attr   { return slog.String(KeyActualHash, h) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func CacheRoot(p string) slog.Attr    { return slog.String(KeyCacheRoot, p) }
func StatePath(p string) slog.Attr    { return slog.String(KeyStatePath, p) }
func KeyPathAttr(p string) slog.Attr  { return slog.String(KeyKeyPath, p) }
func Command(c string) slog.Attr      { return slog.String(KeyCommand, c) }
func Status(code int) slog.Attr       { return slog.Int(KeyStatus, code) }
func Bytes(n int64) slog.Attr         { return slog.Int64(KeyBytes, n) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Attempt(n int) slog.Attr         { return slog.Int(KeyAttempt, n) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
