package metrics

import "time"

// LookupResult enumerates cache lookup outcomes.
type LookupResult string

const (
	LookupHit      LookupResult = "hit"
	LookupMiss     LookupResult = "miss"
	LookupMismatch LookupResult = "mismatch"
)

// ExtractionResult enumerates archive expansion outcomes.
type ExtractionResult string

const (
	ExtractionCached    ExtractionResult = "cached"
	ExtractionExtracted ExtractionResult = "extracted"
	ExtractionRaced     ExtractionResult = "raced" // another extractor published first
	ExtractionFailed    ExtractionResult = "failed"
)

// Recorder defines observability hooks for the asset cache and state store.
// Implementations may forward to Prometheus; NoopRecorder is the default.
type Recorder interface {
	IncCacheLookup(result LookupResult)
	ObserveDownload(d time.Duration, bytes int64, success bool)
	IncExtraction(result ExtractionResult)
	ObserveOperationDuration(op string, d time.Duration)
	IncStatePersist(success bool)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncCacheLookup(LookupResult)                    {}
func (NoopRecorder) ObserveDownload(time.Duration, int64, bool)     {}
func (NoopRecorder) IncExtraction(ExtractionResult)                 {}
func (NoopRecorder) ObserveOperationDuration(string, time.Duration) {}
func (NoopRecorder) IncStatePersist(bool)                           {}
