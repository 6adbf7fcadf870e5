package state

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/harnesscache/internal/foundation/errors"
	"git.home.luguber.info/inful/harnesscache/internal/logfields"
	"git.home.luguber.info/inful/harnesscache/internal/metrics"
)

const (
	// APIVersion and DocumentKind mark a snapshot as a harness run document.
	APIVersion   = "harnesscache.luguber.info/v1alpha1"
	DocumentKind = "TestRunState"

	keySeedState = "seedState"
	keySpec      = "spec"
	keyStatus    = "status"

	pathResults  = "status.results"
	pathStarted  = "status.started"
	pathFinished = "status.finished"
	pathFailures = "status.failures"
	pathRunID    = "metadata.runID"
)

var (
	// ErrNotInitialized is returned by mutations on a store that was never initialized.
	ErrNotInitialized = errors.StateError("state store is not initialized").Build()

	// ErrAlreadyInitialized is returned by a second Init.
	ErrAlreadyInitialized = errors.StateError("state store is already initialized").Build()
)

// Phase is the lifecycle position of a Store.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseActive
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseActive:
		return "active"
	case PhaseFinished:
		return "finished"
	default:
		return "uninitialized"
	}
}

// Store owns one run-state document and its snapshot file. All methods are
// safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	path     string
	doc      Value
	phase    Phase
	now      func() time.Time
	newID    func() string
	recorder metrics.Recorder
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithRunID replaces the run ID generator.
func WithRunID(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Store) {
		if r != nil {
			s.recorder = r
		}
	}
}

// New returns an uninitialized store that will persist to path.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:     path,
		now:      time.Now,
		newID:    uuid.NewString,
		recorder: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open loads an existing snapshot. The store is Finished when the snapshot
// carries status.finished and Active otherwise.
func Open(path string, opts ...Option) (*Store, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- snapshot path comes from configuration
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "read state snapshot").
			WithContext("state_path", path).
			Build()
	}
	doc, err := ParseJSON(data)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryState, "parse state snapshot").
			WithContext("state_path", path).
			Build()
	}
	if !doc.IsMap() {
		return nil, errors.StateError("state snapshot is not a mapping").
			WithContext("state_path", path).
			Build()
	}

	s := New(path, opts...)
	s.doc = doc
	s.phase = PhaseActive
	if v, ok := Lookup(doc, []string{keyStatus, "finished"}); ok && v.Truthy() {
		s.phase = PhaseFinished
	}
	return s, nil
}

// Path returns the snapshot file path.
func (s *Store) Path() string { return s.path }

// Phase returns the current lifecycle phase.
func (s *Store) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Init builds the document from seed and persists it. seed must be a mapping
// or null. The seed is also kept verbatim under seedState.
func (s *Store) Init(seed Value) error {
	if !seed.IsNull() && !seed.IsMap() {
		return errors.ValidationError("state seed must be a mapping").
			WithContext("kind", seed.Kind().String()).
			Build()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseUninitialized {
		return ErrAlreadyInitialized
	}

	doc := NewMap()
	if seed.IsMap() {
		doc = seed.Clone()
	}
	doc.m[keySeedState] = seed.Clone()
	doc.m["apiVersion"] = String(APIVersion)
	doc.m["kind"] = String(DocumentKind)
	for _, key := range []string{keySpec, keyStatus} {
		if !doc.m[key].IsMap() {
			doc.m[key] = NewMap()
		}
	}
	if _, ok := Lookup(doc, mustSplit(pathResults)); !ok {
		doc = Assign(doc, mustSplit(pathResults), List())
	}
	doc = Assign(doc, mustSplit(pathStarted), String(s.timestamp()))
	doc = Assign(doc, mustSplit(pathRunID), String(s.newID()))

	data, err := s.encode(doc)
	if err != nil {
		return err
	}
	s.doc = doc
	s.phase = PhaseActive
	runID, _ := Lookup(doc, mustSplit(pathRunID))
	slog.Info("Run state initialized", logfields.StatePath(s.path), slog.String("run_id", runID.String()))
	return s.writeLocked(data)
}

// Update deep-merges patch into the document. patch must be a mapping.
func (s *Store) Update(patch Value) error {
	if !patch.IsMap() {
		return errors.ValidationError("state patch must be a mapping").
			WithContext("kind", patch.Kind().String()).
			Build()
	}
	return s.mutate(func() error {
		s.doc = Merge(s.doc, patch)
		return nil
	})
}

// Get returns the value at path. Missing keys, falsy values and malformed
// paths all report false.
func (s *Store) Get(path string) (Value, bool) {
	keys, err := SplitPath(path)
	if err != nil {
		return Value{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := Lookup(s.doc, keys)
	if !ok || !v.Truthy() {
		return Value{}, false
	}
	return v.Clone(), true
}

// Set stores v at path, creating intermediate mappings.
func (s *Store) Set(path string, v Value) error {
	keys, err := SplitPath(path)
	if err != nil {
		return err
	}
	return s.mutate(func() error {
		s.doc = Assign(s.doc, keys, v.Clone())
		return nil
	})
}

// GetOrSet returns the truthy value at path, or stores and returns def.
func (s *Store) GetOrSet(path string, def Value) (Value, error) {
	keys, err := SplitPath(path)
	if err != nil {
		return Value{}, err
	}
	var out Value
	err = s.mutateIf(func() (bool, error) {
		if cur, ok := Lookup(s.doc, keys); ok && cur.Truthy() {
			out = cur.Clone()
			return false, nil
		}
		s.doc = Assign(s.doc, keys, def.Clone())
		out = def.Clone()
		return true, nil
	})
	if err != nil {
		return Value{}, err
	}
	return out, nil
}

// Append adds item to the list at path. A missing or falsy value starts a
// new list; any other non-list value is replaced by a one-element list.
func (s *Store) Append(path string, item Value) error {
	keys, err := SplitPath(path)
	if err != nil {
		return err
	}
	return s.mutate(func() error {
		s.appendLocked(keys, item)
		return nil
	})
}

func (s *Store) appendLocked(keys []string, item Value) {
	var items []Value
	if cur, ok := Lookup(s.doc, keys); ok && cur.IsList() {
		items = cur.list
	} else if ok && cur.Truthy() {
		slog.Warn("Replacing non-list value with a list",
			logfields.KeyPathAttr(strings.Join(keys, ".")),
			slog.String("kind", cur.Kind().String()))
	}
	items = append(items[:len(items):len(items)], item.Clone())
	s.doc = Assign(s.doc, keys, Value{kind: KindList, list: items})
}

// RecordFailure appends {message, context, time} to status.failures and logs
// it. Recording a failure never changes the phase.
func (s *Store) RecordFailure(message string, details Value) error {
	return s.mutate(func() error {
		slog.Error("Harness failure recorded",
			slog.String("message", message),
			slog.Any("context", details.ToAny()),
			logfields.StatePath(s.path))
		entry := Map(map[string]Value{
			"message": String(message),
			"context": details.Clone(),
			"time":    String(s.timestamp()),
		})
		s.appendLocked(mustSplit(pathFailures), entry)
		return nil
	})
}

// Finish stamps status.finished. Later writes are still accepted.
func (s *Store) Finish() error {
	return s.mutate(func() error {
		s.doc = Assign(s.doc, mustSplit(pathFinished), String(s.timestamp()))
		s.phase = PhaseFinished
		slog.Info("Run state finished", logfields.StatePath(s.path))
		return nil
	})
}

// Snapshot returns a deep copy of the document.
func (s *Store) Snapshot() Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

func (s *Store) mutate(fn func() error) error {
	return s.mutateIf(func() (bool, error) {
		return true, fn()
	})
}

// mutateIf runs fn under the lock and persists when fn reports a change. A
// document that cannot be encoded is rolled back so later mutations still
// persist.
func (s *Store) mutateIf(fn func() (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseUninitialized {
		return ErrNotInitialized
	}
	prevDoc, prevPhase := s.doc.Clone(), s.phase
	changed, err := fn()
	if err != nil || !changed {
		return err
	}
	data, err := s.encode(s.doc)
	if err != nil {
		s.doc, s.phase = prevDoc, prevPhase
		return err
	}
	return s.writeLocked(data)
}

func (s *Store) encode(doc Value) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		s.recorder.IncStatePersist(false)
		return nil, errors.WrapError(err, errors.CategoryInternal, "encode state").
			WithContext("state_path", s.path).
			Build()
	}
	return append(data, '\n'), nil
}

// writeLocked writes data to a temporary file next to the snapshot and renames
// it into place.
func (s *Store) writeLocked(data []byte) (err error) {
	defer func() {
		s.recorder.IncStatePersist(err == nil)
	}()

	dir := filepath.Dir(s.path)
	if err = os.MkdirAll(dir, 0o750); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "create artifacts directory").
			WithContext("path", dir).
			Build()
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "create temporary state file").
			WithContext("path", dir).
			Build()
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chmod(tmpPath, 0o644)
	}
	if err == nil {
		err = os.Rename(tmpPath, s.path)
	}
	if err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "write state snapshot").
			WithContext("state_path", s.path).
			Build()
	}

	slog.Debug("State persisted", logfields.StatePath(s.path), logfields.Bytes(int64(len(data))))
	return nil
}

func (s *Store) timestamp() string {
	return s.now().UTC().Truncate(time.Second).Format(time.RFC3339)
}

func mustSplit(path string) []string {
	keys, err := SplitPath(path)
	if err != nil {
		panic(err)
	}
	return keys
}
