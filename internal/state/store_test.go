package state

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/harnesscache/internal/foundation/errors"
	"git.home.luguber.info/inful/harnesscache/internal/metrics"
)

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 678_000_000, time.UTC)

type persistCounter struct {
	metrics.NoopRecorder
	ok, failed atomic.Int32
}

func (p *persistCounter) IncStatePersist(success bool) {
	if success {
		p.ok.Add(1)
	} else {
		p.failed.Add(1)
	}
}

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{
		WithClock(func() time.Time { return fixedNow }),
		WithRunID(func() string { return "run-1" }),
	}, opts...)
	return New(filepath.Join(t.TempDir(), "artifacts", "state.json"), opts...)
}

func mustGet(t *testing.T, s *Store, path string) Value {
	t.Helper()
	v, ok := s.Get(path)
	require.True(t, ok, "expected %s to be set", path)
	return v
}

func readSnapshot(t *testing.T, s *Store) Value {
	t.Helper()
	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	v, err := ParseJSON(data)
	require.NoError(t, err)
	return v
}

func TestInit_BuildsDocument(t *testing.T) {
	s := newTestStore(t)
	assert.Equal(t, PhaseUninitialized, s.Phase())

	seed := MustFromAny(map[string]any{"spec": map[string]any{"cloud": "aws"}})
	require.NoError(t, s.Init(seed))
	assert.Equal(t, PhaseActive, s.Phase())

	assert.Equal(t, APIVersion, mustGet(t, s, "apiVersion").String())
	assert.Equal(t, DocumentKind, mustGet(t, s, "kind").String())
	assert.Equal(t, "aws", mustGet(t, s, "spec.cloud").String())
	assert.True(t, mustGet(t, s, "seedState").Equal(seed))
	assert.Equal(t, "2026-01-02T03:04:05Z", mustGet(t, s, "status.started").String())
	assert.Equal(t, "run-1", mustGet(t, s, "metadata.runID").String())

	results, ok := Lookup(s.Snapshot(), []string{"status", "results"})
	require.True(t, ok)
	assert.True(t, results.Equal(List()))

	assert.True(t, readSnapshot(t, s).Equal(s.Snapshot()))
}

func TestInit_KeepsSeededResults(t *testing.T) {
	s := newTestStore(t)
	seed := MustFromAny(map[string]any{"status": map[string]any{"results": []any{"earlier"}}})
	require.NoError(t, s.Init(seed))
	assert.True(t, mustGet(t, s, "status.results").Equal(List(String("earlier"))))
}

func TestInit_Twice(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Init(Null()))
	err := s.Init(NewMap())
	require.ErrorIs(t, err, ErrAlreadyInitialized)
	assert.True(t, errors.HasCategory(err, errors.CategoryState))
}

func TestInit_RejectsScalarSeed(t *testing.T) {
	s := newTestStore(t)
	err := s.Init(String("nope"))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
	assert.Equal(t, PhaseUninitialized, s.Phase())
}

func TestMutationsBeforeInit(t *testing.T) {
	s := newTestStore(t)

	require.ErrorIs(t, s.Set("a", Int(1)), ErrNotInitialized)
	require.ErrorIs(t, s.Update(NewMap()), ErrNotInitialized)
	require.ErrorIs(t, s.Append("a", Int(1)), ErrNotInitialized)
	require.ErrorIs(t, s.RecordFailure("boom", Null()), ErrNotInitialized)
	require.ErrorIs(t, s.Finish(), ErrNotInitialized)
	_, err := s.GetOrSet("a", Int(1))
	require.ErrorIs(t, err, ErrNotInitialized)

	_, ok := s.Get("a")
	assert.False(t, ok)
	assert.NoFileExists(t, s.Path())
}

func TestGetOrSet_KeepsExistingValue(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Init(MustFromAny(map[string]any{"spec": map[string]any{"cloud": "aws"}})))

	zones := List(String("us-east-2a"))
	got, err := s.GetOrSet("spec.cluster.zones", zones)
	require.NoError(t, err)
	assert.True(t, got.Equal(zones))
	assert.True(t, mustGet(t, s, "spec.cluster.zones").Equal(zones))

	got, err = s.GetOrSet("spec.cluster.zones", List(String("eu-west-1a")))
	require.NoError(t, err)
	assert.True(t, got.Equal(zones))
	assert.Equal(t, "aws", mustGet(t, s, "spec.cloud").String())
}

func TestGetOrSet_ReplacesFalsy(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Init(Null()))
	require.NoError(t, s.Set("spec.count", Int(0)))

	got, err := s.GetOrSet("spec.count", Int(3))
	require.NoError(t, err)
	assert.True(t, got.Equal(Int(3)))
}

func TestGet_FalsyIsNotFound(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Init(Null()))

	for _, v := range []Value{Null(), Bool(false), Int(0), String(""), List(), NewMap()} {
		require.NoError(t, s.Set("spec.flag", v))
		_, ok := s.Get("spec.flag")
		assert.False(t, ok, "%s should read as not found", v.Kind())
	}

	_, ok := s.Get("spec.missing.deeper")
	assert.False(t, ok)
	_, ok = s.Get("spec..flag")
	assert.False(t, ok)
}

func TestGet_DoesNotMaterialize(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Init(Null()))
	_, _ = s.Get("spec.a.b.c")

	_, ok := Lookup(s.Snapshot(), []string{"spec", "a"})
	assert.False(t, ok)
}

func TestSet_ThroughScalar(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Init(Null()))
	require.NoError(t, s.Set("spec.cloud", String("aws")))
	require.NoError(t, s.Set("spec.cloud.region", String("us-east-2")))

	assert.Equal(t, "us-east-2", mustGet(t, s, "spec.cloud.region").String())
	assert.True(t, readSnapshot(t, s).Equal(s.Snapshot()))
}

func TestSet_InvalidPath(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Init(Null()))
	err := s.Set("", Int(1))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
}

func TestSet_CopiesValue(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Init(Null()))
	v := NewMap()
	require.NoError(t, s.Set("spec.cluster", v))
	v.m["leak"] = Int(1)

	_, ok := s.Get("spec.cluster.leak")
	assert.False(t, ok)
}

func TestUpdate_DeepMerges(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Init(MustFromAny(map[string]any{
		"spec": map[string]any{"cloud": "aws", "cluster": map[string]any{"name": "e2e"}},
	})))

	require.NoError(t, s.Update(MustFromAny(map[string]any{
		"spec": map[string]any{"cloud": "gce", "cluster": map[string]any{"zones": []any{"a"}}},
	})))

	assert.Equal(t, "gce", mustGet(t, s, "spec.cloud").String())
	assert.Equal(t, "e2e", mustGet(t, s, "spec.cluster.name").String())
	assert.True(t, mustGet(t, s, "spec.cluster.zones").Equal(List(String("a"))))

	err := s.Update(List())
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
}

func TestAppend(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Init(Null()))

	require.NoError(t, s.Append("status.results", String("first")))
	require.NoError(t, s.Append("status.results", String("second")))
	assert.True(t, mustGet(t, s, "status.results").Equal(List(String("first"), String("second"))))

	require.NoError(t, s.Append("spec.new.list", Int(1)))
	assert.True(t, mustGet(t, s, "spec.new.list").Equal(List(Int(1))))

	require.NoError(t, s.Set("spec.scalar", String("x")))
	require.NoError(t, s.Append("spec.scalar", Int(2)))
	assert.True(t, mustGet(t, s, "spec.scalar").Equal(List(Int(2))))
}

func TestAppend_DoesNotAliasSnapshots(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Init(Null()))
	require.NoError(t, s.Append("status.results", Int(1)))
	before := s.Snapshot()
	require.NoError(t, s.Append("status.results", Int(2)))

	results, _ := Lookup(before, []string{"status", "results"})
	assert.Equal(t, 1, results.Len())
}

func TestRecordFailure_Accumulates(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Init(Null()))

	require.NoError(t, s.RecordFailure("cluster create failed", MustFromAny(map[string]any{"exit_code": 1})))
	require.NoError(t, s.RecordFailure("validate timed out", Null()))

	failures := mustGet(t, s, "status.failures")
	items, ok := failures.AsList()
	require.True(t, ok)
	require.Len(t, items, 2)

	msg, _ := items[0].Field("message")
	assert.Equal(t, "cluster create failed", msg.String())
	ctx, _ := items[0].Field("context")
	assert.True(t, ctx.Equal(MustFromAny(map[string]any{"exit_code": 1})))
	ts, _ := items[1].Field("time")
	assert.Equal(t, "2026-01-02T03:04:05Z", ts.String())
	assert.Equal(t, PhaseActive, s.Phase())
}

func TestFinish(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Init(Null()))
	require.NoError(t, s.Finish())

	assert.Equal(t, PhaseFinished, s.Phase())
	assert.Equal(t, "2026-01-02T03:04:05Z", mustGet(t, s, "status.finished").String())

	require.NoError(t, s.Set("status.late", Bool(true)))
	assert.True(t, mustGet(t, s, "status.late").Equal(Bool(true)))
}

func TestSnapshotFile_Format(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Init(MustFromAny(map[string]any{"spec": map[string]any{"zeta": 1, "alpha": 2}})))

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	text := string(data)

	assert.True(t, strings.HasSuffix(text, "}\n"))
	assert.Contains(t, text, "\n  \"apiVersion\": ")
	assert.Contains(t, text, "\n    \"alpha\": 2")

	order := []string{`"apiVersion"`, `"kind"`, `"metadata"`, `"seedState"`, `"spec"`, `"status"`}
	last := -1
	for _, key := range order {
		idx := strings.Index(text, "\n  "+key)
		require.Greater(t, idx, last, "key %s out of order", key)
		last = idx
	}
	assert.Less(t, strings.Index(text, `"alpha"`), strings.Index(text, `"zeta"`))

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files may remain")
}

func TestOpen(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Init(Null()))
	require.NoError(t, s.Set("spec.cloud", String("aws")))

	reopened, err := Open(s.Path())
	require.NoError(t, err)
	assert.Equal(t, PhaseActive, reopened.Phase())
	assert.Equal(t, "aws", mustGet(t, reopened, "spec.cloud").String())
	require.ErrorIs(t, reopened.Init(Null()), ErrAlreadyInitialized)

	require.NoError(t, reopened.Finish())
	finished, err := Open(s.Path())
	require.NoError(t, err)
	assert.Equal(t, PhaseFinished, finished.Phase())
}

func TestOpen_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryFileSystem))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o600))
	_, err = Open(bad)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryState))

	list := filepath.Join(dir, "list.json")
	require.NoError(t, os.WriteFile(list, []byte("[1]"), 0o600))
	_, err = Open(list)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryState))
}

func TestPersist_Failure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	rec := &persistCounter{}
	s := New(filepath.Join(blocker, "state.json"), WithRecorder(rec))
	err := s.Init(Null())
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryFileSystem))
	assert.Equal(t, int32(1), rec.failed.Load())
}

func TestConcurrentAppends(t *testing.T) {
	rec := &persistCounter{}
	s := newTestStore(t, WithRecorder(rec))
	require.NoError(t, s.Init(Null()))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Append("status.results", Int(int64(i))))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, mustGet(t, s, "status.results").Len())
	assert.True(t, readSnapshot(t, s).Equal(s.Snapshot()))
	assert.Equal(t, int32(21), rec.ok.Load())
}

func TestRecordFailure_BeforeInitLogsNothing(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	s := newTestStore(t)
	require.ErrorIs(t, s.RecordFailure("boom", Null()), ErrNotInitialized)
	assert.NotContains(t, buf.String(), "Harness failure recorded")

	require.NoError(t, s.Init(Null()))
	require.NoError(t, s.RecordFailure("boom", Null()))
	assert.Contains(t, buf.String(), "Harness failure recorded")
}

func TestMutation_UnencodableValueRollsBack(t *testing.T) {
	rec := &persistCounter{}
	s := newTestStore(t, WithRecorder(rec))
	require.NoError(t, s.Init(MustFromAny(map[string]any{"spec": map[string]any{"cloud": "gce"}})))

	bad := Value{kind: KindNumber, n: "1,5"}
	err := s.Set("spec.bad", bad)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryInternal))
	assert.Equal(t, int32(1), rec.failed.Load())
	_, ok := s.Get("spec.bad")
	assert.False(t, ok)

	require.Error(t, s.Update(Map(map[string]Value{"status": Map(map[string]Value{"bad": bad})})))
	assert.Equal(t, PhaseActive, s.Phase())

	require.NoError(t, s.Set("spec.cloud", String("aws")))
	require.NoError(t, s.Finish())
	assert.Equal(t, PhaseFinished, s.Phase())
	cloud, ok := Lookup(readSnapshot(t, s), []string{"spec", "cloud"})
	require.True(t, ok)
	assert.Equal(t, "aws", cloud.String())
	assert.True(t, readSnapshot(t, s).Equal(s.Snapshot()))
}

func TestSet_InvalidNumberTextIsNull(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Init(Null()))
	require.NoError(t, s.Set("spec.ratio", Number("1,5")))
	_, ok := s.Get("spec.ratio")
	assert.False(t, ok)
	assert.True(t, readSnapshot(t, s).Equal(s.Snapshot()))
}
