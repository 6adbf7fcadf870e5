package state

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func keyGen() *rapid.Generator[string] {
	return rapid.StringMatching(`[a-c]{1,2}`)
}

func valueGen(depth int) *rapid.Generator[Value] {
	return rapid.Custom(func(t *rapid.T) Value {
		maxKind := 5
		if depth <= 0 {
			maxKind = 3
		}
		switch rapid.IntRange(0, maxKind).Draw(t, "kind") {
		case 0:
			return Null()
		case 1:
			return Bool(rapid.Bool().Draw(t, "bool"))
		case 2:
			return Int(int64(rapid.IntRange(-5, 5).Draw(t, "int")))
		case 3:
			return String(rapid.StringMatching(`[a-z]{0,3}`).Draw(t, "string"))
		case 4:
			n := rapid.IntRange(0, 3).Draw(t, "len")
			items := make([]Value, n)
			for i := range items {
				items[i] = valueGen(depth-1).Draw(t, "item")
			}
			return List(items...)
		default:
			return mapGen(depth - 1).Draw(t, "map")
		}
	})
}

func mapGen(depth int) *rapid.Generator[Value] {
	return rapid.Custom(func(t *rapid.T) Value {
		m := NewMap()
		n := rapid.IntRange(0, 4).Draw(t, "entries")
		for i := 0; i < n; i++ {
			m.m[keyGen().Draw(t, "key")] = valueGen(depth).Draw(t, "value")
		}
		return m
	})
}

func TestMerge_Law(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := mapGen(3).Draw(t, "a")
		b := mapGen(3).Draw(t, "b")
		aBefore, bBefore := a.Clone(), b.Clone()

		m := Merge(a, b)

		for k, bv := range b.m {
			av, inA := a.m[k]
			if inA && av.IsMap() && bv.IsMap() {
				if !m.m[k].Equal(Merge(av, bv)) {
					t.Fatalf("key %q: nested mappings not merged", k)
				}
				continue
			}
			if !m.m[k].Equal(bv) {
				t.Fatalf("key %q: patch value lost", k)
			}
		}
		for k, av := range a.m {
			if _, inB := b.m[k]; !inB && !m.m[k].Equal(av) {
				t.Fatalf("key %q: base value lost", k)
			}
		}
		if len(m.m) > len(a.m)+len(b.m) {
			t.Fatalf("merge introduced keys")
		}
		if !Merge(a, NewMap()).Equal(a) || !Merge(NewMap(), b).Equal(b) {
			t.Fatalf("empty mapping is not an identity")
		}
		if !a.Equal(aBefore) || !b.Equal(bBefore) {
			t.Fatalf("merge modified its arguments")
		}
	})
}

func TestPath_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		doc := mapGen(2).Draw(t, "doc")
		keys := rapid.SliceOfN(keyGen(), 1, 4).Draw(t, "keys")
		v := valueGen(2).Draw(t, "v")

		got, ok := Lookup(Assign(doc, keys, v), keys)
		if !ok || !got.Equal(v) {
			t.Fatalf("lookup after assign: got %s, want %s", got, v)
		}
	})
}

func TestStore_SetGetRoundTrip(t *testing.T) {
	s := New(t.TempDir() + "/state.json")
	require.NoError(t, s.Init(Null()))

	rapid.Check(t, func(rt *rapid.T) {
		keys := rapid.SliceOfN(keyGen(), 1, 4).Draw(rt, "keys")
		v := valueGen(2).Draw(rt, "v")
		path := strings.Join(keys, ".")

		require.NoError(rt, s.Set(path, v))
		got, ok := s.Get(path)
		if v.Truthy() {
			require.True(rt, ok)
			assert.True(rt, got.Equal(v))
		} else {
			assert.False(rt, ok)
		}
	})
}
