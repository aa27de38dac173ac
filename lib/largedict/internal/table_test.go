package internal

import (
	"errors"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestStateString(t *testing.T) {
	require.Equal(t, "IN_MEMORY", InMemory.String())
	require.Equal(t, "PRE_DELETE", PreDelete.String())
	require.Equal(t, "UNKNOWN", State(200).String())
	require.Len(t, States(), 7)
}

func TestRecencyOrder(t *testing.T) {
	r := newRecency[int]()
	for i := 0; i < 5; i++ {
		r.touch(i)
	}
	r.touch(0) // 1 2 3 4 0
	r.touch(0) // already most recent
	require.True(t, r.remove(3))
	require.False(t, r.remove(3))

	if diff := cmp.Diff([]int{1, 2, 4, 0}, r.oldest(10)); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, []int{1, 2}, r.oldest(2))
	require.Nil(t, r.oldest(0))

	r.remove(1)
	r.remove(0)
	require.Equal(t, []int{2, 4}, r.oldest(10))
	r.clear()
	require.Equal(t, 0, r.len())
	require.Empty(t, r.oldest(1))
}

func TestTableMarkAndCounts(t *testing.T) {
	tbl := NewTable[string, int]()

	tbl.Mark("a", InMemory)
	tbl.Mark("b", InMemory)
	tbl.Mark("c", InDisk)
	tbl.Mark("a", PreSaving)

	require.Equal(t, 3, tbl.Len())
	require.Equal(t, 1, tbl.Count(InMemory))
	require.Equal(t, 1, tbl.Count(PreSaving))
	require.Equal(t, 1, tbl.Count(InDisk))

	s, ok := tbl.State("a")
	require.True(t, ok)
	require.Equal(t, PreSaving, s)

	_, ok = tbl.State("missing")
	require.False(t, ok)

	tbl.Untrack("a")
	require.Equal(t, 0, tbl.Count(PreSaving))
	require.Equal(t, 2, tbl.Len())

	counts := tbl.Counts()
	require.Equal(t, 1, counts[InMemory])
	require.Equal(t, 1, counts[InDisk])
}

func TestTableTransition(t *testing.T) {
	tbl := NewTable[int, string]()
	tbl.Mark(1, PreSaving)

	require.True(t, tbl.Transition(1, PreSaving, Saving))
	require.False(t, tbl.Transition(1, PreSaving, Saving))
	require.False(t, tbl.Transition(2, InMemory, InDisk))

	s, _ := tbl.State(1)
	require.Equal(t, Saving, s)
}

func TestTableOldestExcess(t *testing.T) {
	tbl := NewTable[int, int]()
	for i := 0; i < 10; i++ {
		tbl.Do(func(v *View[int, int]) {
			v.SetValue(i, i)
			v.Mark(i, InMemory)
			v.Touch(i)
		})
	}
	tbl.Touch(0)

	require.Equal(t, []int{1, 2, 3}, tbl.OldestExcess(7))
	require.Empty(t, tbl.OldestExcess(10))
	require.Empty(t, tbl.OldestExcess(100))
	require.Len(t, tbl.OldestExcess(0), 10)

	tbl.Do(func(v *View[int, int]) {
		v.Unlink(1)
		require.False(t, v.Linked(1))
		require.Equal(t, []int{2, 3, 4, 5, 6, 7, 8, 9, 0}, v.ResidentOrder())
	})
}

func TestTableValuesAndKeys(t *testing.T) {
	tbl := NewTable[string, []byte]()
	tbl.SetValue("x", []byte("1"))
	tbl.Mark("x", InMemory)
	tbl.Mark("y", PreDelete)

	val, ok := tbl.Value("x")
	require.True(t, ok)
	require.Equal(t, []byte("1"), val)

	tbl.DropValue("x")
	_, ok = tbl.Value("x")
	require.False(t, ok)

	keys := tbl.Keys(func(_ string, s State) bool { return s != PreDelete })
	require.Equal(t, []string{"x"}, keys)

	all := tbl.Keys(nil)
	sort.Strings(all)
	require.Equal(t, []string{"x", "y"}, all)
}

func TestTablePendingLoads(t *testing.T) {
	tbl := NewTable[int, int]()

	var first, second *Load
	var started1, started2 bool
	tbl.Do(func(v *View[int, int]) {
		first, started1 = v.StartLoad(7)
		second, started2 = v.StartLoad(7)
	})
	require.True(t, started1)
	require.False(t, started2)
	require.Same(t, first, second)

	loadErr := errors.New("io")
	tbl.Do(func(v *View[int, int]) {
		_, ok := v.PendingLoad(7)
		require.True(t, ok)
		v.FinishLoad(7, loadErr)
		v.FinishLoad(7, nil) // no-op
	})

	<-first.Done()
	require.ErrorIs(t, first.Err(), loadErr)
}

func TestTableClearReleasesLoads(t *testing.T) {
	tbl := NewTable[int, int]()
	tbl.Mark(1, PreLoad)

	var load *Load
	tbl.Do(func(v *View[int, int]) { load, _ = v.StartLoad(1) })

	closedErr := errors.New("closed")
	tbl.Clear(closedErr)

	<-load.Done()
	require.ErrorIs(t, load.Err(), closedErr)
	require.Equal(t, 0, tbl.Len())
}
