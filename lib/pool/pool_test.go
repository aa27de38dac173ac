package pool

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type model struct {
	class string
	id    int64
}

func newCountingPool() (*Pool[*model], *atomic.Int64) {
	var created atomic.Int64
	p := New(func(class string) (*model, error) {
		return &model{class: class, id: created.Add(1)}, nil
	})
	return p, &created
}

func TestAcquireReusesObjects(t *testing.T) {
	p, created := newCountingPool()

	first, err := p.Acquire("cnn", 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Equal(t, int64(2), created.Load())

	second, err := p.Acquire("cnn", 3)
	require.NoError(t, err)
	require.Same(t, first[0], second[0])
	require.Same(t, first[1], second[1])
	require.Equal(t, int64(3), created.Load())

	fewer, err := p.Acquire("cnn", 1)
	require.NoError(t, err)
	require.Same(t, first[0], fewer[0])
	require.Equal(t, 3, p.Len("cnn"))

	none, err := p.Acquire("cnn", 0)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestClassesAreSeparate(t *testing.T) {
	p, _ := newCountingPool()

	a, err := p.Acquire("a", 1)
	require.NoError(t, err)
	b, err := p.Acquire("b", 1)
	require.NoError(t, err)

	require.NotSame(t, a[0], b[0])
	require.Equal(t, "b", b[0].class)
	require.Equal(t, []string{"a", "b"}, p.Classes())

	p.Drop("a")
	require.Equal(t, 0, p.Len("a"))
	require.Equal(t, []string{"b"}, p.Classes())

	p.Clear()
	require.Empty(t, p.Classes())
}

func TestFactoryError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	p := New(func(string) (int, error) {
		calls++
		if calls == 2 {
			return 0, boom
		}
		return calls, nil
	})

	_, err := p.Acquire("x", 3)
	require.True(t, errors.Is(err, boom))
	// the object created before the failure is kept
	require.Equal(t, 1, p.Len("x"))

	objs, err := p.Acquire("x", 2)
	require.NoError(t, err)
	require.Equal(t, []int{1, 3}, objs)

	_, err = p.Acquire("x", -1)
	require.Error(t, err)
}

func TestConcurrentAcquire(t *testing.T) {
	p, created := newCountingPool()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			objs, err := p.Acquire("shared", 4)
			if err != nil || len(objs) != 4 {
				t.Errorf("Acquire = %v, %v", objs, err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int64(4), created.Load())
	require.Equal(t, 4, p.Len("shared"))
}
