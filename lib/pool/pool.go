package pool

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cyyever/largedict/lib/common"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger(common.LoggerPool)

// Factory creates a new object of the given class
type Factory[T any] func(class string) (T, error)

// classPool holds the objects created for one class
type classPool[T any] struct {
	mu      sync.Mutex
	objects []T
}

// Pool keeps expensive objects (e.g. model snapshots) per class so they can
// be reused instead of rebuilt. A Pool is owned by its caller, nothing is
// shared between pools.
//
// Thread-safety: All methods are safe for concurrent use.
type Pool[T any] struct {
	factory Factory[T]
	classes *xsync.MapOf[string, *classPool[T]]
}

// New creates an empty pool that builds missing objects with factory
func New[T any](factory Factory[T]) *Pool[T] {
	return &Pool[T]{
		factory: factory,
		classes: xsync.NewMapOf[string, *classPool[T]](),
	}
}

// Acquire returns n objects of class. Objects created by earlier calls are
// reused, missing ones are created with the factory and kept for later calls.
func (p *Pool[T]) Acquire(class string, n int) ([]T, error) {
	if n < 0 {
		return nil, fmt.Errorf("pool: negative count %d", n)
	}
	if p.factory == nil {
		return nil, errors.New("pool: no factory")
	}

	cp, _ := p.classes.LoadOrCompute(class, func() *classPool[T] {
		return &classPool[T]{}
	})

	cp.mu.Lock()
	defer cp.mu.Unlock()

	created := 0
	for len(cp.objects) < n {
		obj, err := p.factory(class)
		if err != nil {
			return nil, fmt.Errorf("pool: creating %s #%d: %w", class, len(cp.objects), err)
		}
		cp.objects = append(cp.objects, obj)
		created++
	}
	if created > 0 {
		log.Debugf("created %d objects of class %s (now %d)", created, class, len(cp.objects))
	}

	out := make([]T, n)
	copy(out, cp.objects[:n])
	return out, nil
}

// Len returns the number of objects kept for class
func (p *Pool[T]) Len(class string) int {
	cp, ok := p.classes.Load(class)
	if !ok {
		return 0
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return len(cp.objects)
}

// Classes returns the sorted names of all classes with objects
func (p *Pool[T]) Classes() []string {
	var classes []string
	p.classes.Range(func(class string, _ *classPool[T]) bool {
		classes = append(classes, class)
		return true
	})
	sort.Strings(classes)
	return classes
}

// Drop forgets the objects of one class
func (p *Pool[T]) Drop(class string) {
	p.classes.Delete(class)
}

// Clear forgets all objects
func (p *Pool[T]) Clear() {
	p.classes.Clear()
}
