package internal

// node is an element of the recency list
type node[K comparable] struct {
	next *node[K]
	prev *node[K]
	key  K
}

// recency is a doubly linked list of keys, oldest at the head and most
// recently touched at the tail. Together with an index from key to node it
// gives O(1) touch and removal.
//
// Thread-safety: not thread-safe, guarded by the table mutex
type recency[K comparable] struct {
	head  *node[K]
	tail  *node[K]
	index map[K]*node[K]
}

func newRecency[K comparable]() *recency[K] {
	return &recency[K]{index: make(map[K]*node[K])}
}

func (r *recency[K]) len() int {
	return len(r.index)
}

func (r *recency[K]) contains(key K) bool {
	_, ok := r.index[key]
	return ok
}

// touch moves key to the most recent end, inserting it if needed
func (r *recency[K]) touch(key K) {
	if n, ok := r.index[key]; ok {
		if r.tail == n {
			return
		}
		r.detach(n)
		r.pushBack(n)
		return
	}
	n := &node[K]{key: key}
	r.index[key] = n
	r.pushBack(n)
}

// remove unlinks key, returns false if it was not in the list
func (r *recency[K]) remove(key K) bool {
	n, ok := r.index[key]
	if !ok {
		return false
	}
	r.detach(n)
	delete(r.index, key)
	return true
}

// oldest returns up to n keys starting at the least recent one
func (r *recency[K]) oldest(n int) []K {
	if n <= 0 {
		return nil
	}
	if n > len(r.index) {
		n = len(r.index)
	}
	keys := make([]K, 0, n)
	for cur := r.head; cur != nil && len(keys) < n; cur = cur.next {
		keys = append(keys, cur.key)
	}
	return keys
}

func (r *recency[K]) clear() {
	r.head, r.tail = nil, nil
	r.index = make(map[K]*node[K])
}

func (r *recency[K]) pushBack(n *node[K]) {
	n.prev = r.tail
	n.next = nil
	if r.tail != nil {
		r.tail.next = n
	} else {
		r.head = n
	}
	r.tail = n
}

func (r *recency[K]) detach(n *node[K]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		r.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		r.tail = n.prev
	}
	n.next = nil
	n.prev = nil
}
