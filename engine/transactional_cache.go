package engine

// transactionalCaches buffers a session's writes to shared namespace caches.
// Nothing reaches a Cache until commit; rollback drops the buffer.
type transactionalCaches struct {
	pending map[Cache]*pendingWrites
	order   []Cache
}

type pendingWrites struct {
	clear   bool
	entries map[string]any
	keys    []string
}

func newTransactionalCaches() *transactionalCaches {
	return &transactionalCaches{pending: make(map[Cache]*pendingWrites)}
}

func (t *transactionalCaches) writes(c Cache) *pendingWrites {
	w, ok := t.pending[c]
	if !ok {
		w = &pendingWrites{entries: make(map[string]any)}
		t.pending[c] = w
		t.order = append(t.order, c)
	}
	return w
}

// get sees the session's own buffered entries first. A pending clear hides
// the shared entries.
func (t *transactionalCaches) get(c Cache, key string) (any, bool) {
	if w, ok := t.pending[c]; ok {
		if v, ok := w.entries[key]; ok {
			return v, true
		}
		if w.clear {
			return nil, false
		}
	}
	return c.Get(key)
}

func (t *transactionalCaches) put(c Cache, key string, value any) {
	w := t.writes(c)
	if _, ok := w.entries[key]; !ok {
		w.keys = append(w.keys, key)
	}
	w.entries[key] = value
}

func (t *transactionalCaches) clear(c Cache) {
	w := t.writes(c)
	w.clear = true
	w.entries = make(map[string]any)
	w.keys = nil
}

// commit applies buffered clears, then buffered entries, in first-touch order.
func (t *transactionalCaches) commit() {
	for _, c := range t.order {
		w := t.pending[c]
		if w.clear {
			c.Clear()
		}
		for _, key := range w.keys {
			c.Put(key, w.entries[key])
		}
	}
	t.reset()
}

func (t *transactionalCaches) rollback() {
	t.reset()
}

func (t *transactionalCaches) reset() {
	t.pending = make(map[Cache]*pendingWrites)
	t.order = nil
}
