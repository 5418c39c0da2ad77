package report

import (
	"container/list"
	"sync"
)

// LRUStore keeps recently used runs in memory in front of a backing Store,
// and separately remembers the most recently saved runs in the order they
// finished. Reads refresh the cache but never reorder that history.
type LRUStore struct {
	mu   sync.Mutex
	cap  int
	back Store

	used  *list.List               // of *Run, most recently used at the front
	items map[string]*list.Element // run ID -> element of used
	saved []*Run                   // last cap saved runs, oldest first
}

// NewLRUStore creates a store caching up to cap runs that delegates to back
// on misses. Capacity must be >= 1.
func NewLRUStore(cap int, back Store) *LRUStore {
	if cap < 1 {
		cap = 1
	}
	return &LRUStore{
		cap:   cap,
		back:  back,
		used:  list.New(),
		items: make(map[string]*list.Element, cap),
	}
}

// Save records run as the most recently finished one, caches it and writes
// it to the backing store.
func (s *LRUStore) Save(run *Run) error {
	s.mu.Lock()
	s.cache(run)
	s.saved = append(s.saved, run)
	if over := len(s.saved) - s.cap; over > 0 {
		s.saved = append(s.saved[:0], s.saved[over:]...)
	}
	s.mu.Unlock()

	return s.back.Save(run)
}

// Load returns a cached run, falling back to the backing store on a miss.
func (s *LRUStore) Load(runID string) (*Run, error) {
	s.mu.Lock()
	if e, ok := s.items[runID]; ok {
		s.used.MoveToFront(e)
		run := e.Value.(*Run)
		s.mu.Unlock()
		return run, nil
	}
	s.mu.Unlock()

	run, err := s.back.Load(runID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache(run)
	s.mu.Unlock()
	return run, nil
}

// Recent returns up to n of the most recently saved runs, newest first.
func (s *LRUStore) Recent(n int) []*Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Run, 0, min(n, len(s.saved)))
	for i := len(s.saved) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.saved[i])
	}
	return out
}

// cache inserts or refreshes run and evicts the least recently used entry
// when over capacity. Callers hold s.mu.
func (s *LRUStore) cache(run *Run) {
	if e, ok := s.items[run.ID]; ok {
		e.Value = run
		s.used.MoveToFront(e)
		return
	}
	s.items[run.ID] = s.used.PushFront(run)
	if s.used.Len() > s.cap {
		oldest := s.used.Back()
		s.used.Remove(oldest)
		delete(s.items, oldest.Value.(*Run).ID)
	}
}
