package graph

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store backed by mutex-guarded maps. It is the
// default volatile plane for single-node deployments and the fixture every
// protocol test runs against.
type MemoryStore struct {
	mu     sync.RWMutex
	nodes  map[string]Node
	edges  map[EdgeKey]Edge
	out    map[string][]EdgeKey // fromID -> sorted outgoing edge keys
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: make(map[string]Node),
		edges: make(map[EdgeKey]Edge),
		out:   make(map[string][]EdgeKey),
	}
}

func (s *MemoryStore) UpsertNode(ctx context.Context, n Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.nodes[n.ID] = n.Clone()
	return nil
}

func (s *MemoryStore) GetNode(ctx context.Context, id string) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	n, ok := s.nodes[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := n.Clone()
	return &c, nil
}

func (s *MemoryStore) UpsertEdge(ctx context.Context, e Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, exists := s.edges[e.Key]; !exists {
		s.out[e.Key.FromID] = insertSortedKey(s.out[e.Key.FromID], e.Key)
	}
	s.edges[e.Key] = e.Clone()
	return nil
}

func (s *MemoryStore) GetEdge(ctx context.Context, key EdgeKey) (*Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	e, ok := s.edges[key]
	if !ok {
		return nil, ErrNotFound
	}
	c := e.Clone()
	return &c, nil
}

func (s *MemoryStore) UpdateEdgeProps(ctx context.Context, key EdgeKey, props map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	e, ok := s.edges[key]
	if !ok {
		return ErrNotFound
	}
	merged := e.Clone()
	for k, v := range props {
		merged.Props[k] = v
	}
	s.edges[key] = merged
	return nil
}

func (s *MemoryStore) IncrementEdgeCounter(ctx context.Context, key EdgeKey, field string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	e, ok := s.edges[key]
	if !ok {
		return 0, ErrNotFound
	}
	merged := e.Clone()
	next := Int64Prop(merged.Props, field) + delta
	merged.Props[field] = next
	s.edges[key] = merged
	return next, nil
}

func (s *MemoryStore) DeleteEdge(ctx context.Context, key EdgeKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.edges[key]; !ok {
		return nil
	}
	delete(s.edges, key)
	s.out[key.FromID] = removeKey(s.out[key.FromID], key)
	return nil
}

func (s *MemoryStore) QueryConnected(ctx context.Context, fromID string, maxFanout int, fn func(Node, Edge) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	keys := make([]EdgeKey, len(s.out[fromID]))
	copy(keys, s.out[fromID])
	s.mu.RUnlock()

	streamed := 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if maxFanout > 0 && streamed >= maxFanout {
			return ErrFanoutTruncated
		}
		s.mu.RLock()
		e, eok := s.edges[key]
		n, nok := s.nodes[key.ToID]
		s.mu.RUnlock()
		if !eok || !nok {
			continue
		}
		if err := fn(n.Clone(), e.Clone()); err != nil {
			if err == ErrStopIteration {
				return nil
			}
			return err
		}
		streamed++
	}
	return nil
}

func (s *MemoryStore) ScanEdges(ctx context.Context, t EdgeType, fn func(Edge) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	keys := make([]EdgeKey, 0, len(s.edges))
	for key := range s.edges {
		if key.Type == t {
			keys = append(keys, key)
		}
	}
	s.mu.RUnlock()
	SortEdgeKeys(keys)

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.mu.RLock()
		e, ok := s.edges[key]
		s.mu.RUnlock()
		if !ok {
			continue // deleted mid-scan
		}
		if err := fn(e.Clone()); err != nil {
			if err == ErrStopIteration {
				return nil
			}
			return err
		}
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// insertSortedKey inserts key into a sorted slice, keeping it sorted and
// duplicate-free.
func insertSortedKey(keys []EdgeKey, key EdgeKey) []EdgeKey {
	ks := key.String()
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if keys[mid].String() < ks {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(keys) && keys[lo] == key {
		return keys
	}
	keys = append(keys, EdgeKey{})
	copy(keys[lo+1:], keys[lo:])
	keys[lo] = key
	return keys
}

func removeKey(keys []EdgeKey, key EdgeKey) []EdgeKey {
	for i, k := range keys {
		if k == key {
			return append(keys[:i], keys[i+1:]...)
		}
	}
	return keys
}

var _ Store = (*MemoryStore)(nil)
