package graph

import (
	"context"
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

// Key spaces inside the badger keyspace.
const (
	badgerNodePrefix = "n:" // n:<nodeID> -> JSON node
	badgerEdgePrefix = "e:" // e:<type>|<from>|<to> -> JSON props
	badgerOutPrefix  = "o:" // o:<fromID>|<type>|<from>|<to> -> empty (adjacency index)
)

// counterRetries bounds the compare-and-swap loop IncrementEdgeCounter runs
// when concurrent transactions conflict.
const counterRetries = 5

// BadgerStore implements Store on an embedded Badger keyspace. It is the
// durable plane for single-node deployments that want persistence without an
// external database.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) a Badger-backed store at path.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger store at %s: %w", path, err)
	}
	return &BadgerStore{db: db}, nil
}

// NewBadgerStore wraps an already-open Badger database.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func (s *BadgerStore) UpsertNode(ctx context.Context, n Node) error {
	body, err := json.Marshal(badgerNode{ID: n.ID, Label: string(n.Label), Props: n.Props})
	if err != nil {
		return fmt.Errorf("marshaling node %s: %w", n.ID, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(badgerNodePrefix+n.ID), body)
	})
	if err != nil {
		return fmt.Errorf("upserting node %s: %w", n.ID, err)
	}
	return nil
}

func (s *BadgerStore) GetNode(ctx context.Context, id string) (*Node, error) {
	var bn badgerNode
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerNodePrefix + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &bn)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting node %s: %w", id, err)
	}
	return &Node{ID: bn.ID, Label: NodeLabel(bn.Label), Props: bn.Props}, nil
}

func (s *BadgerStore) UpsertEdge(ctx context.Context, e Edge) error {
	props, err := json.Marshal(e.Props)
	if err != nil {
		return fmt.Errorf("marshaling edge %s props: %w", e.Key, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(edgeDataKey(e.Key), props); err != nil {
			return err
		}
		return txn.Set(edgeIndexKey(e.Key), nil)
	})
	if err != nil {
		return fmt.Errorf("upserting edge %s: %w", e.Key, err)
	}
	return nil
}

func (s *BadgerStore) GetEdge(ctx context.Context, key EdgeKey) (*Edge, error) {
	e := Edge{Key: key}
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(edgeDataKey(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e.Props)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting edge %s: %w", key, err)
	}
	return &e, nil
}

func (s *BadgerStore) UpdateEdgeProps(ctx context.Context, key EdgeKey, props map[string]any) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		current, err := readEdgeProps(txn, key)
		if err != nil {
			return err
		}
		for k, v := range props {
			current[k] = v
		}
		merged, err := json.Marshal(current)
		if err != nil {
			return err
		}
		return txn.Set(edgeDataKey(key), merged)
	})
	if err == badger.ErrKeyNotFound {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("updating edge %s: %w", key, err)
	}
	return nil
}

func (s *BadgerStore) IncrementEdgeCounter(ctx context.Context, key EdgeKey, field string, delta int64) (int64, error) {
	// Badger has no native field increment; run a read-modify-write
	// transaction and retry a bounded number of times on commit conflicts.
	var next int64
	for attempt := 0; attempt < counterRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		err := s.db.Update(func(txn *badger.Txn) error {
			props, err := readEdgeProps(txn, key)
			if err != nil {
				return err
			}
			next = Int64Prop(props, field) + delta
			props[field] = next
			body, err := json.Marshal(props)
			if err != nil {
				return err
			}
			return txn.Set(edgeDataKey(key), body)
		})
		if err == badger.ErrKeyNotFound {
			return 0, ErrNotFound
		}
		if err == badger.ErrConflict {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("incrementing %s on edge %s: %w", field, key, err)
		}
		return next, nil
	}
	return 0, fmt.Errorf("incrementing %s on edge %s: %w", field, key, badger.ErrConflict)
}

func (s *BadgerStore) DeleteEdge(ctx context.Context, key EdgeKey) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(edgeDataKey(key)); err != nil {
			return err
		}
		return txn.Delete(edgeIndexKey(key))
	})
	if err != nil {
		return fmt.Errorf("deleting edge %s: %w", key, err)
	}
	return nil
}

func (s *BadgerStore) QueryConnected(ctx context.Context, fromID string, maxFanout int, fn func(Node, Edge) error) error {
	// Collect edge keys under the adjacency prefix first; the index keys are
	// stored in lexicographic edge-key order already.
	var keys []EdgeKey
	prefix := []byte(badgerOutPrefix + fromID + "|")
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			raw := string(it.Item().Key()[len(prefix):])
			if key, ok := parseEdgeKey(raw); ok {
				keys = append(keys, key)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("listing edges of %s: %w", fromID, err)
	}

	streamed := 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if maxFanout > 0 && streamed >= maxFanout {
			return ErrFanoutTruncated
		}
		edge, err := s.GetEdge(ctx, key)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return err
		}
		node, err := s.GetNode(ctx, key.ToID)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return err
		}
		if err := fn(*node, *edge); err != nil {
			if err == ErrStopIteration {
				return nil
			}
			return err
		}
		streamed++
	}
	return nil
}

func (s *BadgerStore) ScanEdges(ctx context.Context, t EdgeType, fn func(Edge) error) error {
	prefix := []byte(badgerEdgePrefix + string(t) + "|")
	type rawEdge struct {
		key  EdgeKey
		body []byte
	}
	var edges []rawEdge
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			raw := string(item.Key()[len(badgerEdgePrefix):])
			key, ok := parseEdgeKey(raw)
			if !ok {
				continue
			}
			body, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			edges = append(edges, rawEdge{key: key, body: body})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scanning %s edges: %w", t, err)
	}

	for _, re := range edges {
		if err := ctx.Err(); err != nil {
			return err
		}
		e := Edge{Key: re.key}
		if err := json.Unmarshal(re.body, &e.Props); err != nil {
			return fmt.Errorf("unmarshaling edge %s props: %w", re.key, err)
		}
		if err := fn(e); err != nil {
			if err == ErrStopIteration {
				return nil
			}
			return err
		}
	}
	return nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

type badgerNode struct {
	ID    string         `json:"id"`
	Label string         `json:"label"`
	Props map[string]any `json:"props"`
}

func edgeDataKey(key EdgeKey) []byte {
	return []byte(badgerEdgePrefix + key.String())
}

func edgeIndexKey(key EdgeKey) []byte {
	return []byte(badgerOutPrefix + key.FromID + "|" + key.String())
}

func readEdgeProps(txn *badger.Txn, key EdgeKey) (map[string]any, error) {
	item, err := txn.Get(edgeDataKey(key))
	if err != nil {
		return nil, err
	}
	var props map[string]any
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &props)
	}); err != nil {
		return nil, err
	}
	if props == nil {
		props = make(map[string]any)
	}
	return props, nil
}

var _ Store = (*BadgerStore)(nil)
