package graph

import (
	"context"
	"sort"
)

// Store is the capability set required of both the durable and the volatile
// plane. All write operations are idempotent merges keyed by node ID or
// EdgeKey, so any protocol step is safe to retry wholesale after a partial
// failure.
type Store interface {
	// UpsertNode creates the node or fully replaces its properties.
	UpsertNode(ctx context.Context, n Node) error

	// GetNode returns the node or ErrNotFound.
	GetNode(ctx context.Context, id string) (*Node, error)

	// UpsertEdge creates the edge or fully replaces its properties,
	// merge-keyed by (type, from, to).
	UpsertEdge(ctx context.Context, e Edge) error

	// GetEdge returns the edge or ErrNotFound.
	GetEdge(ctx context.Context, key EdgeKey) (*Edge, error)

	// UpdateEdgeProps merges the given properties into an existing edge,
	// leaving other properties untouched. Returns ErrNotFound if the edge
	// does not exist.
	UpdateEdgeProps(ctx context.Context, key EdgeKey, props map[string]any) error

	// IncrementEdgeCounter atomically adds delta to a numeric edge property
	// and returns the new value. Concurrent increments on the same edge must
	// all be reflected; implementations without a native atomic primitive use
	// a bounded compare-and-swap retry loop.
	IncrementEdgeCounter(ctx context.Context, key EdgeKey, field string, delta int64) (int64, error)

	// DeleteEdge removes the edge. Deleting a missing edge is a no-op.
	DeleteEdge(ctx context.Context, key EdgeKey) error

	// QueryConnected streams (node, edge) pairs for every outgoing edge of
	// fromID in stable lexicographic edge-key order. After maxFanout pairs it
	// stops and returns ErrFanoutTruncated (maxFanout <= 0 means unbounded).
	// The callback may return ErrStopIteration to end early without error.
	QueryConnected(ctx context.Context, fromID string, maxFanout int, fn func(Node, Edge) error) error

	// ScanEdges streams every edge of the given type in stable key order.
	ScanEdges(ctx context.Context, t EdgeType, fn func(Edge) error) error

	// Close releases backing resources.
	Close() error
}

// Connection pairs a MENTIONS edge with its endpoint node.
type Connection struct {
	Node Node
	Edge Edge
}

// Subgraph is the bounded neighbourhood of one entity: the entity node, its
// MENTIONS connections, and the owning documents of any paragraph endpoints.
type Subgraph struct {
	Entity    Node
	Mentions  []Connection
	PartOf    map[string]Edge // paragraph ID -> PART_OF edge
	Documents map[string]Node // document ID -> Document node
	Truncated bool
}

// CollectConnected gathers the promotion/graduation subgraph for an entity
// key: the entity node, its MENTIONS pairs bounded by maxFanout, and for
// every paragraph endpoint the owning document plus its PART_OF edge.
// Returns ErrNotFound if the entity node does not exist in the store.
func CollectConnected(ctx context.Context, s Store, entityKey string, maxFanout int) (*Subgraph, error) {
	entity, err := s.GetNode(ctx, entityKey)
	if err != nil {
		return nil, err
	}

	sub := &Subgraph{
		Entity:    *entity,
		PartOf:    make(map[string]Edge),
		Documents: make(map[string]Node),
	}

	err = s.QueryConnected(ctx, entityKey, maxFanout, func(n Node, e Edge) error {
		if e.Key.Type != EdgeMentions {
			return nil
		}
		sub.Mentions = append(sub.Mentions, Connection{Node: n, Edge: e})
		return nil
	})
	if err == ErrFanoutTruncated {
		sub.Truncated = true
	} else if err != nil {
		return nil, err
	}

	for _, conn := range sub.Mentions {
		if conn.Node.Label != LabelParagraph {
			continue
		}
		docID := StringProp(conn.Node.Props, PropDocID)
		if docID == "" {
			continue
		}
		if _, ok := sub.Documents[docID]; ok {
			if _, ok := sub.PartOf[conn.Node.ID]; ok {
				continue
			}
		}
		doc, err := s.GetNode(ctx, docID)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		sub.Documents[docID] = *doc

		partKey := EdgeKey{Type: EdgePartOf, FromID: conn.Node.ID, ToID: docID}
		part, err := s.GetEdge(ctx, partKey)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		sub.PartOf[conn.Node.ID] = *part
	}

	return sub, nil
}

// SortEdgeKeys sorts edge keys lexicographically by their string form. Stores
// use this for the deterministic ordering QueryConnected and ScanEdges
// promise.
func SortEdgeKeys(keys []EdgeKey) {
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
}
