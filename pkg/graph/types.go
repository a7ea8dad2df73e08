// Package graph defines the property-graph data model shared by both cache
// planes and the capability interface every backing store must implement.
// The promotion/scoring/graduation protocol is written entirely against the
// Store interface, so compliant backends are interchangeable.
package graph

import (
	"errors"
	"strings"
	"time"
)

// NodeLabel identifies the kind of a graph node.
type NodeLabel string

const (
	LabelEntity    NodeLabel = "Entity"
	LabelDocument  NodeLabel = "Document"
	LabelParagraph NodeLabel = "Paragraph"
)

// EdgeType identifies the kind of a graph relationship.
type EdgeType string

const (
	// EdgeMentions links an Entity to a Paragraph or Document it appears in.
	// MENTIONS edges are the unit of cache management: they carry expiration,
	// confidence, and promotion state.
	EdgeMentions EdgeType = "MENTIONS"

	// EdgePartOf links a Paragraph to its owning Document. Structural and
	// non-expiring.
	EdgePartOf EdgeType = "PART_OF"
)

// Common store errors.
var (
	ErrNotFound = errors.New("graph: not found")
	ErrClosed   = errors.New("graph: store closed")

	// ErrStopIteration is a sentinel a QueryConnected/ScanEdges callback can
	// return to end iteration early without surfacing an error.
	ErrStopIteration = errors.New("graph: stop iteration")

	// ErrFanoutTruncated reports that QueryConnected hit its maxFanout bound
	// and the result was deterministically truncated. Non-fatal: everything
	// streamed before the bound is valid.
	ErrFanoutTruncated = errors.New("graph: fanout truncated")
)

// Node is a labeled property-graph vertex. Nodes are created once by
// ingestion and subsequently only read or copied; no protocol step deletes
// them.
type Node struct {
	ID    string
	Label NodeLabel
	Props map[string]any
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	c := Node{ID: n.ID, Label: n.Label, Props: make(map[string]any, len(n.Props))}
	for k, v := range n.Props {
		c.Props[k] = v
	}
	return c
}

// EdgeKey is the idempotent merge key for edges: exactly one edge exists per
// (type, from, to) triple per plane.
type EdgeKey struct {
	Type   EdgeType
	FromID string
	ToID   string
}

// String renders the key in a stable, sortable form.
func (k EdgeKey) String() string {
	return string(k.Type) + "|" + k.FromID + "|" + k.ToID
}

// Edge is a directed, typed relationship with a property bag.
type Edge struct {
	Key   EdgeKey
	Props map[string]any
}

// Clone returns a deep copy of the edge.
func (e Edge) Clone() Edge {
	c := Edge{Key: e.Key, Props: make(map[string]any, len(e.Props))}
	for k, v := range e.Props {
		c.Props[k] = v
	}
	return c
}

// EntityKey builds the normalized stable identifier for an entity node:
// lower-cased name plus upper-cased kind label. One entity node exists per
// key per plane. Node IDs never contain "|", which edge keys use as their
// field separator.
func EntityKey(name, label string) string {
	return strings.ToLower(strings.TrimSpace(name)) + ":" + strings.ToUpper(strings.TrimSpace(label))
}

// NowMillis converts a time to the epoch-millisecond representation used for
// expiresAt and ingestedAt properties.
func NowMillis(t time.Time) int64 {
	return t.UnixMilli()
}
