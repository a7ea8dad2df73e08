// Package ingest writes authoritative content into the durable plane. It is
// the collaborator that originates nodes: documents arrive pre-split into
// paragraphs with their entity references already extracted (parsing and
// recognition stay external), and ingest lays down the graph shape the
// cache protocol operates on.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/engram-io/engram/pkg/contentid"
	"github.com/engram-io/engram/pkg/graph"
	"github.com/engram-io/engram/pkg/logging"
)

// SchemaVersion is stamped on every edge this package writes.
const SchemaVersion = 1

// EntityRef names one entity mentioned in a paragraph.
type EntityRef struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

// Paragraph is one pre-split unit of a document with its extracted entity
// references.
type Paragraph struct {
	Text     string      `json:"text"`
	Entities []EntityRef `json:"entities"`
}

// Document is the pre-processed ingest payload.
type Document struct {
	Title      string      `json:"title"`
	Category   string      `json:"category,omitempty"`
	Paragraphs []Paragraph `json:"paragraphs"`
}

// Result summarizes one ingested document.
type Result struct {
	DocumentID string
	Paragraphs int
	Entities   int
	Edges      int
}

// Ingestor writes documents into the durable plane.
type Ingestor struct {
	durable graph.Store
	log     logging.Logger
	now     func() time.Time
}

// NewIngestor creates an ingestor over the durable plane.
func NewIngestor(durable graph.Store, log logging.Logger) *Ingestor {
	return &Ingestor{durable: durable, log: log, now: time.Now}
}

// IngestDocument merges the document, its paragraphs, its entities, and the
// connecting edges into the durable plane. All IDs are content-derived and
// all writes are idempotent merges, so re-ingesting the same document is a
// no-op rather than a duplication.
func (i *Ingestor) IngestDocument(ctx context.Context, doc Document) (*Result, error) {
	if strings.TrimSpace(doc.Title) == "" {
		return nil, fmt.Errorf("ingesting document: title is required")
	}
	if len(doc.Paragraphs) == 0 {
		return nil, fmt.Errorf("ingesting document %q: no paragraphs", doc.Title)
	}

	body := make([]string, len(doc.Paragraphs))
	for idx, p := range doc.Paragraphs {
		body[idx] = p.Text
	}
	docID := contentid.ForDocument(doc.Title, strings.Join(body, "\n"))

	docNode := graph.Node{
		ID:    docID,
		Label: graph.LabelDocument,
		Props: map[string]any{
			graph.PropTitle: doc.Title,
		},
	}
	if doc.Category != "" {
		docNode.Props[graph.PropCategory] = doc.Category
	}
	if err := i.durable.UpsertNode(ctx, docNode); err != nil {
		return nil, fmt.Errorf("ingesting document %q: %w", doc.Title, err)
	}

	result := &Result{DocumentID: docID, Paragraphs: len(doc.Paragraphs)}
	ingestedAt := graph.NowMillis(i.now())
	seenEntities := make(map[string]bool)

	for idx, para := range doc.Paragraphs {
		paraID := contentid.ForParagraph(docID, idx)
		paraNode := graph.Node{
			ID:    paraID,
			Label: graph.LabelParagraph,
			Props: map[string]any{
				graph.PropText:  para.Text,
				graph.PropIndex: int64(idx),
				graph.PropDocID: docID,
			},
		}
		if err := i.durable.UpsertNode(ctx, paraNode); err != nil {
			return result, fmt.Errorf("ingesting paragraph %d of %q: %w", idx, doc.Title, err)
		}

		partOf := graph.Edge{
			Key:   graph.EdgeKey{Type: graph.EdgePartOf, FromID: paraID, ToID: docID},
			Props: map[string]any{graph.PropIndex: int64(idx)},
		}
		if err := i.durable.UpsertEdge(ctx, partOf); err != nil {
			return result, fmt.Errorf("linking paragraph %d of %q: %w", idx, doc.Title, err)
		}

		for _, ref := range para.Entities {
			entityKey, err := i.mergeEntity(ctx, ref, seenEntities)
			if err != nil {
				return result, err
			}

			// The entity mentions both the paragraph and its owning
			// document, so either endpoint answers a lookup.
			for _, toID := range []string{paraID, docID} {
				edge := durableMention(entityKey, toID, docID, ingestedAt)
				if err := i.durable.UpsertEdge(ctx, edge); err != nil {
					return result, fmt.Errorf("linking entity %s: %w", entityKey, err)
				}
				result.Edges++
			}
		}
	}

	result.Entities = len(seenEntities)
	i.log.Info("document ingested",
		logging.F("document_id", docID),
		logging.F("paragraphs", result.Paragraphs),
		logging.F("entities", result.Entities),
		logging.F("edges", result.Edges))
	return result, nil
}

// mergeEntity upserts the deduplicated entity node and returns its key.
func (i *Ingestor) mergeEntity(ctx context.Context, ref EntityRef, seen map[string]bool) (string, error) {
	key := graph.EntityKey(ref.Name, ref.Label)
	if seen[key] {
		return key, nil
	}

	node := graph.Node{
		ID:    key,
		Label: graph.LabelEntity,
		Props: map[string]any{
			graph.PropName:  strings.TrimSpace(ref.Name),
			graph.PropLabel: strings.ToUpper(strings.TrimSpace(ref.Label)),
		},
	}
	if err := i.durable.UpsertNode(ctx, node); err != nil {
		return key, fmt.Errorf("ingesting entity %s: %w", key, err)
	}
	seen[key] = true
	return key, nil
}

// durableMention builds a permanent MENTIONS edge: no expiration, promoted
// and validated from birth, provenance stamped.
func durableMention(entityKey, toID, docID string, ingestedAt int64) graph.Edge {
	return graph.Edge{
		Key: graph.EdgeKey{Type: graph.EdgeMentions, FromID: entityKey, ToID: toID},
		Props: map[string]any{
			graph.PropSourceDocID:   docID,
			graph.PropIngestedAt:    ingestedAt,
			graph.PropSchemaVersion: int64(SchemaVersion),
			graph.PropExpiresAt:     int64(0),
			graph.PropConfidence:    int64(0),
			graph.PropValidated:     true,
			graph.PropPromoted:      true,
		},
	}
}
