package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engram-io/engram/pkg/graph"
	"github.com/engram-io/engram/pkg/logging"
)

func sampleDocument() Document {
	return Document{
		Title:    "Radioactivity",
		Category: "science",
		Paragraphs: []Paragraph{
			{
				Text: "Marie Curie pioneered research on radioactivity.",
				Entities: []EntityRef{
					{Name: "Marie Curie", Label: "person"},
					{Name: "radioactivity", Label: "topic"},
				},
			},
			{
				Text: "She worked with Pierre Curie in Paris.",
				Entities: []EntityRef{
					{Name: "Marie Curie", Label: "person"},
					{Name: "Pierre Curie", Label: "person"},
				},
			},
		},
	}
}

func TestIngestDocumentShape(t *testing.T) {
	store := graph.NewMemoryStore()
	ing := NewIngestor(store, logging.NewNopLogger())
	ctx := context.Background()

	result, err := ing.IngestDocument(ctx, sampleDocument())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Paragraphs)
	assert.Equal(t, 3, result.Entities)
	// Each entity reference yields one edge to the paragraph and one to the
	// document: 2 refs in each paragraph, 4 refs total.
	assert.Equal(t, 8, result.Edges)

	doc, err := store.GetNode(ctx, result.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, graph.LabelDocument, doc.Label)
	assert.Equal(t, "Radioactivity", graph.StringProp(doc.Props, graph.PropTitle))
	assert.Equal(t, "science", graph.StringProp(doc.Props, graph.PropCategory))

	entity, err := store.GetNode(ctx, "marie curie:PERSON")
	require.NoError(t, err)
	assert.Equal(t, graph.LabelEntity, entity.Label)
	assert.Equal(t, "Marie Curie", graph.StringProp(entity.Props, graph.PropName))
	assert.Equal(t, "PERSON", graph.StringProp(entity.Props, graph.PropLabel))
}

func TestIngestDocumentGraphLinks(t *testing.T) {
	store := graph.NewMemoryStore()
	ing := NewIngestor(store, logging.NewNopLogger())
	ctx := context.Background()

	result, err := ing.IngestDocument(ctx, sampleDocument())
	require.NoError(t, err)
	docID := result.DocumentID

	// The entity mentions both the paragraph and the owning document.
	var targets []string
	require.NoError(t, store.QueryConnected(ctx, "marie curie:PERSON", 0, func(n graph.Node, e graph.Edge) error {
		targets = append(targets, e.Key.ToID)
		return nil
	}))
	assert.Len(t, targets, 3)
	assert.Contains(t, targets, docID)

	// Mention edges are permanent and fully provenanced from birth.
	require.NoError(t, store.ScanEdges(ctx, graph.EdgeMentions, func(e graph.Edge) error {
		assert.Equal(t, int64(0), e.ExpiresAt())
		assert.True(t, e.Validated())
		assert.True(t, e.Promoted())
		assert.Equal(t, docID, graph.StringProp(e.Props, graph.PropSourceDocID))
		assert.Equal(t, int64(SchemaVersion), graph.Int64Prop(e.Props, graph.PropSchemaVersion))
		assert.NotZero(t, graph.Int64Prop(e.Props, graph.PropIngestedAt))
		return nil
	}))

	// Paragraphs link to their document.
	paraCount := 0
	require.NoError(t, store.ScanEdges(ctx, graph.EdgePartOf, func(e graph.Edge) error {
		paraCount++
		assert.Equal(t, docID, e.Key.ToID)
		return nil
	}))
	assert.Equal(t, 2, paraCount)
}

func TestIngestDocumentIdempotent(t *testing.T) {
	store := graph.NewMemoryStore()
	ing := NewIngestor(store, logging.NewNopLogger())
	ctx := context.Background()

	first, err := ing.IngestDocument(ctx, sampleDocument())
	require.NoError(t, err)
	second, err := ing.IngestDocument(ctx, sampleDocument())
	require.NoError(t, err)

	// Content-derived IDs make re-ingestion a merge, not a duplication.
	assert.Equal(t, first.DocumentID, second.DocumentID)

	edgeCount := 0
	require.NoError(t, store.ScanEdges(ctx, graph.EdgeMentions, func(graph.Edge) error {
		edgeCount++
		return nil
	}))
	assert.Equal(t, 7, edgeCount)
}

func TestIngestDocumentValidation(t *testing.T) {
	store := graph.NewMemoryStore()
	ing := NewIngestor(store, logging.NewNopLogger())
	ctx := context.Background()

	_, err := ing.IngestDocument(ctx, Document{Title: " ", Paragraphs: []Paragraph{{Text: "x"}}})
	assert.Error(t, err)

	_, err = ing.IngestDocument(ctx, Document{Title: "Empty"})
	assert.Error(t, err)
}
