package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/engram-io/engram/pkg/ingest"
)

// NewIngestCommand creates the ingest command.
func NewIngestCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	return &cobra.Command{
		Use:   "ingest <document.json> [<document.json>...]",
		Short: "Write pre-processed documents into the long-term plane",
		Long: `Ingests documents that have already been split into paragraphs with
their entity references extracted. Each file holds one JSON document:

  {
    "title": "Radioactivity",
    "category": "science",
    "paragraphs": [
      {"text": "...", "entities": [{"name": "marie curie", "label": "PERSON"}]}
    ]
  }

IDs are content-derived, so re-ingesting the same file merges instead of
duplicating.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			rt, err := buildRuntime(ctx, deps)
			if err != nil {
				return err
			}
			defer rt.Close()

			ingestor := ingest.NewIngestor(rt.Durable, rt.Log)

			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("reading %s: %w", path, err)
				}
				var doc ingest.Document
				if err := json.Unmarshal(data, &doc); err != nil {
					return fmt.Errorf("parsing %s: %w", path, err)
				}

				result, err := ingestor.IngestDocument(ctx, doc)
				if err != nil {
					return fmt.Errorf("ingesting %s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%d paragraphs, %d entities, %d edges)\n",
					path, result.DocumentID, result.Paragraphs, result.Entities, result.Edges)
			}
			return nil
		},
	}
}
