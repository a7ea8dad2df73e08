package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/engram-io/engram/pkg/cache"
	"github.com/engram-io/engram/pkg/graph"
)

// Query command flags
var (
	querySession string
	queryLimit   int
	queryJSON    bool
)

// NewQueryCommand creates the query command.
func NewQueryCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "query <name:LABEL> [<name:LABEL>...]",
		Short: "Promote entities and fetch the paragraphs they mention",
		Long: `Runs the full read path for the given entities: promotes their
neighbourhoods into the short-term plane, fetches the live paragraphs they
mention ranked by matching-entity count, and feeds a hit event back per
returned edge.

Entity arguments are name:LABEL pairs, e.g. "marie curie:PERSON".`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			rt, err := buildRuntime(ctx, deps)
			if err != nil {
				return err
			}
			defer rt.Close()

			keys := make([]string, 0, len(args))
			for _, arg := range args {
				name, label, ok := strings.Cut(arg, ":")
				if !ok {
					return fmt.Errorf("invalid entity %q: expected name:LABEL", arg)
				}
				keys = append(keys, graph.EntityKey(name, label))
			}

			sessionID := querySession
			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			seen := cache.NewMemorySeenSet(rt.Config.CacheConfig().TTL)

			result, err := rt.Service.Query(ctx, seen, sessionID, keys, queryLimit)
			if err != nil {
				return err
			}

			if queryJSON {
				return printQueryJSON(cmd, result)
			}
			printQueryText(cmd, result)
			return nil
		},
	}

	cmd.Flags().StringVar(&querySession, "session", "", "session identifier (default: random)")
	cmd.Flags().IntVar(&queryLimit, "limit", 10, "maximum paragraphs to return (0 = unbounded)")
	cmd.Flags().BoolVar(&queryJSON, "json", false, "emit JSON output")
	return cmd
}

func printQueryText(cmd *cobra.Command, result *cache.QueryResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "promoted %d, skipped %d fresh, %d missing\n",
		len(result.Promotion.Promoted),
		len(result.Promotion.SkippedFresh),
		len(result.Promotion.Missing))
	if len(result.Promotion.Truncated) > 0 {
		fmt.Fprintf(out, "fanout truncated for: %s\n", strings.Join(result.Promotion.Truncated, ", "))
	}

	for i, hit := range result.Paragraphs {
		doc := ""
		if hit.Document != nil {
			doc = graph.StringProp(hit.Document.Props, graph.PropTitle)
		}
		fmt.Fprintf(out, "%d. [%d match] %s\n", i+1, hit.MatchCount(), doc)
		fmt.Fprintf(out, "   %s\n", graph.StringProp(hit.Paragraph.Props, graph.PropText))
	}
}

func printQueryJSON(cmd *cobra.Command, result *cache.QueryResult) error {
	type jsonHit struct {
		ParagraphID string   `json:"paragraph_id"`
		Text        string   `json:"text"`
		Document    string   `json:"document,omitempty"`
		Entities    []string `json:"entities"`
	}
	type jsonResult struct {
		Promoted   []string  `json:"promoted"`
		Skipped    []string  `json:"skipped_fresh,omitempty"`
		Missing    []string  `json:"missing,omitempty"`
		Truncated  []string  `json:"truncated,omitempty"`
		Paragraphs []jsonHit `json:"paragraphs"`
	}

	jr := jsonResult{
		Promoted:  result.Promotion.Promoted,
		Skipped:   result.Promotion.SkippedFresh,
		Missing:   result.Promotion.Missing,
		Truncated: result.Promotion.Truncated,
	}
	for _, hit := range result.Paragraphs {
		jh := jsonHit{
			ParagraphID: hit.Paragraph.ID,
			Text:        graph.StringProp(hit.Paragraph.Props, graph.PropText),
			Entities:    hit.Entities,
		}
		if hit.Document != nil {
			jh.Document = graph.StringProp(hit.Document.Props, graph.PropTitle)
		}
		jr.Paragraphs = append(jr.Paragraphs, jh)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(jr)
}
