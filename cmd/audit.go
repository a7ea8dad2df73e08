package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/engram-io/engram/pkg/audit"
)

// Audit command flags
var (
	auditType    string
	auditEdgeKey string
	auditSince   string
	auditLimit   int
	auditJSON    bool
)

// NewAuditCommand creates the audit command: a read-only view of the event
// trail.
func NewAuditCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List cache protocol audit events",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			rt, err := buildRuntime(ctx, deps)
			if err != nil {
				return err
			}
			defer rt.Close()

			filter := audit.Filter{
				Type:    audit.EventType(auditType),
				EdgeKey: auditEdgeKey,
				Limit:   auditLimit,
			}
			if auditSince != "" {
				since, err := time.Parse(time.RFC3339, auditSince)
				if err != nil {
					return fmt.Errorf("parsing --since: %w", err)
				}
				filter.Since = since
			}

			events, err := rt.Recorder.List(ctx, filter)
			if err != nil {
				return err
			}

			if auditJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(events)
			}

			for _, e := range events {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-14s %s score=%d session=%s\n",
					e.OccurredAt.Format(time.RFC3339), e.Type, e.EdgeKey, e.Score, e.SessionID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&auditType, "type", "", "filter by event type")
	cmd.Flags().StringVar(&auditEdgeKey, "edge", "", "filter by edge key")
	cmd.Flags().StringVar(&auditSince, "since", "", "only events at or after this RFC3339 time")
	cmd.Flags().IntVar(&auditLimit, "limit", 100, "maximum events to return (0 = unbounded)")
	cmd.Flags().BoolVar(&auditJSON, "json", false, "emit JSON output")
	return cmd
}
