// Package main provides the engram CLI entry point.
// engram is a two-tier knowledge cache over a graph data model: a durable
// long-term plane of authoritative facts and a volatile short-term plane
// holding a time-bounded working set promoted from it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/engram-io/engram/cmd"
	"github.com/engram-io/engram/pkg/buildinfo"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "engram",
	Short: "engram - two-tier graph knowledge cache",
	Long: `engram manages a two-tier knowledge cache over a graph data model.

Authoritative facts live in the durable long-term plane. Queried entities
have their neighbourhoods promoted into the volatile short-term plane with
a TTL; reads reinforce a confidence score on the promoted edges, and edges
that cross the validation threshold graduate back into the long-term plane
as permanent facts. Expired edges are reclaimed by the sweeper.

COMMON WORKFLOWS:
  Load facts:      engram ingest ./doc.json
  Query:           engram query "marie curie:PERSON"
  Run maintenance: engram serve   (or one-shot: engram sweep / engram graduate)
  Inspect trail:   engram audit --type graduated`,
	Version:       buildinfo.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	deps := cmd.DefaultDeps()
	rootCmd.AddCommand(
		cmd.NewServeCommand(deps),
		cmd.NewQueryCommand(deps),
		cmd.NewIngestCommand(deps),
		cmd.NewSweepCommand(deps),
		cmd.NewGraduateCommand(deps),
		cmd.NewRollbackCommand(deps),
		cmd.NewExpireCommand(deps),
		cmd.NewResetScoreCommand(deps),
		cmd.NewAuditCommand(deps),
		cmd.NewVersionCommand(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
