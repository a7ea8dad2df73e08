package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/engram-io/engram/pkg/graph"
)

// NewSweepCommand creates the sweep command: a single on-demand pass of the
// expiration sweeper.
func NewSweepCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired short-term edges",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			rt, err := buildRuntime(ctx, deps)
			if err != nil {
				return err
			}
			defer rt.Close()

			swept, err := rt.Service.Sweeper.SweepOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "swept %d expired edges\n", swept)
			return nil
		},
	}
}

// NewGraduateCommand creates the graduate command: a single on-demand pass
// of the graduation scanner.
func NewGraduateCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	return &cobra.Command{
		Use:   "graduate",
		Short: "Copy validated short-term edges into the long-term plane",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			rt, err := buildRuntime(ctx, deps)
			if err != nil {
				return err
			}
			defer rt.Close()

			graduated, err := rt.Service.Graduator.RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "graduated %d edges\n", graduated)
			return nil
		},
	}
}

// NewRollbackCommand creates the rollback command.
func NewRollbackCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	return &cobra.Command{
		Use:   "rollback <entity-key> <target-id>",
		Short: "Reverse a graduation, tombstoning the long-term edge",
		Long: `Clears the promoted flag on the long-term MENTIONS edge from
<entity-key> to <target-id> and deletes the edge. A still-live short-term
copy is unaffected and expires on its own.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			rt, err := buildRuntime(ctx, deps)
			if err != nil {
				return err
			}
			defer rt.Close()

			key := graph.EdgeKey{Type: graph.EdgeMentions, FromID: args[0], ToID: args[1]}
			if err := rt.Service.Graduator.Rollback(ctx, key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %s\n", key)
			return nil
		},
	}
}

// NewExpireCommand creates the expire command: the administrative
// force-expire of a short-term edge.
func NewExpireCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	return &cobra.Command{
		Use:   "expire <entity-key> <target-id>",
		Short: "Force-expire a short-term edge",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			rt, err := buildRuntime(ctx, deps)
			if err != nil {
				return err
			}
			defer rt.Close()

			key := graph.EdgeKey{Type: graph.EdgeMentions, FromID: args[0], ToID: args[1]}
			if err := rt.Service.Sweeper.ForceExpire(ctx, key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %s\n", key)
			return nil
		},
	}
}

// NewResetScoreCommand creates the reset-score command.
func NewResetScoreCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	return &cobra.Command{
		Use:   "reset-score <entity-key> <target-id>",
		Short: "Reset a short-term edge's confidence score to zero",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			rt, err := buildRuntime(ctx, deps)
			if err != nil {
				return err
			}
			defer rt.Close()

			key := graph.EdgeKey{Type: graph.EdgeMentions, FromID: args[0], ToID: args[1]}
			if err := rt.Service.Scorer.ResetScore(ctx, key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "score reset on %s\n", key)
			return nil
		},
	}
}
