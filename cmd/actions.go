package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var actionsLimit int

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "Review and resolve pending engagement actions",
}

var actionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending actions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		actions, err := env.Engine.ListPending(ctx, actionsLimit)
		if err != nil {
			return eris.Wrap(err, "list pending actions")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(actions)
	},
}

var actionsApproveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Execute one pending action and mark it approved",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		approved, err := env.Engine.Approve(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "approve %s", args[0])
		}
		if !approved {
			fmt.Println("not approved: action missing or already resolved")
			return nil
		}
		fmt.Println("approved")
		return nil
	},
}

var actionsRejectCmd = &cobra.Command{
	Use:   "reject <id>",
	Short: "Reject one pending action without executing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		rejected, err := env.Engine.Reject(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "reject %s", args[0])
		}
		if !rejected {
			fmt.Println("not rejected: action missing or already resolved")
			return nil
		}
		fmt.Println("rejected")
		return nil
	},
}

var actionsBatchCmd = &cobra.Command{
	Use:   "batch <id> [id...]",
	Short: "Approve actions in order with the mandatory inter-approval delay",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		zap.L().Info("batch approval starting",
			zap.Int("count", len(args)),
			zap.Duration("delay", cfg.Engage.BatchApproveDelay()),
		)
		outcomes := env.Engine.BatchApprove(ctx, args)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(outcomes)
	},
}

func init() {
	actionsListCmd.Flags().IntVar(&actionsLimit, "limit", 100, "maximum actions to list")

	actionsCmd.AddCommand(actionsListCmd)
	actionsCmd.AddCommand(actionsApproveCmd)
	actionsCmd.AddCommand(actionsRejectCmd)
	actionsCmd.AddCommand(actionsBatchCmd)
	rootCmd.AddCommand(actionsCmd)
}
