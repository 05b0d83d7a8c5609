package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var engageAccount string

var engageCmd = &cobra.Command{
	Use:   "engage",
	Short: "Engagement discovery and action queueing",
}

var engageDiscoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List distinct commenters on the account's recent posts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		candidates, err := env.Engine.Discover(ctx, engageAccount)
		if err != nil {
			return eris.Wrap(err, "discover")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(candidates)
	},
}

var engageQueueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Queue follow/like/repost actions for discovered candidates",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		queued, err := env.Engine.QueueActions(ctx, engageAccount)
		zap.L().Info("actions queued", zap.String("account", engageAccount), zap.Int("queued", queued))
		if err != nil {
			return eris.Wrap(err, "queue actions")
		}
		return nil
	},
}

var engageRepliesCmd = &cobra.Command{
	Use:   "replies",
	Short: "Queue generated replies for recent comments",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		queued, err := env.Engine.QueueReplies(ctx, engageAccount)
		zap.L().Info("replies queued", zap.String("account", engageAccount), zap.Int("queued", queued))
		if err != nil {
			return eris.Wrap(err, "queue replies")
		}
		return nil
	},
}

func init() {
	engageCmd.PersistentFlags().StringVar(&engageAccount, "account", "", "platform user id of the acting account (required)")
	_ = engageCmd.MarkPersistentFlagRequired("account")

	engageCmd.AddCommand(engageDiscoverCmd)
	engageCmd.AddCommand(engageQueueCmd)
	engageCmd.AddCommand(engageRepliesCmd)
	rootCmd.AddCommand(engageCmd)
}
