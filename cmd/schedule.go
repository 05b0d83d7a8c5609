package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quillworks/quill/internal/schedule"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run pipeline and reply sweeps on the configured cron schedule",
	Long: `Runs until interrupted. Jobs come from the schedule config section:
pipeline_cron triggers a pipeline run in the configured mode, reply_cron
queues reply drafts for every active account, and expired dedupe entries
are purged daily.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		runner := schedule.New(cfg, env.Orchestrator, env.Engine, env.Store)
		if err := runner.Start(); err != nil {
			return err
		}

		zap.L().Info("scheduler started",
			zap.String("pipeline_cron", cfg.Schedule.PipelineCron),
			zap.String("reply_cron", cfg.Schedule.ReplyCron),
			zap.Int("jobs", len(runner.Entries())),
		)

		<-ctx.Done()
		zap.L().Info("scheduler stopping")
		runner.Stop()

		return nil
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}
