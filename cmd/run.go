package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quillworks/quill/internal/model"
)

var (
	runScope string
	runName  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the publishing pipeline once",
	Long: `Runs one crawl-dedupe-generate-publish pass.

Scopes:
  source       one named source, publishes to every account
  all-sources  first viable source, publishes to every account
  topic        one named topic's sources and accounts
  all-topics   every active topic, independently
  cross-topic  every topic's articles, committed per article
  universal    one article fanned out to all active-topic accounts`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		scope := model.Scope{Kind: model.ScopeKind(runScope), Name: runName}
		results, err := env.Orchestrator.Run(ctx, scope)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		published := 0
		for _, res := range results {
			published += res.Published
		}
		zap.L().Info("run complete",
			zap.String("scope", runScope),
			zap.Int("runs", len(results)),
			zap.Int("published", published),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	},
}

func init() {
	runCmd.Flags().StringVar(&runScope, "scope", string(model.ScopeAllTopics), "run scope (source, all-sources, topic, all-topics, cross-topic, universal)")
	runCmd.Flags().StringVar(&runName, "name", "", "source or topic name for the scopes that need one")
	rootCmd.AddCommand(runCmd)
}
