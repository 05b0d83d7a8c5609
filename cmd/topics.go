package main

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quillworks/quill/internal/model"
)

var (
	topicDisplayName string
	topicDescription string
	topicPrompt      string
	topicInactive    bool
	topicsActiveOnly bool

	sourceTopicID    int64
	sourceBaseURL    string
	sourceUserAgent  string
	sourceTimeoutMS  int
	sourceInactive   bool
	sourceSelArticle string
	sourceSelTitle   string
	sourceSelURL     string
	sourceSelSummary string
)

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "Manage content topics",
}

var topicsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List topics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		topics, err := st.ListTopics(ctx, topicsActiveOnly)
		if err != nil {
			return eris.Wrap(err, "list topics")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(topics)
	},
}

var topicsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a topic",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		created, err := st.CreateTopic(ctx, model.Topic{
			Name:          args[0],
			DisplayName:   topicDisplayName,
			Description:   topicDescription,
			DefaultPrompt: topicPrompt,
			Active:        !topicInactive,
		})
		if err != nil {
			return eris.Wrapf(err, "create topic %s", args[0])
		}

		zap.L().Info("topic created", zap.Int64("id", created.ID), zap.String("name", created.Name))
		return nil
	},
}

var topicsUpdateCmd = &cobra.Command{
	Use:   "update <name>",
	Short: "Update a topic's metadata and active flag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		topic, err := st.GetTopic(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "get topic %s", args[0])
		}
		if topic == nil {
			return eris.Errorf("topic %q not found", args[0])
		}

		if cmd.Flags().Changed("display-name") {
			topic.DisplayName = topicDisplayName
		}
		if cmd.Flags().Changed("description") {
			topic.Description = topicDescription
		}
		if cmd.Flags().Changed("prompt") {
			topic.DefaultPrompt = topicPrompt
		}
		if cmd.Flags().Changed("inactive") {
			topic.Active = !topicInactive
		}

		if err := st.UpdateTopic(ctx, *topic); err != nil {
			return eris.Wrapf(err, "update topic %s", args[0])
		}

		zap.L().Info("topic updated", zap.String("name", topic.Name), zap.Bool("active", topic.Active))
		return nil
	},
}

var topicsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a topic",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		topic, err := st.GetTopic(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "get topic %s", args[0])
		}
		if topic == nil {
			return eris.Errorf("topic %q not found", args[0])
		}

		if err := st.DeleteTopic(ctx, topic.ID); err != nil {
			return eris.Wrapf(err, "delete topic %s", args[0])
		}

		zap.L().Info("topic deleted", zap.String("name", args[0]))
		return nil
	},
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage crawl sources",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		sources, err := st.ListSources(ctx)
		if err != nil {
			return eris.Wrap(err, "list sources")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sources)
	},
}

var sourcesCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a crawl source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if sourceBaseURL == "" {
			return eris.New("--base-url is required")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		s := model.Source{
			Name:      args[0],
			BaseURL:   sourceBaseURL,
			UserAgent: sourceUserAgent,
			TimeoutMS: sourceTimeoutMS,
			Active:    !sourceInactive,
			Selectors: model.SourceSelectors{
				Article: sourceSelArticle,
				Title:   sourceSelTitle,
				URL:     sourceSelURL,
				Summary: sourceSelSummary,
			},
		}
		if sourceTopicID > 0 {
			s.TopicID = &sourceTopicID
		}

		created, err := st.CreateSource(ctx, s)
		if err != nil {
			return eris.Wrapf(err, "create source %s", args[0])
		}

		zap.L().Info("source created", zap.Int64("id", created.ID), zap.String("name", created.Name))
		return nil
	},
}

var sourcesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a source by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Errorf("invalid source id %q", args[0])
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.DeleteSource(ctx, id); err != nil {
			return eris.Wrapf(err, "delete source %d", id)
		}

		zap.L().Info("source deleted", zap.Int64("id", id))
		return nil
	},
}

func init() {
	topicsListCmd.Flags().BoolVar(&topicsActiveOnly, "active", false, "only active topics")

	for _, c := range []*cobra.Command{topicsCreateCmd, topicsUpdateCmd} {
		c.Flags().StringVar(&topicDisplayName, "display-name", "", "human-readable topic name")
		c.Flags().StringVar(&topicDescription, "description", "", "topic description")
		c.Flags().StringVar(&topicPrompt, "prompt", "", "default generation prompt")
		c.Flags().BoolVar(&topicInactive, "inactive", false, "create or mark the topic inactive")
	}

	topicsCmd.AddCommand(topicsListCmd)
	topicsCmd.AddCommand(topicsCreateCmd)
	topicsCmd.AddCommand(topicsUpdateCmd)
	topicsCmd.AddCommand(topicsDeleteCmd)
	rootCmd.AddCommand(topicsCmd)

	sourcesCreateCmd.Flags().Int64Var(&sourceTopicID, "topic-id", 0, "owning topic id")
	sourcesCreateCmd.Flags().StringVar(&sourceBaseURL, "base-url", "", "landing page URL to crawl")
	sourcesCreateCmd.Flags().StringVar(&sourceUserAgent, "user-agent", "", "custom User-Agent")
	sourcesCreateCmd.Flags().IntVar(&sourceTimeoutMS, "timeout-ms", 0, "per-source crawl timeout")
	sourcesCreateCmd.Flags().BoolVar(&sourceInactive, "inactive", false, "create the source inactive")
	sourcesCreateCmd.Flags().StringVar(&sourceSelArticle, "sel-article", "", "article container selector")
	sourcesCreateCmd.Flags().StringVar(&sourceSelTitle, "sel-title", "", "title selector")
	sourcesCreateCmd.Flags().StringVar(&sourceSelURL, "sel-url", "", "link selector")
	sourcesCreateCmd.Flags().StringVar(&sourceSelSummary, "sel-summary", "", "summary selector")

	sourcesCmd.AddCommand(sourcesListCmd)
	sourcesCmd.AddCommand(sourcesCreateCmd)
	sourcesCmd.AddCommand(sourcesDeleteCmd)
	rootCmd.AddCommand(sourcesCmd)
}
