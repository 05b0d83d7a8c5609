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
	accountToken   string
	accountPrompt  string
	accountTopicID int64
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage publishing accounts",
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		accounts, err := st.ListAccounts(ctx)
		if err != nil {
			return eris.Wrap(err, "list accounts")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(accounts)
	},
}

var accountsCreateCmd = &cobra.Command{
	Use:   "create <user-id>",
	Short: "Register an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if accountToken == "" {
			return eris.New("--token is required")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		a := model.Account{
			UserID:      args[0],
			AccessToken: accountToken,
			Prompt:      accountPrompt,
		}
		if accountTopicID > 0 {
			a.TopicID = &accountTopicID
		}

		created, err := st.CreateAccount(ctx, a)
		if err != nil {
			return eris.Wrapf(err, "create account %s", args[0])
		}

		zap.L().Info("account created", zap.Int64("id", created.ID), zap.String("user", created.UserID))
		return nil
	},
}

var accountsUpdateCmd = &cobra.Command{
	Use:   "update <user-id>",
	Short: "Update an account's prompt, topic binding or token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		account, err := st.GetAccount(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "get account %s", args[0])
		}
		if account == nil {
			return eris.Errorf("account %q not found", args[0])
		}

		if cmd.Flags().Changed("prompt") {
			account.Prompt = accountPrompt
		}
		if cmd.Flags().Changed("token") {
			account.AccessToken = accountToken
		}
		if cmd.Flags().Changed("topic-id") {
			if accountTopicID > 0 {
				account.TopicID = &accountTopicID
			} else {
				account.TopicID = nil
			}
		}

		if err := st.UpdateAccount(ctx, *account); err != nil {
			return eris.Wrapf(err, "update account %s", args[0])
		}

		zap.L().Info("account updated", zap.String("user", account.UserID))
		return nil
	},
}

var accountsResetCountCmd = &cobra.Command{
	Use:   "reset-count <user-id>",
	Short: "Reset an account's post counter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.ResetPostCount(ctx, args[0]); err != nil {
			return eris.Wrapf(err, "reset post count %s", args[0])
		}

		zap.L().Info("post count reset", zap.String("user", args[0]))
		return nil
	},
}

var accountsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an account by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Errorf("invalid account id %q", args[0])
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.DeleteAccount(ctx, id); err != nil {
			return eris.Wrapf(err, "delete account %d", id)
		}

		zap.L().Info("account deleted", zap.Int64("id", id))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{accountsCreateCmd, accountsUpdateCmd} {
		c.Flags().StringVar(&accountToken, "token", "", "platform access token")
		c.Flags().StringVar(&accountPrompt, "prompt", "", "per-account generation prompt")
		c.Flags().Int64Var(&accountTopicID, "topic-id", 0, "bound topic id (0 clears the binding)")
	}

	accountsCmd.AddCommand(accountsListCmd)
	accountsCmd.AddCommand(accountsCreateCmd)
	accountsCmd.AddCommand(accountsUpdateCmd)
	accountsCmd.AddCommand(accountsResetCountCmd)
	accountsCmd.AddCommand(accountsDeleteCmd)
	rootCmd.AddCommand(accountsCmd)
}
