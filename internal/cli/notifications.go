package cli

import (
	"github.com/spf13/cobra"

	"github.com/nao1215/notifysync/internal/notification"
)

func newListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list <category>",
		Short: "通知一覧を表示する",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, err := parseCategoryArg(args)
			if err != nil {
				return err
			}
			c, _, err := app.newClient(cmd, category)
			if err != nil {
				return err
			}
			_, err = c.List(cmd.Context(), category)
			return err
		},
	}
}

func newSendCmd(app *App) *cobra.Command {
	var fields notification.CreateFields

	cmd := &cobra.Command{
		Use:   "send <category>",
		Short: "通知を作成する",
		Long: `通知を作成する。省略した項目はカテゴリの既定値を使う。
受信者IDを省略した場合は現在のユーザー宛になる。`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, err := parseCategoryArg(args)
			if err != nil {
				return err
			}
			c, _, err := app.newClient(cmd, category)
			if err != nil {
				return err
			}
			text, err := c.Send(cmd.Context(), category, fields)
			if err != nil {
				return err
			}
			writeLine(cmd.OutOrStdout(), "%s", text)
			return nil
		},
	}

	cmd.Flags().StringVarP(&fields.Message, "message", "m", "", "通知メッセージ")
	cmd.Flags().Int64Var(&fields.RecipientID, "recipient", 0, "受信者のユーザーID")
	cmd.Flags().StringVar(&fields.RecipientType, "recipient-type", "", "受信者の種別 (既定: PATIENT)")
	cmd.Flags().StringVar(&fields.ChatType, "chat-type", "", "チャットの種類 (既定: PRIVATE)")
	cmd.Flags().Int64Var(&fields.ChatID, "chat-id", 0, "チャットスレッドのID (既定: 99)")
	cmd.Flags().Int64Var(&fields.ConsentRequestID, "consent-id", 0, "同意リクエストのID (既定: 888)")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func newDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <category> <id>",
		Short: "通知を1件削除する",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, err := parseCategoryArg(args)
			if err != nil {
				return err
			}
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			c, _, err := app.newClient(cmd, category)
			if err != nil {
				return err
			}
			text, err := c.Delete(cmd.Context(), category, id)
			if err != nil {
				return err
			}
			writeLine(cmd.OutOrStdout(), "%s", text)
			return nil
		},
	}
}

func newDeleteAllCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-all <category>",
		Short: "カテゴリの通知をすべて削除する",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, err := parseCategoryArg(args)
			if err != nil {
				return err
			}
			c, _, err := app.newClient(cmd, category)
			if err != nil {
				return err
			}
			text, err := c.DeleteAll(cmd.Context(), category)
			if err != nil {
				return err
			}
			writeLine(cmd.OutOrStdout(), "%s", text)
			return nil
		},
	}
}
