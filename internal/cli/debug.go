package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/notifysync/internal/client"
	"github.com/nao1215/notifysync/pkg/event"
	"github.com/nao1215/notifysync/pkg/httpclient"
)

// errNoFailure は失敗するはずのリクエストが成功したことを表す。
var errNoFailure = errors.New("想定したエラーが返りませんでした")

func newUnauthorizedCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "unauthorized",
		Short: "Authorizationヘッダーなしで一覧を要求する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := app.newClient(cmd, "")
			if err != nil {
				return err
			}
			return reportExpectedFailure(cmd, c.Unauthorized(cmd.Context()))
		},
	}
}

// triggers はエラーを意図的に起こすリクエスト。
var triggers = map[string]func(*client.Client, context.Context) error{
	"invalid-recipient": (*client.Client).TriggerInvalidRecipient,
	"invalid-chat":      (*client.Client).TriggerInvalidChat,
	"invalid-consent":   (*client.Client).TriggerInvalidConsent,
}

func newTriggerCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:       "trigger <invalid-recipient|invalid-chat|invalid-consent>",
		Short:     "不正なリクエストを送り、エラー処理を確認する",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"invalid-recipient", "invalid-chat", "invalid-consent"},
		RunE: func(cmd *cobra.Command, args []string) error {
			trigger, ok := triggers[args[0]]
			if !ok {
				return fmt.Errorf("不明なトリガーです: %q", args[0])
			}
			c, _, err := app.newClient(cmd, "")
			if err != nil {
				return err
			}
			return reportExpectedFailure(cmd, trigger(c, cmd.Context()))
		},
	}
}

// reportExpectedFailure は意図的に起こしたエラーの分類を表示する。
// エラーにならなかった場合や通信エラーの場合はそのまま返す。
func reportExpectedFailure(cmd *cobra.Command, err error) error {
	if err == nil {
		return errNoFailure
	}
	var pe *httpclient.Error
	if !errors.As(err, &pe) || pe.Cause == httpclient.CauseNetwork {
		return err
	}
	writeLine(cmd.OutOrStdout(), "%s (status=%d): %s", pe.Cause, pe.StatusCode, pe.Detail())
	return nil
}

func newFakeEventCmd(app *App) *cobra.Command {
	var msg event.Message

	cmd := &cobra.Command{
		Use:   "fake-event",
		Short: "メッセージキュー経由の通知作成イベントをバックエンドに模擬させる",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := app.newClient(cmd, "")
			if err != nil {
				return err
			}
			if msg.RecipientID == 0 {
				msg.RecipientID = c.Session().UserID
			}
			text, err := c.FakeEvent(cmd.Context(), msg)
			if err != nil {
				return err
			}
			writeLine(cmd.OutOrStdout(), "%s", text)
			return nil
		},
	}

	cmd.Flags().StringVar(&msg.Type, "type", "ONE_WAY", "イベント種別 (CHAT, CONSENT, ONE_WAY)")
	cmd.Flags().StringVarP(&msg.Body, "body", "b", "", "通知メッセージ")
	cmd.Flags().Int64Var(&msg.RecipientID, "recipient", 0, "受信者のユーザーID (既定: 現在のユーザー)")
	_ = cmd.MarkFlagRequired("body")
	return cmd
}
