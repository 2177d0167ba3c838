package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/notifysync/pkg/event"
)

func newWatchCmd(app *App) *cobra.Command {
	var tab string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "プッシュ通知を購読し、一覧の変化を表示し続ける",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			category, err := event.ParseCategory(tab)
			if err != nil {
				return err
			}
			c, _, err := app.newClient(cmd, category)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := c.Connect(ctx); err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			<-ctx.Done()
			writeLine(cmd.ErrOrStderr(), "購読を終了します")
			return nil
		},
	}

	cmd.Flags().StringVar(&tab, "tab", "chat", "再取得の対象にするカテゴリ")
	return cmd
}
