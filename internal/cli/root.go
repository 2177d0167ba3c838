// Package cli は notifyclient コマンドのサブコマンドを定義する。
package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nao1215/notifysync/internal/client"
	"github.com/nao1215/notifysync/internal/config"
	"github.com/nao1215/notifysync/pkg/auth"
	"github.com/nao1215/notifysync/pkg/event"
	"github.com/nao1215/notifysync/pkg/httpclient"
	"github.com/nao1215/notifysync/pkg/logger"
)

// App はサブコマンド間で共有する状態。
type App struct {
	// EnvFile は読み込む .env ファイル。
	EnvFile string
	// APIURL はフラグで指定した通知APIのURL。
	APIURL string
	// WSURL はフラグで指定したWebSocket URL。
	WSURL string
	// UserID はフラグで指定したユーザーID。
	UserID int64
	// Role はフラグで指定したユーザー種別。
	Role string
	// LogLevel はフラグで指定したログレベル。
	LogLevel string
	// NoColor はトーストの色付けを無効にする。
	NoColor bool

	cfg    *config.Config
	logger *zap.Logger
}

// NewRootCmd はルートコマンドを生成する。
func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:           "notifyclient",
		Short:         "通知サービスのクライアント",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.load()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if app.logger != nil {
				_ = app.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&app.EnvFile, "env-file", ".env", ".envファイルのパス")
	cmd.PersistentFlags().StringVar(&app.APIURL, "api-url", "", "通知APIのURL (NOTIFY_API_URL)")
	cmd.PersistentFlags().StringVar(&app.WSURL, "ws-url", "", "WebSocketのURL (NOTIFY_WS_URL)")
	cmd.PersistentFlags().Int64Var(&app.UserID, "user", 0, "ユーザーID (NOTIFY_USER_ID)")
	cmd.PersistentFlags().StringVar(&app.Role, "role", "", "ユーザー種別 (NOTIFY_ROLE)")
	cmd.PersistentFlags().StringVar(&app.LogLevel, "log-level", "", "ログレベル (LOG_LEVEL)")
	cmd.PersistentFlags().BoolVar(&app.NoColor, "no-color", false, "トーストを色付けしない")

	cmd.AddCommand(newListCmd(app))
	cmd.AddCommand(newSendCmd(app))
	cmd.AddCommand(newDeleteCmd(app))
	cmd.AddCommand(newDeleteAllCmd(app))
	cmd.AddCommand(newWatchCmd(app))
	cmd.AddCommand(newUnauthorizedCmd(app))
	cmd.AddCommand(newTriggerCmd(app))
	cmd.AddCommand(newFakeEventCmd(app))

	return cmd
}

// load は設定を読み込み、フラグで上書きしてロガーを作る。
func (a *App) load() error {
	cfg, err := config.Load(a.EnvFile)
	if err != nil {
		return err
	}
	if a.APIURL != "" {
		cfg.APIURL = a.APIURL
	}
	if a.WSURL != "" {
		cfg.WSURL = a.WSURL
	}
	if a.UserID != 0 {
		cfg.Session.UserID = a.UserID
	}
	if a.Role != "" {
		role, err := auth.ParseRole(a.Role)
		if err != nil {
			return err
		}
		cfg.Session.Role = role
	}
	if a.LogLevel != "" {
		cfg.LogLevel = a.LogLevel
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, File: cfg.LogFile, Development: true})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = log
	return nil
}

// newClient はコマンドの出力先に描画するクライアントを作る。
func (a *App) newClient(cmd *cobra.Command, tab event.Category) (*client.Client, *printer, error) {
	p := newPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr(), !a.NoColor)
	c, err := client.New(client.Config{
		APIURL:      a.cfg.APIURL,
		WSURL:       a.cfg.WSURL,
		Session:     a.cfg.Session,
		TokenSecret: a.cfg.TokenSecret,
		HTTPTimeout: a.cfg.HTTPTimeout,
		InitialTab:  tab,
		Render:      p.render,
		Notify:      p.notify,
		Status:      p.status,
		Logger:      a.logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return c, p, nil
}

// parseCategoryArg は位置引数のカテゴリを解析する。
func parseCategoryArg(args []string) (event.Category, error) {
	if len(args) == 0 {
		return "", errors.New("カテゴリを指定してください (chat, consent, one-way)")
	}
	return event.ParseCategory(args[0])
}

// parseID は位置引数の通知IDを解析する。
func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("通知IDが不正です: %q", s)
	}
	return id, nil
}

// writeLine は出力先に1行書く。
// ReportError はコマンドの失敗を表示する。
// リクエストの失敗はトーストで表示済みのため、それ以外のエラーだけを書き出す。
func ReportError(w io.Writer, err error) {
	var pe *httpclient.Error
	if err == nil || errors.As(err, &pe) {
		return
	}
	writeLine(w, "エラー: %v", err)
}

func writeLine(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format+"\n", args...)
}
