// Package client は通知の一覧、作成、削除、リアルタイム購読をまとめたクライアントを提供する。
// 3つのカテゴリの一覧、HTTPリクエスト、プッシュ購読は同じセッションを共有する。
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nao1215/notifysync/internal/dispatch"
	"github.com/nao1215/notifysync/internal/notification"
	"github.com/nao1215/notifysync/internal/realtime"
	"github.com/nao1215/notifysync/pkg/auth"
	"github.com/nao1215/notifysync/pkg/event"
	"github.com/nao1215/notifysync/pkg/httpclient"
)

// Config はクライアントの構成。
type Config struct {
	// APIURL は通知APIのベースURL（例: "http://localhost:8080/notifications"）。
	APIURL string
	// WSURL はリアルタイム配信のWebSocket URL。Transportを指定した場合は使わない。
	WSURL string
	// Session は初期のユーザー。
	Session auth.Session
	// TokenSecret が空でない場合はHS256で署名したトークンを使う。
	TokenSecret string
	// HTTPTimeout はHTTPリクエストのタイムアウト。0の場合は30秒。
	HTTPTimeout time.Duration
	// InitialTab は最初に表示するカテゴリ。空の場合はチャット。
	InitialTab event.Category

	// Render は一覧の描画先。
	Render notification.RenderFunc
	// Notify はトーストの表示先。
	Notify func(message string, isError bool)
	// Status は接続状態の表示先。
	Status func(connected bool)
	// LogError はリクエスト失敗の記録先。nilの場合はLoggerに出力する。
	LogError func(err error)

	// Transport はリアルタイム接続の差し替え用。nilの場合はWSURLへのWebSocket。
	Transport realtime.Transport
	// Logger はログ出力先。
	Logger *zap.Logger
}

// Client は通知クライアント。
type Client struct {
	// holder は現在のセッション。
	holder *auth.Holder
	// api は通知APIへのリクエストを行う。
	api *httpclient.Client
	// debug はデバッグ用エンドポイントへのリクエストを行う。
	debug *httpclient.Client
	// stores はカテゴリごとの一覧。
	stores map[event.Category]*notification.Store
	// tabs は表示中のカテゴリ。
	tabs *dispatch.Tabs
	// dispatcher はプッシュと変更を再取得に振り分ける。
	dispatcher *dispatch.Dispatcher
	// channel はプッシュ購読。
	channel *realtime.Channel
	// logger はログ出力先。
	logger *zap.Logger
}

// New は新しいクライアントを生成する。接続はConnectで行う。
func New(cfg Config) (*Client, error) {
	holder, err := auth.NewHolder(cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("初期セッションが不正です: %w", err)
	}
	if cfg.APIURL == "" {
		return nil, errors.New("APIURLが指定されていません")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notify := cfg.Notify
	if notify == nil {
		notify = func(string, bool) {}
	}
	timeout := cfg.HTTPTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	initial := cfg.InitialTab
	if initial == "" {
		initial = event.CategoryChat
	}

	credentials := auth.NewBuilder(cfg.TokenSecret)
	sinks := httpclient.Sinks{Notify: notify, LogError: cfg.LogError}
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	api := httpclient.New(apiURL, holder, credentials,
		httpclient.WithTimeout(timeout),
		httpclient.WithSinks(sinks),
		httpclient.WithLogger(logger.Named("http")),
	)
	debug := httpclient.New(debugURL(apiURL), holder, credentials,
		httpclient.WithTimeout(timeout),
		httpclient.WithSinks(sinks),
		httpclient.WithLogger(logger.Named("http")),
	)

	stores := make(map[event.Category]*notification.Store, len(event.Categories))
	listers := make(map[event.Category]dispatch.Lister, len(event.Categories))
	refreshers := make([]realtime.Refresher, 0, len(event.Categories))
	for _, spec := range notification.Specs() {
		store := notification.NewStore(spec, api, cfg.Render, logger.Named("store"))
		stores[spec.Category] = store
		listers[spec.Category] = store
		refreshers = append(refreshers, store)
	}

	tabs := dispatch.NewTabs(initial)
	dispatcher := dispatch.New(listers, tabs, notify, logger.Named("dispatch"))

	transport := cfg.Transport
	if transport == nil {
		transport = realtime.NewWebSocketTransport(cfg.WSURL,
			realtime.WithConnectTimeout(timeout),
			realtime.WithTransportLogger(logger.Named("stomp")),
		)
	}
	channel := realtime.NewChannel(transport, dispatcher, refreshers,
		realtime.Sinks{Status: cfg.Status, Notify: notify},
		logger.Named("realtime"),
	)

	return &Client{
		holder:     holder,
		api:        api,
		debug:      debug,
		stores:     stores,
		tabs:       tabs,
		dispatcher: dispatcher,
		channel:    channel,
		logger:     logger,
	}, nil
}

// debugURL は通知APIのベースURLからデバッグ用エンドポイントのURLを求める。
func debugURL(apiURL string) string {
	return strings.TrimSuffix(apiURL, "/notifications") + "/debug"
}

// Session は現在のセッションを返す。
func (c *Client) Session() auth.Session {
	return c.holder.Current()
}

// State はリアルタイム接続の状態を返す。
func (c *Client) State() realtime.State {
	return c.channel.State()
}

// Connect は現在のユーザーのトピックを購読し、全カテゴリの一覧を取得する。
func (c *Client) Connect(ctx context.Context) error {
	return c.channel.Connect(ctx, c.holder.Current())
}

// SwitchUser はユーザーを切り替えて再接続する。
// 同じユーザーで接続中の場合は何もしない。
func (c *Client) SwitchUser(ctx context.Context, session auth.Session) error {
	changed, err := c.holder.Switch(session)
	if err != nil {
		return fmt.Errorf("ユーザーの切り替えに失敗: %w", err)
	}
	if !changed && c.channel.State() == realtime.StateConnected {
		return nil
	}
	c.logger.Info("switching user", zap.Stringer("session", session))
	return c.Connect(ctx)
}

// Close はリアルタイム接続を閉じる。
func (c *Client) Close() error {
	return c.channel.Close()
}

// ActiveTab は表示中のカテゴリを返す。
func (c *Client) ActiveTab() event.Category {
	return c.tabs.Active()
}

// Activate は表示中のカテゴリを切り替え、その一覧を再取得する。
func (c *Client) Activate(ctx context.Context, category event.Category) error {
	if _, ok := c.stores[category]; !ok {
		return fmt.Errorf("不明な通知カテゴリです: %q", category)
	}
	c.tabs.Set(category)
	return c.dispatcher.Activate(ctx, category)
}

// Store はカテゴリの一覧を返す。
func (c *Client) Store(category event.Category) (*notification.Store, error) {
	store, ok := c.stores[category]
	if !ok {
		return nil, fmt.Errorf("不明な通知カテゴリです: %q", category)
	}
	return store, nil
}

// List はカテゴリの一覧を取得する。
func (c *Client) List(ctx context.Context, category event.Category) ([]event.Item, error) {
	store, err := c.Store(category)
	if err != nil {
		return nil, err
	}
	return store.List(ctx)
}

// Send は通知を作成し、サーバーの確認メッセージを返す。
// 受信者IDを省略した場合は現在のユーザー宛にする。
func (c *Client) Send(ctx context.Context, category event.Category, fields notification.CreateFields) (string, error) {
	store, err := c.Store(category)
	if err != nil {
		return "", err
	}
	if fields.RecipientID == 0 {
		fields.RecipientID = c.holder.Current().UserID
	}
	text, err := store.Create(ctx, fields)
	if err != nil {
		return "", err
	}
	c.afterMutation(ctx, category)
	return text, nil
}

// Delete は通知を1件削除する。
func (c *Client) Delete(ctx context.Context, category event.Category, id int64) (string, error) {
	store, err := c.Store(category)
	if err != nil {
		return "", err
	}
	text, err := store.DeleteOne(ctx, id)
	if err != nil {
		return "", err
	}
	c.afterMutation(ctx, category)
	return text, nil
}

// DeleteAll はカテゴリの通知をすべて削除する。
func (c *Client) DeleteAll(ctx context.Context, category event.Category) (string, error) {
	store, err := c.Store(category)
	if err != nil {
		return "", err
	}
	text, err := store.DeleteAll(ctx)
	if err != nil {
		return "", err
	}
	c.afterMutation(ctx, category)
	return text, nil
}

// afterMutation は変更後に表示中の一覧を再取得する。
// 再取得の失敗はリクエスト側で通知済みのため、変更の結果には含めない。
func (c *Client) afterMutation(ctx context.Context, category event.Category) {
	if err := c.dispatcher.OnMutation(ctx, category); err != nil {
		c.logger.Debug("relist after mutation failed", zap.Error(err))
	}
}

// Unauthorized はAuthorizationヘッダーなしで一覧を要求する。
// サーバーが拒否した場合はエラーとして通知される。
func (c *Client) Unauthorized(ctx context.Context) error {
	_, err := c.api.DoAnonymous(ctx, http.MethodGet, notification.ChatSpec.ListPath, nil)
	return err
}

// TriggerInvalidRecipient は存在しない受信者宛にチャット通知を作成する。
func (c *Client) TriggerInvalidRecipient(ctx context.Context) error {
	_, err := c.stores[event.CategoryChat].Create(ctx, notification.CreateFields{
		Message:     "This should fail",
		RecipientID: 9999,
		ChatType:    "PRIVATE",
		ChatID:      1,
	})
	return err
}

// TriggerInvalidChat は不正なチャット種別でチャット通知を作成する。
func (c *Client) TriggerInvalidChat(ctx context.Context) error {
	_, err := c.stores[event.CategoryChat].Create(ctx, notification.CreateFields{
		Message:     "Fail Chat",
		RecipientID: 1,
		ChatType:    "INVALID_TYPE",
		ChatID:      -1,
	})
	return err
}

// TriggerInvalidConsent は不正な同意リクエストIDで同意リクエスト通知を作成する。
func (c *Client) TriggerInvalidConsent(ctx context.Context) error {
	_, err := c.stores[event.CategoryConsent].Create(ctx, notification.CreateFields{
		Message:          "Fail Consent",
		RecipientID:      1,
		ConsentRequestID: -500,
	})
	return err
}

// FakeEvent はメッセージキュー経由の通知作成イベントをバックエンドに模擬させる。
func (c *Client) FakeEvent(ctx context.Context, msg event.Message) (string, error) {
	resp, err := c.debug.Post(ctx, "/fake-event", msg)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
