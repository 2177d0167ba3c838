package realtime

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/notifysync/pkg/auth"
	"github.com/nao1215/notifysync/pkg/event"
)

// State は接続状態。
type State int

const (
	// StateDisconnected は未接続。
	StateDisconnected State = iota
	// StateConnecting は接続処理中。
	StateConnecting
	// StateConnected は購読中。
	StateConnected
)

// String は状態名を返す。
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	}
	return "UNKNOWN"
}

// ErrSuperseded は接続処理中に別の接続またはCloseが行われたことを表す。
var ErrSuperseded = errors.New("より新しい接続に置き換えられました")

// errPeerClosed はサーバー側から接続が閉じられたことを表す。
var errPeerClosed = errors.New("サーバーが接続を閉じました")

// Conn はトランスポートの1接続。
type Conn interface {
	// Subscribe はトピックを購読する。handlerは受信順に呼ばれる。
	Subscribe(topic string, handler func(body []byte)) error
	// Done は接続が終了したときに閉じられる。
	Done() <-chan struct{}
	// Err は接続が終了した原因を返す。
	Err() error
	// Close は接続を閉じる。
	Close() error
}

// Transport は接続を開く。Openは接続の準備完了を待ってから返る。
type Transport interface {
	Open(ctx context.Context) (Conn, error)
}

// PushHandler はプッシュ通知の受け取り先。dispatch.Dispatcher が満たす。
type PushHandler interface {
	OnPush(ctx context.Context, ev event.Pushed) error
}

// Refresher は接続直後に一覧を取得するもの。
type Refresher interface {
	List(ctx context.Context) ([]event.Item, error)
}

// Topic はユーザーの購読トピックを返す。
func Topic(userID int64) string {
	return "/topic/user/" + strconv.FormatInt(userID, 10)
}

// Sinks は接続状態とエラーの通知先。
type Sinks struct {
	// Status は接続状態の表示先。
	Status func(connected bool)
	// Notify はトーストの表示先。
	Notify func(message string, isError bool)
}

// Channel はユーザーごとのプッシュ購読を1つだけ保持する。
type Channel struct {
	// transport は接続を開く。
	transport Transport
	// handler はプッシュの受け取り先。
	handler PushHandler
	// refreshers は接続直後に一覧を取得する対象。
	refreshers []Refresher
	// sinks は状態とエラーの通知先。
	sinks Sinks
	// logger はログ出力先。
	logger *zap.Logger

	// mu は以下のフィールドを保護する。
	mu sync.Mutex
	// state は現在の接続状態。
	state State
	// generation は接続ごとに増える番号。古い接続からの配信を捨てるために使う。
	generation uint64
	// conn は現在の接続。
	conn Conn
	// cancel は現在の接続に紐づくコンテキストを終了する。
	cancel context.CancelFunc
	// topic は現在購読しているトピック。
	topic string
}

// NewChannel は新しいChannelを生成する。
func NewChannel(transport Transport, handler PushHandler, refreshers []Refresher, sinks Sinks, logger *zap.Logger) *Channel {
	if sinks.Status == nil {
		sinks.Status = func(bool) {}
	}
	if sinks.Notify == nil {
		sinks.Notify = func(string, bool) {}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{
		transport:  transport,
		handler:    handler,
		refreshers: refreshers,
		sinks:      sinks,
		logger:     logger,
	}
}

// State は現在の接続状態を返す。
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CurrentTopic は購読中のトピックを返す。未接続の場合は空文字列。
func (c *Channel) CurrentTopic() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.topic
}

// Connect はセッションのトピックを購読し、全カテゴリの一覧を取得する。
// 既存の接続は閉じられ、その配信は以後無視される。
// 一覧取得の失敗はリクエスト側で通知済みのため、Connectの結果には含めない。
func (c *Channel) Connect(ctx context.Context, session auth.Session) error {
	if err := session.Validate(); err != nil {
		return fmt.Errorf("接続できないセッションです: %w", err)
	}

	c.mu.Lock()
	c.generation++
	gen := c.generation
	prev, prevCancel := c.conn, c.cancel
	c.conn, c.cancel, c.topic = nil, nil, ""
	c.state = StateConnecting
	c.mu.Unlock()

	if prev != nil {
		prevCancel()
		if err := prev.Close(); err != nil {
			c.logger.Debug("failed to close previous connection", zap.Error(err))
		}
	}

	conn, err := c.transport.Open(ctx)
	if err != nil {
		c.lost(gen, fmt.Errorf("リアルタイム接続に失敗: %w", err))
		return err
	}

	connCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	topic := Topic(session.UserID)
	if err := conn.Subscribe(topic, func(body []byte) { c.deliver(connCtx, gen, body) }); err != nil {
		cancel()
		_ = conn.Close()
		c.lost(gen, fmt.Errorf("トピック %s の購読に失敗: %w", topic, err))
		return err
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		cancel()
		_ = conn.Close()
		return ErrSuperseded
	}
	c.conn, c.cancel, c.topic = conn, cancel, topic
	c.state = StateConnected
	c.mu.Unlock()

	c.logger.Info("subscribed", zap.String("topic", topic), zap.Stringer("session", session))
	c.sinks.Status(true)
	go c.watch(gen, conn)

	c.refresh(connCtx)
	return nil
}

// refresh は登録された一覧をすべて並行に取得する。
func (c *Channel) refresh(ctx context.Context) {
	var g errgroup.Group
	for _, r := range c.refreshers {
		g.Go(func() error {
			_, err := r.List(ctx)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		c.logger.Debug("initial refresh incomplete", zap.Error(err))
	}
}

// deliver は受信した本文をプッシュとして受け取り先に渡す。
func (c *Channel) deliver(ctx context.Context, gen uint64, body []byte) {
	c.mu.Lock()
	current := c.generation == gen
	c.mu.Unlock()
	if !current {
		c.logger.Debug("delivery from superseded connection dropped")
		return
	}

	ev, err := event.DecodePushed(body)
	if err != nil {
		c.logger.Warn("undecodable push dropped", zap.Error(err), zap.ByteString("body", body))
		return
	}
	if err := c.handler.OnPush(ctx, *ev); err != nil {
		c.logger.Debug("push handling failed", zap.Error(err))
	}
}

// watch は接続の終了を監視する。
func (c *Channel) watch(gen uint64, conn Conn) {
	<-conn.Done()
	err := conn.Err()
	if err == nil {
		err = errPeerClosed
	}
	c.lost(gen, fmt.Errorf("リアルタイム接続が切断されました: %w", err))
}

// lost は接続の喪失を通知する。古い世代の場合は何もしない。
func (c *Channel) lost(gen uint64, err error) {
	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	c.conn, c.cancel, c.topic = nil, nil, ""
	c.state = StateDisconnected
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.logger.Error("realtime channel lost", zap.Error(err))
	c.sinks.Notify("エラー: "+err.Error(), true)
	c.sinks.Status(false)
}

// Close は購読を終了する。未接続の場合は何もしない。
func (c *Channel) Close() error {
	c.mu.Lock()
	c.generation++
	conn, cancel := c.conn, c.cancel
	wasActive := c.state != StateDisconnected
	c.conn, c.cancel, c.topic = nil, nil, ""
	c.state = StateDisconnected
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if conn != nil {
		err = conn.Close()
	}
	if wasActive {
		c.sinks.Status(false)
	}
	return err
}
