package dispatch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nao1215/notifysync/pkg/event"
)

// Lister は一覧を再取得できるもの。notification.Store が満たす。
type Lister interface {
	List(ctx context.Context) ([]event.Item, error)
}

// NotifyFunc はトーストの表示先。
type NotifyFunc func(message string, isError bool)

// Dispatcher はプッシュとローカル操作を一覧の再取得に振り分ける。
type Dispatcher struct {
	// stores はカテゴリごとの一覧。
	stores map[event.Category]Lister
	// active は表示中のカテゴリの取得元。
	active ActiveSource
	// notify はトーストの表示先。
	notify NotifyFunc
	// logger はログ出力先。
	logger *zap.Logger
}

// New は新しいDispatcherを生成する。
func New(stores map[event.Category]Lister, active ActiveSource, notify NotifyFunc, logger *zap.Logger) *Dispatcher {
	if notify == nil {
		notify = func(string, bool) {}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		stores: stores,
		active: active,
		notify: notify,
		logger: logger,
	}
}

// OnPush はプッシュ通知を処理する。
// トーストは必ず1回出し、カテゴリが表示中の場合だけ再取得する。
// type を解釈できないプッシュは表示中のカテゴリを再取得する。
func (d *Dispatcher) OnPush(ctx context.Context, ev event.Pushed) error {
	d.notify("新しい通知: "+ev.Message, false)

	active := d.active.Active()
	c, ok := ev.Category()
	if !ok {
		c = active
	}
	if c == "" {
		return nil
	}
	if c != active {
		d.logger.Debug("push for inactive category", zap.String("category", string(c)), zap.String("active", string(active)))
		return nil
	}
	return d.relist(ctx, c)
}

// OnMutation はローカルでの作成や削除の後に呼ぶ。
// カテゴリが表示中の場合だけ再取得する。
func (d *Dispatcher) OnMutation(ctx context.Context, c event.Category) error {
	if c != d.active.Active() {
		return nil
	}
	return d.relist(ctx, c)
}

// Activate はタブ切り替え時に呼ぶ。過去のプッシュに関係なく必ず再取得する。
func (d *Dispatcher) Activate(ctx context.Context, c event.Category) error {
	return d.relist(ctx, c)
}

// relist はカテゴリの一覧を再取得する。
func (d *Dispatcher) relist(ctx context.Context, c event.Category) error {
	store, ok := d.stores[c]
	if !ok {
		return fmt.Errorf("通知カテゴリ %q の一覧が登録されていません", c)
	}
	if _, err := store.List(ctx); err != nil {
		return fmt.Errorf("%s の一覧の再取得に失敗: %w", c, err)
	}
	return nil
}
