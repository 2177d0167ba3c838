package notification

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/nao1215/notifysync/pkg/event"
	"github.com/nao1215/notifysync/pkg/httpclient"
)

// Requester はStoreが使うリクエスト送信処理。
// httpclient.Client が満たす。
type Requester interface {
	Get(ctx context.Context, path string) (*httpclient.Response, error)
	Post(ctx context.Context, path string, body any) (*httpclient.Response, error)
	Delete(ctx context.Context, path string) (*httpclient.Response, error)
}

// RenderFunc は一覧の描画先。
type RenderFunc func(listID string, items []event.Item)

// Store は1カテゴリ分の通知一覧と操作を持つ。
type Store struct {
	// spec はカテゴリの構成。
	spec Spec
	// requester はリクエスト送信処理。
	requester Requester
	// render は一覧の描画先。
	render RenderFunc
	// logger はログ出力先。
	logger *zap.Logger

	// mu は以下のフィールドを保護する。render もこのロック中に呼ぶ。
	mu sync.Mutex
	// items は最後に反映した一覧。
	items []event.Item
	// issued は発行済みの一覧取得の通し番号。
	issued uint64
	// applied は反映済みの一覧取得の通し番号。
	applied uint64
}

// NewStore は新しいStoreを生成する。renderとloggerはnilでもよい。
func NewStore(spec Spec, requester Requester, render RenderFunc, logger *zap.Logger) *Store {
	if render == nil {
		render = func(string, []event.Item) {}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		spec:      spec,
		requester: requester,
		render:    render,
		logger:    logger.With(zap.String("category", string(spec.Category))),
	}
}

// Category は対象カテゴリを返す。
func (s *Store) Category() event.Category {
	return s.spec.Category
}

// ListID は描画先IDを返す。
func (s *Store) ListID() string {
	return s.spec.ListID
}

// Items は現在の一覧のコピーを返す。
func (s *Store) Items() []event.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneItems(s.items)
}

// cloneItems は一覧のコピーを返す。空でもnilにはしない。
func cloneItems(items []event.Item) []event.Item {
	out := make([]event.Item, len(items))
	copy(out, items)
	return out
}

// List は一覧を取得して置き換え、描画する。
// 配列でない成功レスポンスは空一覧として扱う。
// 失敗時は以前の一覧を残し、描画もしない。
// 後から発行した取得がすでに反映されている場合、その結果は捨てる。
func (s *Store) List(ctx context.Context) ([]event.Item, error) {
	s.mu.Lock()
	s.issued++
	seq := s.issued
	s.mu.Unlock()

	resp, err := s.requester.Get(ctx, s.spec.ListPath)
	if err != nil {
		return nil, err
	}

	items := make([]event.Item, 0)
	if err := json.Unmarshal(resp.Bytes(), &items); err != nil || items == nil {
		s.logger.Warn("list response is not an array, clearing", zap.String("body", resp.Text()))
		items = make([]event.Item, 0)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.applied {
		s.logger.Debug("stale list response discarded", zap.Uint64("seq", seq), zap.Uint64("applied", s.applied))
		return cloneItems(s.items), nil
	}
	s.applied = seq
	s.items = items
	s.render(s.spec.ListID, cloneItems(items))
	return cloneItems(items), nil
}

// Create は通知を作成し、サーバーの確認メッセージを返す。
// 一覧は変更しない。
func (s *Store) Create(ctx context.Context, fields CreateFields) (string, error) {
	payload := s.spec.Payload(fields.withDefaults(s.spec.Defaults))
	resp, err := s.requester.Post(ctx, s.spec.CreatePath, payload)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// DeleteOne は通知を1件削除する。一覧は変更しない。
func (s *Store) DeleteOne(ctx context.Context, id int64) (string, error) {
	resp, err := s.requester.Delete(ctx, s.spec.DeleteOnePath(id))
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// DeleteAll はカテゴリの通知をすべて削除する。一覧は変更しない。
func (s *Store) DeleteAll(ctx context.Context) (string, error) {
	resp, err := s.requester.Delete(ctx, s.spec.DeleteAllPath)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
