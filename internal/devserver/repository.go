package devserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nao1215/notifysync/pkg/auth"
	"github.com/nao1215/notifysync/pkg/event"
)

// ErrNotFound は指定した行が存在しないことを表す。
var ErrNotFound = errors.New("見つかりません")

// table はカテゴリごとのテーブル定義。
type table struct {
	// name はテーブル名。
	name string
	// extra はカテゴリ固有の列。
	extra []string
}

// tables はカテゴリとテーブルの対応。
var tables = map[event.Category]table{
	event.CategoryChat:    {name: "chat_notifications", extra: []string{"chat_type", "chat_id"}},
	event.CategoryConsent: {name: "consent_request_notifications", extra: []string{"consent_request_id"}},
	event.CategoryOneWay:  {name: "one_way_notifications"},
}

// tableFor はカテゴリのテーブル定義を返す。
func tableFor(c event.Category) (table, error) {
	t, ok := tables[c]
	if !ok {
		return table{}, fmt.Errorf("不明な通知カテゴリです: %q", c)
	}
	return t, nil
}

// columns はSELECTする列を返す。
func (t table) columns() string {
	cols := "id, message, recipient_type, recipient_id"
	for _, e := range t.extra {
		cols += ", " + e
	}
	return cols
}

// scanner は *sql.Row と *sql.Rows の共通部分。
type scanner interface {
	Scan(dest ...any) error
}

// scanItem は1行を通知に変換する。
func scanItem(c event.Category, s scanner) (event.Item, error) {
	var item event.Item
	dest := []any{&item.ID, &item.Message, &item.RecipientType, &item.RecipientID}
	switch c {
	case event.CategoryChat:
		dest = append(dest, &item.ChatType, &item.ChatID)
	case event.CategoryConsent:
		dest = append(dest, &item.ConsentRequestID)
	}
	err := s.Scan(dest...)
	return item, err
}

// Repository は通知とユーザーの永続化を行う。
type Repository struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
}

// NewRepository は新しいRepositoryを生成する。
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// UpsertUser はユーザーを登録または更新する。
func (r *Repository) UpsertUser(ctx context.Context, id int64, role auth.Role, name string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, role, name) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET role = excluded.role, name = excluded.name`,
		id, string(role), name)
	if err != nil {
		return fmt.Errorf("ユーザーの登録に失敗: %w", err)
	}
	return nil
}

// UserRole はユーザーの種別を返す。存在しない場合はErrNotFound。
func (r *Repository) UserRole(ctx context.Context, id int64) (auth.Role, error) {
	var role string
	err := r.db.QueryRowContext(ctx, `SELECT role FROM users WHERE id = ?`, id).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("ユーザーの取得に失敗: %w", err)
	}
	return auth.Role(role), nil
}

// List は受信者の通知をID順に返す。
func (r *Repository) List(ctx context.Context, c event.Category, recipientType string, recipientID int64) ([]event.Item, error) {
	t, err := tableFor(c)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+t.columns()+` FROM `+t.name+` WHERE recipient_type = ? AND recipient_id = ? ORDER BY id`,
		recipientType, recipientID)
	if err != nil {
		return nil, fmt.Errorf("通知一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items := make([]event.Item, 0)
	for rows.Next() {
		item, err := scanItem(c, rows)
		if err != nil {
			return nil, fmt.Errorf("通知の読み込みに失敗: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Get は通知を1件返す。存在しない場合はErrNotFound。
func (r *Repository) Get(ctx context.Context, c event.Category, id int64) (event.Item, error) {
	t, err := tableFor(c)
	if err != nil {
		return event.Item{}, err
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+t.columns()+` FROM `+t.name+` WHERE id = ?`, id)
	item, err := scanItem(c, row)
	if errors.Is(err, sql.ErrNoRows) {
		return event.Item{}, ErrNotFound
	}
	if err != nil {
		return event.Item{}, fmt.Errorf("通知の取得に失敗: %w", err)
	}
	return item, nil
}

// Create は通知を保存し、採番したIDを設定して返す。
func (r *Repository) Create(ctx context.Context, c event.Category, item event.Item) (event.Item, error) {
	t, err := tableFor(c)
	if err != nil {
		return event.Item{}, err
	}

	cols := "message, recipient_type, recipient_id"
	placeholders := "?, ?, ?"
	args := []any{item.Message, item.RecipientType, item.RecipientID}
	switch c {
	case event.CategoryChat:
		args = append(args, item.ChatType, item.ChatID)
	case event.CategoryConsent:
		args = append(args, item.ConsentRequestID)
	}
	for _, e := range t.extra {
		cols += ", " + e
		placeholders += ", ?"
	}

	res, err := r.db.ExecContext(ctx, `INSERT INTO `+t.name+` (`+cols+`) VALUES (`+placeholders+`)`, args...)
	if err != nil {
		return event.Item{}, fmt.Errorf("通知の作成に失敗: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return event.Item{}, fmt.Errorf("通知IDの取得に失敗: %w", err)
	}
	item.ID = id
	return item, nil
}

// Delete は通知を1件削除する。
func (r *Repository) Delete(ctx context.Context, c event.Category, id int64) error {
	t, err := tableFor(c)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM `+t.name+` WHERE id = ?`, id); err != nil {
		return fmt.Errorf("通知の削除に失敗: %w", err)
	}
	return nil
}

// DeleteAll は受信者の通知をすべて削除し、削除件数を返す。
func (r *Repository) DeleteAll(ctx context.Context, c event.Category, recipientType string, recipientID int64) (int64, error) {
	t, err := tableFor(c)
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM `+t.name+` WHERE recipient_type = ? AND recipient_id = ?`, recipientType, recipientID)
	if err != nil {
		return 0, fmt.Errorf("通知の一括削除に失敗: %w", err)
	}
	return res.RowsAffected()
}

// Count はカテゴリの通知件数を返す。
func (r *Repository) Count(ctx context.Context, c event.Category) (int, error) {
	t, err := tableFor(c)
	if err != nil {
		return 0, err
	}
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+t.name).Scan(&n); err != nil {
		return 0, fmt.Errorf("通知件数の取得に失敗: %w", err)
	}
	return n, nil
}
