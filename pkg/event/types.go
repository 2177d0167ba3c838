package event

import (
	"fmt"
	"strings"
)

// Category は通知の種類を表す。カテゴリごとにエンドポイントと一覧を持つ。
type Category string

const (
	// CategoryChat はチャット通知を表す。
	CategoryChat Category = "CHAT"
	// CategoryConsent は同意リクエスト通知を表す。
	CategoryConsent Category = "CONSENT_REQUEST"
	// CategoryOneWay は一方向通知を表す。
	CategoryOneWay Category = "ONE_WAY"
)

// Categories はすべてのカテゴリを表示順に並べたもの。
var Categories = []Category{CategoryChat, CategoryConsent, CategoryOneWay}

// categoryAliases はCLIやイベント種別で使われる別名。
var categoryAliases = map[string]Category{
	"CHAT":            CategoryChat,
	"CONSENT":         CategoryConsent,
	"CONSENT_REQUEST": CategoryConsent,
	"CONSENTREQUEST":  CategoryConsent,
	"ONE_WAY":         CategoryOneWay,
	"ONEWAY":          CategoryOneWay,
}

// ParseCategory は文字列をCategoryに変換する。
// "consent" や "one-way" のような別名も受け付ける。
func ParseCategory(s string) (Category, error) {
	key := strings.ToUpper(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, "-", "_")
	if c, ok := categoryAliases[key]; ok {
		return c, nil
	}
	return "", fmt.Errorf("不明な通知カテゴリです: %q", s)
}

// Item はバックエンドが返す通知1件。IDはカテゴリ内で一意。
type Item struct {
	// ID はサーバーが採番した通知ID。
	ID int64 `json:"id"`
	// Message は通知メッセージ。
	Message string `json:"message"`
	// RecipientType は受信者の種別（PATIENT, DOCTOR等）。
	RecipientType string `json:"recipientType,omitempty"`
	// RecipientID は受信者のユーザーID。
	RecipientID int64 `json:"recipientId,omitempty"`
	// ChatType はチャットの種類。チャット通知のみ。
	ChatType string `json:"chatType,omitempty"`
	// ChatID はチャットスレッドのID。チャット通知のみ。
	ChatID int64 `json:"chatId,omitempty"`
	// ConsentRequestID は同意リクエストのID。同意リクエスト通知のみ。
	ConsentRequestID int64 `json:"consentRequestId,omitempty"`
}

// Pushed はリアルタイムチャネルで配信される通知イベント。
// 保存はせず、一覧の再取得のきっかけとしてのみ使う。
type Pushed struct {
	// Type は配信元が付与したカテゴリ種別。省略されることがある。
	Type string `json:"type,omitempty"`
	// ID は作成された通知のID。
	ID int64 `json:"id,omitempty"`
	// Message は通知メッセージ。
	Message string `json:"message"`
	// RecipientType は受信者の種別。
	RecipientType string `json:"recipientType,omitempty"`
	// RecipientID は配信先のユーザーID。
	RecipientID int64 `json:"recipientId,omitempty"`
	// ChatType はチャットの種類。
	ChatType *string `json:"chatType,omitempty"`
	// ChatID はチャットスレッドのID。
	ChatID *int64 `json:"chatId,omitempty"`
	// ConsentRequestID は同意リクエストのID。
	ConsentRequestID *int64 `json:"consentRequestId,omitempty"`
}

// Category はペイロードからカテゴリを推定する。
// type フィールドを優先し、なければカテゴリ固有のフィールドの有無で判定する。
// 固有フィールドを持たないペイロードは一方向通知とみなす。
// 解釈できない type の場合だけ判定できない。
func (p Pushed) Category() (Category, bool) {
	if p.Type != "" {
		c, err := ParseCategory(p.Type)
		if err != nil {
			return "", false
		}
		return c, true
	}
	switch {
	case p.ChatID != nil || p.ChatType != nil:
		return CategoryChat, true
	case p.ConsentRequestID != nil:
		return CategoryConsent, true
	}
	return CategoryOneWay, true
}

// NewPushed は作成された通知からプッシュイベントを組み立てる。
func NewPushed(c Category, item Item) Pushed {
	p := Pushed{
		Type:          string(c),
		ID:            item.ID,
		Message:       item.Message,
		RecipientType: item.RecipientType,
		RecipientID:   item.RecipientID,
	}
	switch c {
	case CategoryChat:
		chatType, chatID := item.ChatType, item.ChatID
		p.ChatType = &chatType
		p.ChatID = &chatID
	case CategoryConsent:
		consentID := item.ConsentRequestID
		p.ConsentRequestID = &consentID
	}
	return p
}

// Message はデバッグ用のフェイクイベントの本文。
// 本来はメッセージキュー経由で届く通知作成イベントと同じ形。
type Message struct {
	// Type は "CHAT", "CONSENT", "ONE_WAY" のいずれか。
	Type string `json:"type"`
	// Body は通知メッセージ。
	Body string `json:"body"`
	// RecipientID は受信者のユーザーID。
	RecipientID int64 `json:"recipientId"`
}

// ErrorBody はバックエンドのエラーレスポンス形式。
type ErrorBody struct {
	// Timestamp はエラー発生日時。
	Timestamp string `json:"timestamp,omitempty"`
	// Status はHTTPステータスコード。
	Status int `json:"status,omitempty"`
	// Error はステータスの説明（例: "Not Found"）。
	Error string `json:"error,omitempty"`
	// Message はサーバーが返した詳細メッセージ。
	Message string `json:"message,omitempty"`
	// Path はリクエストパス。
	Path string `json:"path,omitempty"`
}
