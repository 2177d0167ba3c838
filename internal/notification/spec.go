package notification

import (
	"fmt"

	"github.com/nao1215/notifysync/pkg/event"
)

// 一覧の描画先ID。
const (
	// ListIDChat はチャット通知一覧の描画先。
	ListIDChat = "chatList"
	// ListIDConsent は同意リクエスト通知一覧の描画先。
	ListIDConsent = "consentList"
	// ListIDOneWay は一方向通知一覧の描画先。
	ListIDOneWay = "onewayList"
)

// CreateFields は通知作成時に呼び出し側が指定する項目。
// ゼロ値の項目はSpecのDefaultsで補われる。
type CreateFields struct {
	// Message は通知メッセージ。
	Message string
	// RecipientType は受信者の種別。
	RecipientType string
	// RecipientID は受信者のユーザーID。
	RecipientID int64
	// ChatType はチャットの種類。チャット通知のみ使う。
	ChatType string
	// ChatID はチャットスレッドのID。チャット通知のみ使う。
	ChatID int64
	// ConsentRequestID は同意リクエストのID。同意リクエスト通知のみ使う。
	ConsentRequestID int64
}

// withDefaults はゼロ値の項目をdefaultsで埋めたコピーを返す。
func (f CreateFields) withDefaults(defaults CreateFields) CreateFields {
	if f.Message == "" {
		f.Message = defaults.Message
	}
	if f.RecipientType == "" {
		f.RecipientType = defaults.RecipientType
	}
	if f.RecipientID == 0 {
		f.RecipientID = defaults.RecipientID
	}
	if f.ChatType == "" {
		f.ChatType = defaults.ChatType
	}
	if f.ChatID == 0 {
		f.ChatID = defaults.ChatID
	}
	if f.ConsentRequestID == 0 {
		f.ConsentRequestID = defaults.ConsentRequestID
	}
	return f
}

// Spec はカテゴリごとのエンドポイントとペイロード形式。
type Spec struct {
	// Category は対象カテゴリ。
	Category event.Category
	// ListID は一覧の描画先ID。
	ListID string
	// ListPath は一覧取得のパス。
	ListPath string
	// CreatePath は作成のパス。
	CreatePath string
	// DeleteOnePath は1件削除のパスを組み立てる。
	DeleteOnePath func(id int64) string
	// DeleteAllPath は全件削除のパス。
	DeleteAllPath string
	// Payload は作成リクエストの本文を組み立てる。
	Payload func(f CreateFields) any
	// Defaults はカテゴリ固有の既定値。
	Defaults CreateFields
}

// chatPayload はチャット通知作成の本文。
type chatPayload struct {
	Message       string `json:"message"`
	RecipientType string `json:"recipientType"`
	RecipientID   int64  `json:"recipientId"`
	ChatType      string `json:"chatType"`
	ChatID        int64  `json:"chatId"`
}

// consentPayload は同意リクエスト通知作成の本文。
type consentPayload struct {
	Message          string `json:"message"`
	RecipientType    string `json:"recipientType"`
	RecipientID      int64  `json:"recipientId"`
	ConsentRequestID int64  `json:"consentRequestId"`
}

// oneWayPayload は一方向通知作成の本文。
type oneWayPayload struct {
	Message       string `json:"message"`
	RecipientType string `json:"recipientType"`
	RecipientID   int64  `json:"recipientId"`
}

// deletePath は "/<prefix>/<id>" 形式のパスを返す関数を作る。
func deletePath(prefix string) func(int64) string {
	return func(id int64) string {
		return fmt.Sprintf("/%s/%d", prefix, id)
	}
}

// ChatSpec はチャット通知の構成。既定のスレッドは PRIVATE の 99。
var ChatSpec = Spec{
	Category:      event.CategoryChat,
	ListID:        ListIDChat,
	ListPath:      "/getAllChatNotifications",
	CreatePath:    "/sendChatNotification",
	DeleteOnePath: deletePath("deleteChatNotification"),
	DeleteAllPath: "/deleteAllChatNotifications",
	Payload: func(f CreateFields) any {
		return chatPayload{
			Message:       f.Message,
			RecipientType: f.RecipientType,
			RecipientID:   f.RecipientID,
			ChatType:      f.ChatType,
			ChatID:        f.ChatID,
		}
	},
	Defaults: CreateFields{RecipientType: "PATIENT", ChatType: "PRIVATE", ChatID: 99},
}

// ConsentSpec は同意リクエスト通知の構成。
var ConsentSpec = Spec{
	Category:      event.CategoryConsent,
	ListID:        ListIDConsent,
	ListPath:      "/getAllConsentRequestNotifications",
	CreatePath:    "/sendConsentRequestNotification",
	DeleteOnePath: deletePath("deleteConsentRequestNotification"),
	DeleteAllPath: "/deleteAllConsentRequestNotifications",
	Payload: func(f CreateFields) any {
		return consentPayload{
			Message:          f.Message,
			RecipientType:    f.RecipientType,
			RecipientID:      f.RecipientID,
			ConsentRequestID: f.ConsentRequestID,
		}
	},
	Defaults: CreateFields{RecipientType: "PATIENT", ConsentRequestID: 888},
}

// OneWaySpec は一方向通知の構成。
var OneWaySpec = Spec{
	Category:      event.CategoryOneWay,
	ListID:        ListIDOneWay,
	ListPath:      "/getAllOneWayNotifications",
	CreatePath:    "/sendOneWayNotification",
	DeleteOnePath: deletePath("deleteOneWayNotification"),
	DeleteAllPath: "/deleteAllOneWayNotifications",
	Payload: func(f CreateFields) any {
		return oneWayPayload{
			Message:       f.Message,
			RecipientType: f.RecipientType,
			RecipientID:   f.RecipientID,
		}
	},
	Defaults: CreateFields{RecipientType: "PATIENT"},
}

// Specs はすべてのカテゴリの構成を表示順に返す。
func Specs() []Spec {
	return []Spec{ChatSpec, ConsentSpec, OneWaySpec}
}

// SpecFor はカテゴリに対応する構成を返す。
func SpecFor(c event.Category) (Spec, error) {
	for _, s := range Specs() {
		if s.Category == c {
			return s, nil
		}
	}
	return Spec{}, fmt.Errorf("不明な通知カテゴリです: %q", c)
}
