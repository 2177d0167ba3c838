package devserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/notifysync/pkg/auth"
	"github.com/nao1215/notifysync/pkg/event"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// setupTestServer はシード済みのインメモリDBでテスト用サーバーを作成する。
func setupTestServer(t *testing.T) *Server {
	t.Helper()

	s, err := NewServer(Config{Seed: true})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

// token はテスト用の疑似トークンを作成する。
func token(t *testing.T, role auth.Role, id int64) string {
	t.Helper()

	tok, err := auth.Simulated{}.Build(auth.Session{UserID: id, Role: role})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return tok
}

// request はBearerトークン付きでリクエストを送る。
func request(s *Server, method, path, tok, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if tok != "" {
		req.Header.Set("Authorization", auth.Bearer(tok))
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeItems(t *testing.T, w *httptest.ResponseRecorder) []event.Item {
	t.Helper()

	var items []event.Item
	if err := json.Unmarshal(w.Body.Bytes(), &items); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v (body=%s)", err, w.Body.String())
	}
	return items
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) event.ErrorBody {
	t.Helper()

	var body event.ErrorBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("エラーレスポンスのデコードに失敗: %v (body=%s)", err, w.Body.String())
	}
	return body
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	s := setupTestServer(t)
	w := request(s, http.MethodGet, "/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body struct {
		Status        string `json:"status"`
		SchemaVersion int    `json:"schemaVersion"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if body.SchemaVersion != 2 {
		t.Errorf("schemaVersion = %d, want 2", body.SchemaVersion)
	}
}

func TestListNotifications(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		path  string
		role  auth.Role
		id    int64
		count int
	}{
		{"患者1のチャット通知", "/notifications/getAllChatNotifications", auth.RolePatient, 1, 1},
		{"医師2のチャット通知", "/notifications/getAllChatNotifications", auth.RoleDoctor, 2, 1},
		{"患者1の同意リクエスト通知", "/notifications/getAllConsentRequestNotifications", auth.RolePatient, 1, 1},
		{"患者1の一方向通知", "/notifications/getAllOneWayNotifications", auth.RolePatient, 1, 1},
		{"IDが同じでも種別が異なれば見えない", "/notifications/getAllChatNotifications", auth.RoleDoctor, 1, 0},
		{"通知のない管理者", "/notifications/getAllOneWayNotifications", auth.RoleAdmin, 3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := setupTestServer(t)
			w := request(s, http.MethodGet, tt.path, token(t, tt.role, tt.id), "")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d (body=%s)", w.Code, http.StatusOK, w.Body.String())
			}
			items := decodeItems(t, w)
			if len(items) != tt.count {
				t.Errorf("len(items) = %d, want %d", len(items), tt.count)
			}
			for _, item := range items {
				if item.RecipientID != tt.id || item.RecipientType != string(tt.role) {
					t.Errorf("他人宛の通知が含まれています: %+v", item)
				}
			}
		})
	}
}

func TestListNotifications_EmptyIsArray(t *testing.T) {
	t.Parallel()

	s := setupTestServer(t)
	w := request(s, http.MethodGet, "/notifications/getAllChatNotifications", token(t, auth.RoleAdmin, 3), "")
	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("body = %s, want []", got)
	}
}

func TestAuthRequired(t *testing.T) {
	t.Parallel()

	s := setupTestServer(t)
	w := request(s, http.MethodGet, "/notifications/getAllChatNotifications", "", "")
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if body := decodeError(t, w); body.Status != http.StatusForbidden {
		t.Errorf("body.Status = %d, want %d", body.Status, http.StatusForbidden)
	}
}

func TestSendNotification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		path        string
		body        string
		wantStatus  int
		wantMessage string
	}{
		{
			name:       "チャット通知を作成",
			path:       "/notifications/sendChatNotification",
			body:       `{"message":"hi","recipientType":"PATIENT","recipientId":1,"chatType":"PRIVATE","chatId":99}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "同意リクエスト通知を作成",
			path:       "/notifications/sendConsentRequestNotification",
			body:       `{"message":"consent","recipientType":"PATIENT","recipientId":1,"consentRequestId":888}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "一方向通知を作成",
			path:       "/notifications/sendOneWayNotification",
			body:       `{"message":"notice","recipientType":"PATIENT","recipientId":1}`,
			wantStatus: http.StatusOK,
		},
		{
			name:        "存在しない受信者",
			path:        "/notifications/sendChatNotification",
			body:        `{"message":"hi","recipientType":"PATIENT","recipientId":9999,"chatType":"PRIVATE","chatId":1}`,
			wantStatus:  http.StatusNotFound,
			wantMessage: "Recipient not found",
		},
		{
			name:        "不正なチャット種別",
			path:        "/notifications/sendChatNotification",
			body:        `{"message":"hi","recipientType":"PATIENT","recipientId":1,"chatType":"INVALID_TYPE","chatId":-1}`,
			wantStatus:  http.StatusBadRequest,
			wantMessage: "Invalid chat",
		},
		{
			name:        "不正な同意リクエストID",
			path:        "/notifications/sendConsentRequestNotification",
			body:        `{"message":"consent","recipientType":"PATIENT","recipientId":1,"consentRequestId":-500}`,
			wantStatus:  http.StatusBadRequest,
			wantMessage: "Invalid consent request",
		},
		{
			name:       "必須項目の欠落",
			path:       "/notifications/sendOneWayNotification",
			body:       `{"recipientType":"PATIENT","recipientId":1}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := setupTestServer(t)
			w := request(s, http.MethodPost, tt.path, token(t, auth.RoleDoctor, 2), tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body=%s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus == http.StatusOK {
				if got := w.Body.String(); got != msgSent {
					t.Errorf("body = %q, want %q", got, msgSent)
				}
				return
			}
			if tt.wantMessage != "" {
				if got := decodeError(t, w).Message; got != tt.wantMessage {
					t.Errorf("message = %q, want %q", got, tt.wantMessage)
				}
			}
		})
	}
}

func TestSendNotification_Listed(t *testing.T) {
	t.Parallel()

	s := setupTestServer(t)
	body := `{"message":"new one","recipientType":"PATIENT","recipientId":1}`
	if w := request(s, http.MethodPost, "/notifications/sendOneWayNotification", token(t, auth.RoleAdmin, 3), body); w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	w := request(s, http.MethodGet, "/notifications/getAllOneWayNotifications", token(t, auth.RolePatient, 1), "")
	items := decodeItems(t, w)
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}
	if items[1].Message != "new one" {
		t.Errorf("items[1].Message = %q, want %q", items[1].Message, "new one")
	}
}

func TestDeleteNotification(t *testing.T) {
	t.Parallel()

	// シードのチャット通知はID 1が患者1宛、ID 2が医師2宛
	tests := []struct {
		name        string
		path        string
		role        auth.Role
		id          int64
		wantStatus  int
		wantMessage string
	}{
		{"自分宛の通知を削除", "/notifications/deleteChatNotification/1", auth.RolePatient, 1, http.StatusOK, ""},
		{"存在しない通知", "/notifications/deleteChatNotification/999", auth.RolePatient, 1, http.StatusNotFound, "Couldn't find a notification with the given ID"},
		{"他人宛の通知", "/notifications/deleteChatNotification/2", auth.RolePatient, 1, http.StatusForbidden, "Permission denied!"},
		{"不正なID", "/notifications/deleteChatNotification/abc", auth.RolePatient, 1, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := setupTestServer(t)
			w := request(s, http.MethodDelete, tt.path, token(t, tt.role, tt.id), "")
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body=%s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus == http.StatusOK {
				if got := w.Body.String(); got != msgDeleted {
					t.Errorf("body = %q, want %q", got, msgDeleted)
				}
				return
			}
			if tt.wantMessage != "" {
				if got := decodeError(t, w).Message; got != tt.wantMessage {
					t.Errorf("message = %q, want %q", got, tt.wantMessage)
				}
			}
		})
	}
}

func TestDeleteAllNotifications(t *testing.T) {
	t.Parallel()

	s := setupTestServer(t)
	w := request(s, http.MethodDelete, "/notifications/deleteAllChatNotifications", token(t, auth.RolePatient, 1), "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Body.String(); got != msgDeletedAll {
		t.Errorf("body = %q, want %q", got, msgDeletedAll)
	}

	t.Run("自分宛の通知だけが削除される", func(t *testing.T) {
		n, err := s.Repository().Count(context.Background(), event.CategoryChat)
		if err != nil {
			t.Fatalf("Count() error = %v", err)
		}
		if n != 1 {
			t.Errorf("残りの通知数 = %d, want 1", n)
		}
	})
}

func TestFakeEvent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		wantStatus int
		category   event.Category
	}{
		{"チャットイベント", `{"type":"CHAT","body":"fake chat","recipientId":1}`, http.StatusOK, event.CategoryChat},
		{"同意イベント", `{"type":"CONSENT","body":"fake consent","recipientId":1}`, http.StatusOK, event.CategoryConsent},
		{"一方向イベント", `{"type":"ONE_WAY","body":"fake","recipientId":2}`, http.StatusOK, event.CategoryOneWay},
		{"不明な種別", `{"type":"SMS","body":"x","recipientId":1}`, http.StatusBadRequest, ""},
		{"存在しない受信者", `{"type":"CHAT","body":"x","recipientId":9999}`, http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := setupTestServer(t)
			ctx := context.Background()
			var before int
			if tt.category != "" {
				n, err := s.Repository().Count(ctx, tt.category)
				if err != nil {
					t.Fatalf("Count() error = %v", err)
				}
				before = n
			}

			w := request(s, http.MethodPost, "/debug/fake-event", token(t, auth.RoleAdmin, 3), tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body=%s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.category == "" {
				return
			}
			if got := w.Body.String(); got != msgEventSent {
				t.Errorf("body = %q, want %q", got, msgEventSent)
			}
			after, err := s.Repository().Count(ctx, tt.category)
			if err != nil {
				t.Fatalf("Count() error = %v", err)
			}
			if after != before+1 {
				t.Errorf("通知数 = %d, want %d", after, before+1)
			}
		})
	}
}

func TestRepository_UserRole(t *testing.T) {
	t.Parallel()

	s := setupTestServer(t)
	ctx := context.Background()

	t.Run("登録済みユーザー", func(t *testing.T) {
		role, err := s.Repository().UserRole(ctx, 5)
		if err != nil {
			t.Fatalf("UserRole() error = %v", err)
		}
		if role != auth.RoleRadiologist {
			t.Errorf("role = %v, want %v", role, auth.RoleRadiologist)
		}
	})

	t.Run("未登録ユーザー", func(t *testing.T) {
		if _, err := s.Repository().UserRole(ctx, 9999); err != ErrNotFound {
			t.Errorf("error = %v, want %v", err, ErrNotFound)
		}
	})
}

func TestSeed_Idempotent(t *testing.T) {
	t.Parallel()

	s := setupTestServer(t)
	ctx := context.Background()
	if err := seed(ctx, s.Repository()); err != nil {
		t.Fatalf("seed() error = %v", err)
	}
	for _, c := range event.Categories {
		n, err := s.Repository().Count(ctx, c)
		if err != nil {
			t.Fatalf("Count() error = %v", err)
		}
		if n != len(seedItems[c]) {
			t.Errorf("%s の通知数 = %d, want %d", c, n, len(seedItems[c]))
		}
	}
}
