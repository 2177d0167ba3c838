package devserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/nao1215/notifysync/internal/realtime"
	"github.com/nao1215/notifysync/pkg/event"
	"github.com/nao1215/notifysync/pkg/middleware"
	"github.com/nao1215/notifysync/pkg/migration"
)

// レスポンスの確認メッセージ。
const (
	msgSent       = "Notification sent successfully!!"
	msgDeleted    = "Notification deleted successfully!!"
	msgDeletedAll = "Notifications deleted successfully!!"
	msgEventSent  = "Event Sent to Queue!"
)

// Config は開発用バックエンドの設定。
type Config struct {
	// Port はリッスンポート。
	Port string
	// DBPath はSQLiteのファイルパス。空の場合はインメモリ。
	DBPath string
	// TokenSecret はトークン検証用の秘密鍵。空の場合は署名を検証しない。
	TokenSecret string
	// AllowedOrigins はCORSで許可するオリジン。
	AllowedOrigins []string
	// Seed は初期データを投入するかどうか。
	Seed bool
	// Logger はログ出力先。
	Logger *zap.Logger
}

// Server は開発用の通知バックエンド。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// db はSQLiteデータベース接続。
	db *sql.DB
	// repo は通知とユーザーの永続化。
	repo *Repository
	// broker はプッシュ配信のブローカー。
	broker *Broker
	// secret はトークン検証用の秘密鍵。
	secret string
	// logger はログ出力先。
	logger *zap.Logger
	// httpServer はRunで起動するHTTPサーバー。
	httpServer *http.Server
}

// NewServer は新しい開発用バックエンドを生成する。
// SQLiteデータベースの初期化とスキーマ作成を行う。
func NewServer(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	dsn := ":memory:"
	if cfg.DBPath != "" {
		dsn = cfg.DBPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	// SQLiteへの書き込みは1接続に直列化する
	sqlDB.SetMaxOpenConns(1)

	if err := initSchema(context.Background(), sqlDB, logger.Named("migration")); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	repo := NewRepository(sqlDB)
	if cfg.Seed {
		if err := seed(context.Background(), repo); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("初期データの投入に失敗: %w", err)
		}
	}

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestLogger(logger.Named("http")))
	if len(cfg.AllowedOrigins) > 0 {
		router.Use(middleware.CORS(cfg.AllowedOrigins))
	}

	s := &Server{
		router: router,
		db:     sqlDB,
		repo:   repo,
		broker: NewBroker(logger.Named("broker")),
		secret: cfg.TokenSecret,
		logger: logger,
	}
	s.setupRoutes()
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// Handler はHTTPハンドラーを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Broker はプッシュ配信のブローカーを返す。
func (s *Server) Broker() *Broker {
	return s.broker
}

// Repository は通知とユーザーの永続化を返す。
func (s *Server) Repository() *Repository {
	return s.repo
}

// Run はHTTPサーバーを起動する。Shutdownが呼ばれるまで戻らない。
func (s *Server) Run() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown はHTTPサーバーとブローカーを停止し、データベースを閉じる。
func (s *Server) Shutdown(ctx context.Context) error {
	s.broker.Close()
	return errors.Join(s.httpServer.Shutdown(ctx), s.db.Close())
}

// route はカテゴリごとのエンドポイント。
type route struct {
	category  event.Category
	list      string
	create    string
	deleteOne string
	deleteAll string
}

// routes は通知APIのエンドポイント一覧。
var routes = []route{
	{
		category:  event.CategoryChat,
		list:      "/getAllChatNotifications",
		create:    "/sendChatNotification",
		deleteOne: "/deleteChatNotification/:id",
		deleteAll: "/deleteAllChatNotifications",
	},
	{
		category:  event.CategoryConsent,
		list:      "/getAllConsentRequestNotifications",
		create:    "/sendConsentRequestNotification",
		deleteOne: "/deleteConsentRequestNotification/:id",
		deleteAll: "/deleteAllConsentRequestNotifications",
	},
	{
		category:  event.CategoryOneWay,
		list:      "/getAllOneWayNotifications",
		create:    "/sendOneWayNotification",
		deleteOne: "/deleteOneWayNotification/:id",
		deleteAll: "/deleteAllOneWayNotifications",
	},
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	notifications := s.router.Group("/notifications")
	notifications.Use(middleware.BearerAuth(s.secret))
	for _, r := range routes {
		notifications.GET(r.list, s.handleList(r.category))
		notifications.POST(r.create, s.handleCreate(r.category))
		notifications.DELETE(r.deleteOne, s.handleDeleteOne(r.category))
		notifications.DELETE(r.deleteAll, s.handleDeleteAll(r.category))
	}

	debug := s.router.Group("/debug")
	debug.Use(middleware.BearerAuth(s.secret))
	debug.POST("/fake-event", s.handleFakeEvent())

	// SockJSの生WebSocketエンドポイント
	s.router.GET("/ws/websocket", gin.WrapH(s.broker))

	s.router.GET("/health", s.handleHealth())
}

// handleHealth はサービスの状態とスキーマバージョンを返すハンドラ。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		version, err := migration.New(s.db, nil).Current(c.Request.Context())
		if err != nil {
			middleware.AbortWithError(c, http.StatusServiceUnavailable, "データベースに接続できません")
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "notification", "schemaVersion": version})
	}
}

// handleList は認証済みユーザー宛の通知一覧を返すハンドラ。
func (s *Server) handleList(category event.Category) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := middleware.GetSession(c)
		if !ok {
			middleware.AbortWithError(c, http.StatusForbidden, "ユーザーが取得できません")
			return
		}

		items, err := s.repo.List(c.Request.Context(), category, string(session.Role), session.UserID)
		if err != nil {
			s.logger.Error("failed to list notifications", zap.String("category", string(category)), zap.Error(err))
			middleware.AbortWithError(c, http.StatusInternalServerError, "通知一覧の取得に失敗しました")
			return
		}

		c.JSON(http.StatusOK, items)
	}
}

// sendRequest は通知作成リクエストのJSON構造。
type sendRequest struct {
	// Message は通知メッセージ。
	Message string `json:"message" binding:"required"`
	// RecipientType は受信者の種別。
	RecipientType string `json:"recipientType" binding:"required"`
	// RecipientID は受信者のユーザーID。
	RecipientID int64 `json:"recipientId" binding:"required"`
	// ChatType はチャットの種類。
	ChatType string `json:"chatType"`
	// ChatID はチャットスレッドのID。
	ChatID int64 `json:"chatId"`
	// ConsentRequestID は同意リクエストのID。
	ConsentRequestID int64 `json:"consentRequestId"`
}

// handleCreate は通知を作成し、受信者のトピックに配信するハンドラ。
func (s *Server) handleCreate(category event.Category) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.AbortWithError(c, http.StatusBadRequest, fmt.Sprintf("リクエストが不正です: %v", err))
			return
		}

		item := event.Item{
			Message:          req.Message,
			RecipientType:    req.RecipientType,
			RecipientID:      req.RecipientID,
			ChatType:         req.ChatType,
			ChatID:           req.ChatID,
			ConsentRequestID: req.ConsentRequestID,
		}
		status, err := s.create(c.Request.Context(), category, item)
		if err != nil {
			middleware.AbortWithError(c, status, err.Error())
			return
		}

		c.String(http.StatusOK, msgSent)
	}
}

// 作成時の検証エラー。
var (
	errRecipientNotFound     = errors.New("Recipient not found")
	errInvalidChat           = errors.New("Invalid chat")
	errInvalidConsentRequest = errors.New("Invalid consent request")
)

// validChatTypes は有効なチャットの種類。
var validChatTypes = map[string]struct{}{
	"PRIVATE": {},
	"GROUP":   {},
}

// create は受信者とカテゴリ固有の項目を検証して通知を保存し、配信する。
// 失敗時はHTTPステータスとエラーを返す。
func (s *Server) create(ctx context.Context, category event.Category, item event.Item) (int, error) {
	if _, err := s.repo.UserRole(ctx, item.RecipientID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return http.StatusNotFound, errRecipientNotFound
		}
		s.logger.Error("failed to look up recipient", zap.Error(err))
		return http.StatusInternalServerError, errors.New("受信者の確認に失敗しました")
	}

	switch category {
	case event.CategoryChat:
		if _, ok := validChatTypes[item.ChatType]; !ok || item.ChatID <= 0 {
			return http.StatusBadRequest, errInvalidChat
		}
	case event.CategoryConsent:
		if item.ConsentRequestID <= 0 {
			return http.StatusBadRequest, errInvalidConsentRequest
		}
	}

	created, err := s.repo.Create(ctx, category, item)
	if err != nil {
		s.logger.Error("failed to create notification", zap.String("category", string(category)), zap.Error(err))
		return http.StatusInternalServerError, errors.New("通知の作成に失敗しました")
	}

	s.push(category, created)
	return http.StatusOK, nil
}

// push は作成された通知を受信者のトピックに配信する。
func (s *Server) push(category event.Category, item event.Item) {
	body, err := json.Marshal(event.NewPushed(category, item))
	if err != nil {
		s.logger.Error("failed to encode push", zap.Error(err))
		return
	}
	topic := realtime.Topic(item.RecipientID)
	n := s.broker.Publish(topic, body)
	s.logger.Debug("pushed", zap.String("topic", topic), zap.Int("deliveries", n))
}

// handleDeleteOne は認証済みユーザー宛の通知を1件削除するハンドラ。
func (s *Server) handleDeleteOne(category event.Category) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := middleware.GetSession(c)
		if !ok {
			middleware.AbortWithError(c, http.StatusForbidden, "ユーザーが取得できません")
			return
		}

		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			middleware.AbortWithError(c, http.StatusBadRequest, "通知IDが不正です")
			return
		}

		// 通知の存在確認と所有者チェック
		item, err := s.repo.Get(c.Request.Context(), category, id)
		if errors.Is(err, ErrNotFound) {
			middleware.AbortWithError(c, http.StatusNotFound, "Couldn't find a notification with the given ID")
			return
		}
		if err != nil {
			s.logger.Error("failed to get notification", zap.Error(err))
			middleware.AbortWithError(c, http.StatusInternalServerError, "通知の取得に失敗しました")
			return
		}
		if item.RecipientID != session.UserID || item.RecipientType != string(session.Role) {
			middleware.AbortWithError(c, http.StatusForbidden, "Permission denied!")
			return
		}

		if err := s.repo.Delete(c.Request.Context(), category, id); err != nil {
			s.logger.Error("failed to delete notification", zap.Error(err))
			middleware.AbortWithError(c, http.StatusInternalServerError, "通知の削除に失敗しました")
			return
		}

		c.String(http.StatusOK, msgDeleted)
	}
}

// handleDeleteAll は認証済みユーザー宛の通知をすべて削除するハンドラ。
func (s *Server) handleDeleteAll(category event.Category) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := middleware.GetSession(c)
		if !ok {
			middleware.AbortWithError(c, http.StatusForbidden, "ユーザーが取得できません")
			return
		}

		if _, err := s.repo.DeleteAll(c.Request.Context(), category, string(session.Role), session.UserID); err != nil {
			s.logger.Error("failed to delete notifications", zap.Error(err))
			middleware.AbortWithError(c, http.StatusInternalServerError, "通知の一括削除に失敗しました")
			return
		}

		c.String(http.StatusOK, msgDeletedAll)
	}
}

// fakeEventCategories はフェイクイベントの種別とカテゴリの対応。
var fakeEventCategories = map[string]event.Category{
	"CHAT":    event.CategoryChat,
	"CONSENT": event.CategoryConsent,
	"ONE_WAY": event.CategoryOneWay,
}

// handleFakeEvent はメッセージキュー経由の通知作成イベントを模擬するハンドラ。
// 受信者の種別はユーザーテーブルから決め、カテゴリ固有の項目は既定値を使う。
func (s *Server) handleFakeEvent() gin.HandlerFunc {
	return func(c *gin.Context) {
		var msg event.Message
		if err := c.ShouldBindJSON(&msg); err != nil {
			middleware.AbortWithError(c, http.StatusBadRequest, fmt.Sprintf("リクエストが不正です: %v", err))
			return
		}

		category, ok := fakeEventCategories[msg.Type]
		if !ok {
			middleware.AbortWithError(c, http.StatusBadRequest, fmt.Sprintf("不明なイベント種別です: %q", msg.Type))
			return
		}

		role, err := s.repo.UserRole(c.Request.Context(), msg.RecipientID)
		if errors.Is(err, ErrNotFound) {
			middleware.AbortWithError(c, http.StatusNotFound, errRecipientNotFound.Error())
			return
		}
		if err != nil {
			middleware.AbortWithError(c, http.StatusInternalServerError, "受信者の確認に失敗しました")
			return
		}

		item := event.Item{
			Message:          msg.Body,
			RecipientType:    string(role),
			RecipientID:      msg.RecipientID,
			ChatType:         "PRIVATE",
			ChatID:           99,
			ConsentRequestID: 888,
		}
		if status, err := s.create(c.Request.Context(), category, item); err != nil {
			middleware.AbortWithError(c, status, err.Error())
			return
		}

		c.String(http.StatusOK, msgEventSent)
	}
}
