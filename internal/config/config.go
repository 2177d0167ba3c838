// Package config は環境変数と .env ファイルから実行時設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/nao1215/notifysync/pkg/auth"
)

// 既定値。
const (
	defaultAPIURL      = "http://localhost:8080/notifications"
	defaultWSURL       = "ws://localhost:8080/ws/websocket"
	defaultUserID      = "1"
	defaultRole        = "PATIENT"
	defaultHTTPTimeout = "30s"
	defaultLogLevel    = "info"
	defaultPort        = "8080"
	defaultOrigins     = "http://localhost:3000,http://localhost:5173,http://127.0.0.1:5500"
)

// Config はクライアントと開発用バックエンドの設定。
type Config struct {
	// APIURL は通知APIのベースURL。
	APIURL string
	// WSURL はリアルタイム配信のWebSocket URL。
	WSURL string
	// Session は初期のユーザー。
	Session auth.Session
	// TokenSecret はトークン署名用の秘密鍵。空の場合は署名なしの疑似トークン。
	TokenSecret string
	// HTTPTimeout はHTTPリクエストのタイムアウト。
	HTTPTimeout time.Duration
	// LogLevel はログレベル。
	LogLevel string
	// LogFile はログファイルのパス。空の場合はファイル出力しない。
	LogFile string
	// Port は開発用バックエンドのリッスンポート。
	Port string
	// DBPath は開発用バックエンドのSQLiteファイル。空の場合はインメモリ。
	DBPath string
	// AllowedOrigins は開発用バックエンドでCORSを許可するオリジン。
	AllowedOrigins []string
}

// Load は .env を読み込んだ後、環境変数から設定を組み立てる。
// .env が存在しない場合は環境変数だけを使う。
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf(".envの読み込みに失敗: %w", err)
	}

	userID, err := strconv.ParseInt(getEnvOr("NOTIFY_USER_ID", defaultUserID), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("NOTIFY_USER_ID が不正です: %w", err)
	}
	role, err := auth.ParseRole(getEnvOr("NOTIFY_ROLE", defaultRole))
	if err != nil {
		return nil, fmt.Errorf("NOTIFY_ROLE が不正です: %w", err)
	}
	timeout, err := time.ParseDuration(getEnvOr("NOTIFY_HTTP_TIMEOUT", defaultHTTPTimeout))
	if err != nil {
		return nil, fmt.Errorf("NOTIFY_HTTP_TIMEOUT が不正です: %w", err)
	}

	return &Config{
		APIURL:         strings.TrimRight(getEnvOr("NOTIFY_API_URL", defaultAPIURL), "/"),
		WSURL:          getEnvOr("NOTIFY_WS_URL", defaultWSURL),
		Session:        auth.Session{UserID: userID, Role: role},
		TokenSecret:    os.Getenv("NOTIFY_TOKEN_SECRET"),
		HTTPTimeout:    timeout,
		LogLevel:       getEnvOr("LOG_LEVEL", defaultLogLevel),
		LogFile:        os.Getenv("LOG_FILE"),
		Port:           getEnvOr("PORT", defaultPort),
		DBPath:         os.Getenv("DB_PATH"),
		AllowedOrigins: splitList(getEnvOr("CORS_ALLOWED_ORIGINS", defaultOrigins)),
	}, nil
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// splitList はカンマ区切りの値を分割する。空の要素は除く。
func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
