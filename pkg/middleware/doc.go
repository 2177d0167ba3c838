// Package middleware は開発用通知バックエンドで使用するGinミドルウェアを提供する。
//
// Bearerトークンからのセッション取得、リクエストログ、パニックリカバリ、
// CORS設定を含む。エラーはすべて通知サービスのエラーレスポンス形式で返す。
package middleware
