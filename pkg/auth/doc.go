// Package auth はクライアントのセッションと認証トークンの生成を提供する。
//
// バックエンドへのすべてのリクエストはセッション（ユーザーIDとロール）から
// 生成したBearerトークンを付与する。トークン生成はBuilderインターフェースで
// 差し替え可能にしており、署名なしの疑似JWTと、HS256署名付きJWTを用意している。
package auth
