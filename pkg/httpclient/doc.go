// Package httpclient は通知サービスへの認証付きHTTP通信を行うクライアントを提供する。
//
// すべてのREST呼び出しはClientを経由する。Clientは現在のセッションから
// Authorizationヘッダーを組み立て、失敗をNETWORK / HTTP_4XX / HTTP_5XX / PARSE に
// 分類し、ログとトーストに通知したうえで呼び出し元にエラーを返す。
package httpclient
