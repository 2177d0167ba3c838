// Package devserver は開発とテスト用の通知バックエンドを提供する。
//
// 3カテゴリの通知のREST API、ユーザーごとのトピックへのSTOMPプッシュ配信、
// デバッグ用のフェイクイベント投入を1プロセスで提供する。
// 通知とユーザーはSQLiteに保存し、起動時に初期データを投入できる。
package devserver
