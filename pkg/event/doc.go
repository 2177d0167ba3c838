// Package event は通知サービスとクライアントの間でやり取りするデータ構造を定義する。
//
// 通知カテゴリ、通知アイテム、リアルタイム配信されるプッシュイベント、
// エラーレスポンスの形式をクライアントと開発用バックエンドで共有する。
package event
