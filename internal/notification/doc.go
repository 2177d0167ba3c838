// Package notification はカテゴリごとの通知一覧と操作を管理する。
//
// チャット、同意リクエスト、一方向の3カテゴリはエンドポイントと
// 作成ペイロードの形だけが異なるため、1つのStoreをSpecで構成して使う。
// 一覧はlistの成功時にだけ置き換わり、作成や削除では変更しない。
package notification
