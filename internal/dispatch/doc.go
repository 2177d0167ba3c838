// Package dispatch はプッシュ通知とローカル操作を通知一覧の再取得に振り分ける。
//
// プッシュは表示中のタブに関係なく必ずトーストを出し、
// 該当カテゴリのタブが表示中の場合だけ一覧を再取得する。
// タブ切り替え時は常に再取得する。
package dispatch
