// Package realtime はユーザーごとのプッシュ配信の購読を管理する。
//
// 1つのセッションにつき購読は1つだけで、再接続すると以前の購読は破棄される。
// 接続が切れても自動では再接続しない。再接続は利用者がConnectを呼び直す。
package realtime
