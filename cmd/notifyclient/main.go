// 通知クライアントのエントリポイント。
// 通知の一覧、作成、削除とプッシュ購読をコマンドラインから行う。
package main

import (
	"os"

	"github.com/nao1215/notifysync/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		cli.ReportError(os.Stderr, err)
		os.Exit(1)
	}
}
