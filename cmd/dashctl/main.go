// 運用ダッシュボードのゲートウェイを操作するコマンドラインツール。
// ログイン状態をローカルのセッションファイルに保存し、レコードの一覧・作成・更新・削除を行う。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/nao1215/opsdash/internal/dashctl"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := dashctl.NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "エラー: %v\n", err)
		stop()
		os.Exit(1)
	}
}
