// 共有パスワードのbcryptダイジェストを生成するコマンド。
// 標準入力の1行目をパスワードとして読み取り、ダイジェストを標準出力に書き出す。
//
//	echo -n 'secret' | hashgen --cost 12
package main

import (
	"fmt"
	"os"

	"github.com/nao1215/opsdash/internal/dashctl"
)

func main() {
	cmd := dashctl.NewHashCommand()
	cmd.Use = "hashgen"
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "エラー: %v\n", err)
		os.Exit(1)
	}
}
