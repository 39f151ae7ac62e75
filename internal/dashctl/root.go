// Package dashctl はゲートウェイを操作するコマンドラインツールのコマンド定義を提供する。
package dashctl

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/opsdash/pkg/httpclient"
)

// EnvGatewayURL はゲートウェイのURLを指定する環境変数。
const EnvGatewayURL = "OPSDASH_GATEWAY_URL"

// defaultGatewayURL はゲートウェイURLのデフォルト値。
const defaultGatewayURL = "http://localhost:3000"

// options はルートコマンドの共通フラグ。
type options struct {
	// gatewayURL はゲートウェイのベースURL。
	gatewayURL string
	// sessionFile はセッションを保存するファイルのパス。
	sessionFile string
}

// client はフラグに従ってゲートウェイクライアントを生成する。
func (o *options) client() (*httpclient.Client, error) {
	path := o.sessionFile
	if path == "" {
		p, err := httpclient.DefaultSessionPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return httpclient.New(o.gatewayURL, httpclient.WithSessionStore(httpclient.NewFileStore(path))), nil
}

// NewRootCommand はdashctlのルートコマンドを生成する。
func NewRootCommand() *cobra.Command {
	opts := &options{}

	gatewayURL := os.Getenv(EnvGatewayURL)
	if gatewayURL == "" {
		gatewayURL = defaultGatewayURL
	}

	cmd := &cobra.Command{
		Use:           "dashctl",
		Short:         "運用ダッシュボードのゲートウェイを操作する",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.gatewayURL, "gateway", gatewayURL, "ゲートウェイのURL（"+EnvGatewayURL+"）")
	cmd.PersistentFlags().StringVar(&opts.sessionFile, "session-file", "", "セッションファイルのパス（未指定時はユーザー設定ディレクトリ）")

	cmd.AddCommand(
		newLoginCommand(opts),
		newLogoutCommand(opts),
		newStatusCommand(opts),
		newListCommand(opts),
		newGetCommand(opts),
		newCreateCommand(opts),
		newUpdateCommand(opts),
		newDeleteCommand(opts),
		NewHashCommand(),
	)
	return cmd
}

// readSecret は入力の1行目を読み取る。末尾の改行は取り除く。
func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("標準入力の読み込みに失敗: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("パスワードが入力されていません")
	}
	return line, nil
}

// parseFields は key=value（文字列）または key:=json（JSON値）形式の引数をレコードに変換する。
func parseFields(args []string) (httpclient.Record, error) {
	fields := make(httpclient.Record, len(args))
	for _, arg := range args {
		if key, raw, ok := strings.Cut(arg, ":="); ok && key != "" && !strings.Contains(key, "=") {
			var v any
			if err := json.Unmarshal([]byte(raw), &v); err != nil {
				return nil, fmt.Errorf("%s: JSONとして解釈できません: %w", key, err)
			}
			fields[key] = v
			continue
		}
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%q: key=value または key:=json の形式で指定してください", arg)
		}
		fields[key] = value
	}
	return fields, nil
}

// printJSON は値を整形したJSONとして出力する。
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
