package dashctl

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/opsdash/pkg/httpclient"
)

// newLoginCommand はloginコマンドを生成する。
// パスワードは標準入力の1行目から読み取る。
func newLoginCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "共有パスワードでログインする（パスワードは標準入力から読み取る）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			secret, err := readSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}
			if err := client.Login(cmd.Context(), secret); err != nil {
				return err
			}
			session, err := client.Session()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ログインしました（有効期限: %s）\n", session.ExpiresAt.Local().Format(time.DateTime))
			return nil
		},
	}
}

// newLogoutCommand はlogoutコマンドを生成する。
func newLogoutCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "保存されたセッションを破棄する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			if err := client.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ログアウトしました")
			return nil
		},
	}
}

// newStatusCommand はstatusコマンドを生成する。
func newStatusCommand(opts *options) *cobra.Command {
	var verify bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "ログイン状態を表示する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}

			var session httpclient.Session
			if verify {
				session, err = client.Verify(cmd.Context())
			} else {
				session, err = client.Session()
			}
			if errors.Is(err, httpclient.ErrNotAuthenticated) {
				fmt.Fprintln(cmd.OutOrStdout(), httpclient.StateUnauthenticated)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (expires_at=%s)\n", httpclient.StateAuthenticated, session.ExpiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "ゲートウェイに問い合わせてセッションを確認する")
	return cmd
}

// newListCommand はlistコマンドを生成する。
func newListCommand(opts *options) *cobra.Command {
	var (
		orderBy string
		desc    bool
		asc     bool
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "list <collection>",
		Short: "レコードの一覧を表示する",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}

			lo := httpclient.ListOptions{OrderBy: orderBy, Limit: limit}
			switch {
			case desc && asc:
				return errors.New("--desc と --asc は同時に指定できません")
			case desc:
				lo.Desc = &desc
			case asc:
				f := false
				lo.Desc = &f
			}

			items, err := client.List(cmd.Context(), args[0], lo)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), items)
		},
	}
	cmd.Flags().StringVar(&orderBy, "order-by", "", "並び替えに使う列名")
	cmd.Flags().BoolVar(&desc, "desc", false, "降順で表示する")
	cmd.Flags().BoolVar(&asc, "asc", false, "昇順で表示する")
	cmd.Flags().IntVar(&limit, "limit", 0, "表示する件数の上限")
	return cmd
}

// newGetCommand はgetコマンドを生成する。
func newGetCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <collection> <id>",
		Short: "レコードを1件表示する",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			rec, err := client.Get(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
}

// newCreateCommand はcreateコマンドを生成する。
func newCreateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "create <collection> key=value... | key:=json...",
		Short:   "レコードを作成する",
		Example: "  dashctl create tasks title=棚卸し status=urgent\n  dashctl create purchases item=豆 quantity:=2 price:=12.5",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := parseFields(args[1:])
			if err != nil {
				return err
			}
			client, err := opts.client()
			if err != nil {
				return err
			}
			rec, err := client.Create(cmd.Context(), args[0], fields)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
}

// newUpdateCommand はupdateコマンドを生成する。
func newUpdateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "update <collection> <id> key=value... | key:=json...",
		Short: "レコードを部分更新する",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := parseFields(args[2:])
			if err != nil {
				return err
			}
			client, err := opts.client()
			if err != nil {
				return err
			}
			rec, err := client.Update(cmd.Context(), args[0], args[1], fields)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
}

// newDeleteCommand はdeleteコマンドを生成する。
func newDeleteCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <collection> <id>",
		Short: "レコードを削除する",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			if err := client.Delete(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s/%s を削除しました\n", args[0], args[1])
			return nil
		},
	}
}
