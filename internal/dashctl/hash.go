package dashctl

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/nao1215/opsdash/pkg/password"
)

// NewHashCommand はパスワードのbcryptダイジェストを生成するコマンドを返す。
// 出力はゲートウェイのpassword_hashにそのまま設定できる。
func NewHashCommand() *cobra.Command {
	var cost int

	cmd := &cobra.Command{
		Use:   "hash",
		Short: "標準入力のパスワードからbcryptダイジェストを生成する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
				return fmt.Errorf("--cost は%dから%dの範囲で指定してください", bcrypt.MinCost, bcrypt.MaxCost)
			}
			secret, err := readSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}
			digest, err := password.NewBcrypt(cost).Hash(secret)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), digest.Encoded())
			return nil
		},
	}
	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcryptのコスト係数")
	return cmd
}
