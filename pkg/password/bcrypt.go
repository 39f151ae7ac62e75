package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// redacted はダイジェストを表示する代わりに出力する文字列。
const redacted = "[REDACTED]"

// MaxLength はbcryptが扱えるパスワードの最大バイト数。
const MaxLength = 72

var (
	// ErrEmptyPassword は空のパスワードをハッシュ化しようとした場合のエラー。
	ErrEmptyPassword = errors.New("password: パスワードが空です")
	// ErrPasswordTooLong はMaxLengthを超えるパスワードをハッシュ化しようとした場合のエラー。
	ErrPasswordTooLong = fmt.Errorf("password: パスワードは%dバイト以下にしてください", MaxLength)
)

// Hasher はパスワードのハッシュ化と照合を抽象化する。
type Hasher interface {
	// Hash は平文パスワードからソルト付きダイジェストを生成する。
	Hash(plaintext string) (Digest, error)
	// Verify は平文パスワードがダイジェストと一致するかを判定する。
	Verify(plaintext string, digest Digest) bool
}

// Digest はbcryptで生成されたパスワードダイジェスト。
// 生成後は不変であり、値そのものはパッケージ外に公開しない。
type Digest struct {
	value []byte
}

// ParseDigest は文字列形式のbcryptダイジェストを検証してDigestに変換する。
// コストやソルトが読み取れない場合はエラーを返す。
func ParseDigest(encoded string) (Digest, error) {
	if encoded == "" {
		return Digest{}, errors.New("password: ダイジェストが空です")
	}
	if _, err := bcrypt.Cost([]byte(encoded)); err != nil {
		return Digest{}, fmt.Errorf("password: bcryptダイジェストの形式が不正です: %w", err)
	}
	return Digest{value: []byte(encoded)}, nil
}

// IsZero はダイジェストが未設定かどうかを返す。
func (d Digest) IsZero() bool {
	return len(d.value) == 0
}

// Cost はダイジェストに埋め込まれたbcryptのコスト係数を返す。
func (d Digest) Cost() (int, error) {
	return bcrypt.Cost(d.value)
}

// Encoded はダイジェストを設定ファイルへ書き出すための文字列として返す。
// hashgenコマンド以外から呼び出してはならない。
func (d Digest) Encoded() string {
	return string(d.value)
}

// String はfmt系の出力でダイジェストが漏れないよう伏せ字を返す。
func (d Digest) String() string {
	return redacted
}

// GoString は%#vの出力でも伏せ字を返す。
func (d Digest) GoString() string {
	return "password.Digest{" + redacted + "}"
}

// MarshalJSON はJSON化の際に伏せ字を返す。
func (d Digest) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

// Bcrypt はbcryptを使ったHasherの実装。
type Bcrypt struct {
	// Cost はハッシュ生成時のコスト係数。0の場合はbcrypt.DefaultCostを使う。
	Cost int
}

// NewBcrypt は指定したコスト係数のBcryptを生成する。
func NewBcrypt(cost int) *Bcrypt {
	return &Bcrypt{Cost: cost}
}

// Hash は平文パスワードからbcryptダイジェストを生成する。
func (b *Bcrypt) Hash(plaintext string) (Digest, error) {
	if plaintext == "" {
		return Digest{}, ErrEmptyPassword
	}
	if len(plaintext) > MaxLength {
		return Digest{}, ErrPasswordTooLong
	}
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		return Digest{}, fmt.Errorf("password: ハッシュの生成に失敗: %w", err)
	}
	return Digest{value: hashed}, nil
}

// Verify は平文パスワードがダイジェストと一致するかを判定する。
// ダイジェストに埋め込まれたソルトとコストで再計算し、定数時間で比較する。
// bcryptは先頭MaxLengthバイトしか参照しないため、それより長い入力は常に不一致とする。
func (b *Bcrypt) Verify(plaintext string, digest Digest) bool {
	if plaintext == "" || len(plaintext) > MaxLength || digest.IsZero() {
		return false
	}
	return bcrypt.CompareHashAndPassword(digest.value, []byte(plaintext)) == nil
}
