package records

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound は指定されたIDのレコードが存在しないことを表す。
	ErrNotFound = errors.New("records: レコードが見つかりません")
	// ErrUnknownCollection は未定義のコレクション名が指定されたことを表す。
	ErrUnknownCollection = errors.New("records: コレクションが存在しません")
	// ErrInvalid は入力値が不正であることを表す。
	ErrInvalid = errors.New("records: 入力値が不正です")
)

// ValidationError はフィールド単位の入力エラー。errors.Is(err, ErrInvalid) が真になる。
type ValidationError struct {
	// Field はエラーの対象となった列名。空の場合はリクエスト全体。
	Field string
	// Reason はエラーの理由。
	Reason string
}

// Error はエラーメッセージを返す。
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrInvalid.Error(), e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrInvalid.Error(), e.Field, e.Reason)
}

// Unwrap はErrInvalidを返す。
func (e *ValidationError) Unwrap() error {
	return ErrInvalid
}
