package domain

import "errors"

// エラーの種別。errors.Isで判定する。
var (
	// ErrValidation は必須入力の欠落を表す。
	ErrValidation = errors.New("validation error")
	// ErrConflict はユーザー名の重複を表す。
	ErrConflict = errors.New("conflict")
	// ErrAuthentication は認証情報またはトークンの不正を表す。
	ErrAuthentication = errors.New("authentication error")
	// ErrNotFound はリソースが存在しない、または所有者でないことを表す。
	ErrNotFound = errors.New("not found")
)

// Error はクライアントに返すメッセージと種別を持つエラー。
type Error struct {
	// Kind はエラー種別（ErrValidation等）。
	Kind error
	// Message はクライアントに返す人間可読なメッセージ。
	Message string
}

// Error はメッセージを返す。
func (e *Error) Error() string {
	return e.Message
}

// Unwrap はエラー種別を返す。
func (e *Error) Unwrap() error {
	return e.Kind
}

// Validation は入力不備のエラーを生成する。
func Validation(msg string) error {
	return &Error{Kind: ErrValidation, Message: msg}
}

// Conflict は重複エラーを生成する。
func Conflict(msg string) error {
	return &Error{Kind: ErrConflict, Message: msg}
}

// Unauthenticated は認証エラーを生成する。
func Unauthenticated(msg string) error {
	return &Error{Kind: ErrAuthentication, Message: msg}
}

// NotFound はリソース未検出エラーを生成する。
func NotFound(msg string) error {
	return &Error{Kind: ErrNotFound, Message: msg}
}
