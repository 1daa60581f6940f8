// Package model はドメインモデルを定義する。
package model

import "fmt"

// BotError はボット応答に紐づくドメインエラーを表す。
// ユーザーに返す文言と内部分類を持つ。
type BotError struct {
	Code     string // エラーコード
	Message  string // ユーザー向けメッセージ
	Category string // カテゴリ: auth, intake, fulfill, storage
}

// Error はerrorインターフェースを実装する。
func (e *BotError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAuthFailure        = "AUTH_FAILURE"
	ErrCodeNotAuthorized      = "NOT_AUTHORIZED"
	ErrCodeContentUnavailable = "CONTENT_UNAVAILABLE"
	ErrCodeStorageFailure     = "STORAGE_FAILURE"
	ErrCodeEntryNotFound      = "ENTRY_NOT_FOUND"
)

// NewAuthFailureError はパスワード不一致エラーを生成する。
// ユーザーはAwaitingPassword状態に留まり再入力できる。
func NewAuthFailureError() *BotError {
	return &BotError{
		Code:     ErrCodeAuthFailure,
		Message:  "パスワードが違います。もう一度入力してください。",
		Category: "auth",
	}
}

// NewNotAuthorizedError は未認証ユーザーの投稿開始エラーを生成する。
func NewNotAuthorizedError() *BotError {
	return &BotError{
		Code:     ErrCodeNotAuthorized,
		Message:  "認証が必要です。先に /start を実行してください。",
		Category: "auth",
	}
}

// NewContentUnavailableError は画像参照の解決失敗エラーを生成する。
func NewContentUnavailableError(imageRef, reason string) *BotError {
	return &BotError{
		Code:     ErrCodeContentUnavailable,
		Message:  fmt.Sprintf("画像参照を解決できませんでした: %s (%s)", imageRef, reason),
		Category: "fulfill",
	}
}

// NewStorageFailureError は永続化失敗エラーを生成する。
func NewStorageFailureError(reason string) *BotError {
	return &BotError{
		Code:     ErrCodeStorageFailure,
		Message:  fmt.Sprintf("保存に失敗しました: %s", reason),
		Category: "storage",
	}
}

// NewEntryNotFoundError はカタログ検索の未検出エラーを生成する。
func NewEntryNotFoundError(title string) *BotError {
	return &BotError{
		Code:     ErrCodeEntryNotFound,
		Message:  fmt.Sprintf("該当するタイトルの投稿が見つかりません: %s", title),
		Category: "intake",
	}
}
