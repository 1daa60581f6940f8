// Package model はドメインモデルを定義する。
package model

import "time"

// ConversationState はユーザーごとの会話状態を表す。
type ConversationState string

const (
	// StateIdle は待機状態。セッションマップに存在しない場合と等価。
	StateIdle ConversationState = "idle"
	// StateAwaitingPassword はパスワード入力待ち状態。
	StateAwaitingPassword ConversationState = "awaiting_password"
	// StateAwaitingPhoto は画像送信待ち状態。
	StateAwaitingPhoto ConversationState = "awaiting_photo"
	// StateAwaitingPrompt はプロンプト送信待ち状態。
	StateAwaitingPrompt ConversationState = "awaiting_prompt"
	// StateAwaitingTitle はタイトル送信待ち状態。
	StateAwaitingTitle ConversationState = "awaiting_title"
)

// EventKind は受信イベントの種別を表す。
type EventKind string

const (
	// EventKindText はテキストメッセージ。
	EventKindText EventKind = "text"
	// EventKindPhoto は画像メッセージ。
	EventKindPhoto EventKind = "photo"
)

// InboundEvent は会話トランスポートから届く受信イベント。
// トランスポート固有の形式はbotapiパッケージで変換され、
// ステートマシンはこの最小形のみを扱う。
type InboundEvent struct {
	SenderID string
	Kind     EventKind
	Text     string    // Kind == EventKindText の場合のみ有効
	ImageRef string    // Kind == EventKindPhoto の場合のみ有効
}

// Draft は組み立て中の投稿。完成するまで永続化されない。
// フィールドは画像 → プロンプト → タイトルの順に厳密に設定される。
type Draft struct {
	ImageRef string
	Prompt   string
	Title    string
}

// Complete は3フィールドすべてが設定済みかを返す。
func (d *Draft) Complete() bool {
	return d.ImageRef != "" && d.Prompt != "" && d.Title != ""
}

// PendingItem は完成済みで未取り込みの投稿。
// 保留キューに追加された後は取り込みジョブが処理するまでイミュータブル。
type PendingItem struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	ImageRef  string    `json:"image_ref"`
	Prompt    string    `json:"prompt"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// CatalogEntry は取り込み済み投稿のカタログレコード。
// 追記専用で、作成後に変更されることはない。
// DateはYYYY-MM-DD形式の取り込み日。
type CatalogEntry struct {
	Title      string `json:"title"`
	ImagePath  string `json:"image_path"`
	PromptPath string `json:"prompt_path"`
	Date       string `json:"date"`
}
