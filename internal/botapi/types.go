// Package botapi はボットプラットフォームAPIのクライアントと
// Webhook更新のデコードを提供する。
package botapi

import (
	"strconv"

	"github.com/hitoshi/promptbox/internal/model"
)

// Update はWebhookで受信する更新。
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// Message は受信メッセージ。
type Message struct {
	From  *User       `json:"from"`
	Text  string      `json:"text"`
	Photo []PhotoSize `json:"photo"`
}

// User はメッセージの送信者。
type User struct {
	ID int64 `json:"id"`
}

// PhotoSize は画像の1解像度分の参照。
// 配列は解像度昇順で届くため、最後の要素が最大解像度。
type PhotoSize struct {
	FileID string `json:"file_id"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ToInboundEvent は更新をステートマシンが扱う受信イベントに変換する。
// 送信者不明・テキストも画像もない更新は変換できない（okがfalse）。
func (u *Update) ToInboundEvent() (*model.InboundEvent, bool) {
	if u.Message == nil || u.Message.From == nil {
		return nil, false
	}

	senderID := strconv.FormatInt(u.Message.From.ID, 10)

	if len(u.Message.Photo) > 0 {
		// 最大解像度の参照を採用する
		largest := u.Message.Photo[len(u.Message.Photo)-1]
		if largest.FileID == "" {
			return nil, false
		}
		return &model.InboundEvent{
			SenderID: senderID,
			Kind:     model.EventKindPhoto,
			ImageRef: largest.FileID,
		}, true
	}

	if u.Message.Text != "" {
		return &model.InboundEvent{
			SenderID: senderID,
			Kind:     model.EventKindText,
			Text:     u.Message.Text,
		}, true
	}

	return nil, false
}
