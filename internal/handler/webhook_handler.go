// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/promptbox/internal/botapi"
	"github.com/hitoshi/promptbox/internal/model"
)

// webhookSecretHeader はトランスポートがwebhook呼び出しに付与する秘密トークンのヘッダー。
const webhookSecretHeader = "X-Bot-Api-Secret-Token"

const replyRateLimited = "送信が多すぎます。しばらく待ってから再度お試しください。"

// EventDispatcher は受信イベントを処理するインターフェース。
type EventDispatcher interface {
	Dispatch(ctx context.Context, ev *model.InboundEvent) (string, error)
}

// MessageSender はユーザーへの返信送信のインターフェース。
type MessageSender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// EventAllower は送信者ごとのイベントレート制限のインターフェース。
type EventAllower interface {
	Allow(senderID string) bool
}

// WebhookHandler は会話トランスポートからのwebhook更新を処理する。
type WebhookHandler struct {
	dispatcher EventDispatcher
	sender     MessageSender
	limiter    EventAllower
	logger     *slog.Logger
	secret     string
}

// NewWebhookHandler はWebhookHandlerを生成する。
// secretが空の場合はヘッダー検証を行わない。
func NewWebhookHandler(dispatcher EventDispatcher, sender MessageSender, limiter EventAllower, logger *slog.Logger, secret string) *WebhookHandler {
	return &WebhookHandler{
		dispatcher: dispatcher,
		sender:     sender,
		limiter:    limiter,
		logger:     logger,
		secret:     secret,
	}
}

// HandleUpdate はwebhook更新を1件処理する。
// POST /bot/webhook
//
// トランスポートに再送させないため、処理済みの更新には常に200を返す。
// 401はシークレット不一致の場合のみ。
func (h *WebhookHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	if h.secret != "" && r.Header.Get(webhookSecretHeader) != h.secret {
		h.logger.Warn("webhookシークレットが一致しません")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var update botapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.logger.Warn("webhookボディの解析に失敗しました", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	ev, ok := update.ToInboundEvent()
	if !ok {
		// 送信者不明やサポート外のメッセージ種別は黙って受理する
		w.WriteHeader(http.StatusOK)
		return
	}

	if !h.limiter.Allow(ev.SenderID) {
		h.logger.Warn("イベントレート制限を超過しました", "user_id", ev.SenderID)
		h.reply(r.Context(), ev.SenderID, replyRateLimited)
		w.WriteHeader(http.StatusOK)
		return
	}

	reply, err := h.dispatcher.Dispatch(r.Context(), ev)
	if err != nil {
		h.logger.Error("イベントの処理に失敗しました",
			"user_id", ev.SenderID, "error", err)
	}
	if reply != "" {
		h.reply(r.Context(), ev.SenderID, reply)
	}

	w.WriteHeader(http.StatusOK)
}

// reply は返信を送信する。送信失敗はログに残すのみで、
// webhookレスポンスには影響させない。
func (h *WebhookHandler) reply(ctx context.Context, chatID, text string) {
	if err := h.sender.SendMessage(ctx, chatID, text); err != nil {
		h.logger.Error("返信の送信に失敗しました", "user_id", chatID, "error", err)
	}
}
