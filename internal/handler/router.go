package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/promptbox/internal/metrics"
	"github.com/hitoshi/promptbox/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// webhook
	Dispatcher    EventDispatcher
	Sender        MessageSender
	EventLimiter  EventAllower
	WebhookSecret string

	// カタログ読み取りAPI
	CatalogService CatalogServiceInterface

	// メトリクス
	Gatherer prometheus.Gatherer
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RecoveryMiddleware → LoggingMiddleware
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	webhookHandler := NewWebhookHandler(deps.Dispatcher, deps.Sender, deps.EventLimiter, deps.Logger, deps.WebhookSecret)
	catalogHandler := NewCatalogHandler(deps.CatalogService)

	// ヘルスチェック
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheusスクレイプ
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))

	// 会話トランスポートからのwebhook
	r.Post("/bot/webhook", webhookHandler.HandleUpdate)

	// カタログ読み取りAPI
	r.Route("/api/catalog", func(r chi.Router) {
		r.Get("/", catalogHandler.ListTitles)
		r.Get("/{title}", catalogHandler.GetEntry)
	})

	return r
}
