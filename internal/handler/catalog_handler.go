package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/promptbox/internal/model"
)

// CatalogServiceInterface はカタログハンドラーが必要とするサービスインターフェース。
type CatalogServiceInterface interface {
	ListTitles(ctx context.Context) ([]string, error)
	FindByTitle(ctx context.Context, title string) (*model.CatalogEntry, error)
}

// CatalogHandler はカタログ読み取りAPIのHTTPハンドラー。
type CatalogHandler struct {
	service CatalogServiceInterface
}

// NewCatalogHandler はCatalogHandlerを生成する。
func NewCatalogHandler(service CatalogServiceInterface) *CatalogHandler {
	return &CatalogHandler{service: service}
}

// listTitlesResponse はタイトル一覧のAPIレスポンス。
type listTitlesResponse struct {
	Titles []string `json:"titles"`
}

// entryResponse はカタログエントリのAPIレスポンス。
type entryResponse struct {
	Title      string `json:"title"`
	ImagePath  string `json:"image_path"`
	PromptPath string `json:"prompt_path"`
	Date       string `json:"date"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
}

// ListTitles は取り込み済み投稿のタイトル一覧を返す。
// GET /api/catalog
func (h *CatalogHandler) ListTitles(w http.ResponseWriter, r *http.Request) {
	titles, err := h.service.ListTitles(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if titles == nil {
		titles = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(listTitlesResponse{Titles: titles})
}

// GetEntry はタイトル完全一致でカタログエントリを返す。
// GET /api/catalog/{title}
func (h *CatalogHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	title := chi.URLParam(r, "title")

	entry, err := h.service.FindByTitle(r.Context(), title)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entryResponse{
		Title:      entry.Title,
		ImagePath:  entry.ImagePath,
		PromptPath: entry.PromptPath,
		Date:       entry.Date,
	})
}

// writeErrorResponse は統一エラーフォーマットでレスポンスを書き込む。
func writeErrorResponse(w http.ResponseWriter, statusCode int, botErr *model.BotError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     botErr.Code,
		Message:  botErr.Message,
		Category: botErr.Category,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var botErr *model.BotError
	if errors.As(err, &botErr) {
		writeErrorResponse(w, mapBotErrorToHTTPStatus(botErr), botErr)
		return
	}

	// BotError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeErrorResponse(w, http.StatusInternalServerError, &model.BotError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
	})
}

// mapBotErrorToHTTPStatus はBotErrorコードからHTTPステータスコードにマッピングする。
func mapBotErrorToHTTPStatus(botErr *model.BotError) int {
	switch botErr.Code {
	case model.ErrCodeEntryNotFound:
		return http.StatusNotFound
	case model.ErrCodeAuthFailure, model.ErrCodeNotAuthorized:
		return http.StatusUnauthorized
	case model.ErrCodeContentUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
