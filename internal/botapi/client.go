package botapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/promptbox/internal/model"
)

// URLValidator はダウンロード前の静的URL検証のインターフェース。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// Client はボットプラットフォームAPIのクライアント。
// 送信メッセージ（sendMessage）と画像参照の解決（getFile + ダウンロード）を提供する。
// apiClientはAPI呼び出し用、downloadClientはファイル取得用に分離しており、
// 後者にはSSRF防止付きクライアントを渡すことを想定している。
// ダウンロードURLはfile_path（外部入力）を含むため、発行前にvalidatorで
// 静的検証も行う。
type Client struct {
	apiClient      *http.Client
	downloadClient *http.Client
	validator      URLValidator
	logger         *slog.Logger
	baseURL        string // テスト用にエンドポイントを差し替え可能
	token          string
	maxFileSize    int64
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(apiClient, downloadClient *http.Client, validator URLValidator, logger *slog.Logger, baseURL, token string, maxFileSize int64) *Client {
	return &Client{
		apiClient:      apiClient,
		downloadClient: downloadClient,
		validator:      validator,
		logger:         logger,
		baseURL:        baseURL,
		token:          token,
		maxFileSize:    maxFileSize,
	}
}

// apiResponse はボットAPIの共通レスポンス形式。
type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// fileInfo はgetFileの結果。
type fileInfo struct {
	FileID   string `json:"file_id"`
	FilePath string `json:"file_path"`
}

// SendMessage は指定ユーザーにテキストメッセージを送信する。
func (c *Client) SendMessage(ctx context.Context, userID, text string) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id": userID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("failed to encode sendMessage payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.apiClient.Do(req)
	if err != nil {
		c.logger.Error("メッセージ送信に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("sendMessage request failed: %w", err)
	}
	defer resp.Body.Close()

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return fmt.Errorf("failed to decode sendMessage response: %w", err)
	}
	if !apiResp.OK {
		c.logger.Error("ボットAPIがsendMessageのエラーを返しました",
			slog.String("user_id", userID),
			slog.Int("http_status", resp.StatusCode),
			slog.String("description", apiResp.Description),
		)
		return fmt.Errorf("sendMessage rejected: %s", apiResp.Description)
	}

	return nil
}

// Resolve は画像参照（file_id）を実バイト列に解決する。
// getFileでファイルパスを取得し、ファイルエンドポイントからダウンロードする。
// 失敗はmodel.ErrCodeContentUnavailableのBotErrorとして返す。
func (c *Client) Resolve(ctx context.Context, imageRef string) ([]byte, error) {
	info, err := c.getFile(ctx, imageRef)
	if err != nil {
		return nil, model.NewContentUnavailableError(imageRef, err.Error())
	}

	fileURL := fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.token, info.FilePath)

	// file_pathは外部入力由来のため、ダウンロード発行前に静的検証を通す。
	// DNS解決後のIP検証はdownloadClient側で行われる。
	if err := c.validator.ValidateURL(fileURL); err != nil {
		c.logger.Error("ファイルURLの検証に失敗しました",
			slog.String("image_ref", imageRef),
			slog.String("error", err.Error()),
		)
		return nil, model.NewContentUnavailableError(imageRef, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, model.NewContentUnavailableError(imageRef, err.Error())
	}

	resp, err := c.downloadClient.Do(req)
	if err != nil {
		c.logger.Error("画像のダウンロードに失敗しました",
			slog.String("image_ref", imageRef),
			slog.String("error", err.Error()),
		)
		return nil, model.NewContentUnavailableError(imageRef, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("ファイルエンドポイントがエラーステータスを返しました",
			slog.String("image_ref", imageRef),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, model.NewContentUnavailableError(imageRef,
			fmt.Sprintf("file endpoint returned status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxFileSize+1))
	if err != nil {
		return nil, model.NewContentUnavailableError(imageRef, err.Error())
	}
	if int64(len(data)) > c.maxFileSize {
		return nil, model.NewContentUnavailableError(imageRef,
			fmt.Sprintf("file exceeds max size %d bytes", c.maxFileSize))
	}
	if len(data) == 0 {
		return nil, model.NewContentUnavailableError(imageRef, "empty file body")
	}

	return data, nil
}

// getFile は画像参照のファイルパスをボットAPIから取得する。
func (c *Client) getFile(ctx context.Context, imageRef string) (*fileInfo, error) {
	query := url.Values{"file_id": {imageRef}}
	endpoint := fmt.Sprintf("%s/bot%s/getFile?%s", c.baseURL, c.token, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create getFile request: %w", err)
	}

	resp, err := c.apiClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getFile request failed: %w", err)
	}
	defer resp.Body.Close()

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode getFile response: %w", err)
	}
	if !apiResp.OK {
		return nil, fmt.Errorf("getFile rejected: %s", apiResp.Description)
	}

	var info fileInfo
	if err := json.Unmarshal(apiResp.Result, &info); err != nil {
		return nil, fmt.Errorf("failed to parse getFile result: %w", err)
	}
	if info.FilePath == "" {
		return nil, fmt.Errorf("getFile returned empty file_path")
	}

	return &info, nil
}
