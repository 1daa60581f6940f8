// Package catalog はカタログの読み取り専用クエリを提供する。
// ボットコマンド（/uploaded, /get）とHTTP APIの両方から利用される。
package catalog

import (
	"context"
	"fmt"

	"github.com/hitoshi/promptbox/internal/model"
	"github.com/hitoshi/promptbox/internal/repository"
)

// Service はカタログクエリサービス。
type Service struct {
	repo repository.CatalogRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.CatalogRepository) *Service {
	return &Service{repo: repo}
}

// ListTitles は取り込み済み投稿の全タイトルを追加順で返す。
func (s *Service) ListTitles(ctx context.Context) ([]string, error) {
	titles, err := s.repo.ListTitles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog titles: %w", err)
	}
	return titles, nil
}

// FindByTitle はタイトル完全一致でエントリを検索する。
// 見つからない場合はErrCodeEntryNotFoundのBotErrorを返す。
func (s *Service) FindByTitle(ctx context.Context, title string) (*model.CatalogEntry, error) {
	entry, err := s.repo.FindByTitle(ctx, title)
	if err != nil {
		return nil, fmt.Errorf("failed to find catalog entry: %w", err)
	}
	if entry == nil {
		return nil, model.NewEntryNotFoundError(title)
	}
	return entry, nil
}
