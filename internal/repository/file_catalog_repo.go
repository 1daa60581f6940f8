package repository

import (
	"context"
	"sync"

	"github.com/hitoshi/promptbox/internal/model"
)

// FileCatalogRepo はJSONファイルを使用したカタログリポジトリ。
// 追記専用のJSON配列として保持し、更新はアトミック置き換えで行う。
type FileCatalogRepo struct {
	path string
	mu   sync.Mutex
}

// NewFileCatalogRepo はFileCatalogRepoを生成する。
// pathはカタログのJSONファイルパスを指定する。
func NewFileCatalogRepo(path string) *FileCatalogRepo {
	return &FileCatalogRepo{path: path}
}

// AppendEntries はエントリ列をカタログ末尾に追記する。
// 空のエントリ列は何もしない。
func (r *FileCatalogRepo) AppendEntries(ctx context.Context, entries []*model.CatalogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.loadLocked()
	if err != nil {
		return err
	}

	existing = append(existing, entries...)
	return writeJSONFileAtomic(r.path, existing)
}

// ListTitles は全エントリのタイトルを追加順で返す。
func (r *FileCatalogRepo) ListTitles(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.loadLocked()
	if err != nil {
		return nil, err
	}

	titles := make([]string, 0, len(entries))
	for _, e := range entries {
		titles = append(titles, e.Title)
	}
	return titles, nil
}

// FindByTitle はタイトル完全一致でエントリを検索する。
// 同一タイトルが複数ある場合は最初に追記されたものを返す。
// 見つからない場合はnilを返す。
func (r *FileCatalogRepo) FindByTitle(ctx context.Context, title string) (*model.CatalogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.loadLocked()
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		if e.Title == title {
			return e, nil
		}
	}
	return nil, nil
}

// loadLocked はファイルからエントリ列を読み込む。
// 呼び出し側がr.muを保持していること。
func (r *FileCatalogRepo) loadLocked() ([]*model.CatalogEntry, error) {
	entries := []*model.CatalogEntry{}
	if err := readJSONFile(r.path, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// compile-time interface check
var _ CatalogRepository = (*FileCatalogRepo)(nil)
