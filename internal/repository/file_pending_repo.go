package repository

import (
	"context"
	"sync"

	"github.com/hitoshi/promptbox/internal/model"
)

// FilePendingQueueRepo はJSONファイルを使用した保留キューリポジトリ。
// キュー全体を1つのJSON配列として保持し、更新は常に
// 一時ファイル書き込み + renameのアトミック置き換えで行う。
// プロセス内の並行アクセスはミューテックスで直列化する。
type FilePendingQueueRepo struct {
	path string
	mu   sync.Mutex
}

// NewFilePendingQueueRepo はFilePendingQueueRepoを生成する。
// pathは保留キューのJSONファイルパスを指定する。
func NewFilePendingQueueRepo(path string) *FilePendingQueueRepo {
	return &FilePendingQueueRepo{path: path}
}

// Load は保留中の全アイテムを追加順で返す。
// ファイルが存在しない場合は空スライスを返す。
func (r *FilePendingQueueRepo) Load(ctx context.Context) ([]*model.PendingItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.loadLocked()
}

// Append はアイテムをキュー末尾に追加する。
// 書き込みはfsync後にrenameされるため、戻った時点で追記は永続化されている。
func (r *FilePendingQueueRepo) Append(ctx context.Context, item *model.PendingItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	items, err := r.loadLocked()
	if err != nil {
		return err
	}

	items = append(items, item)
	return writeJSONFileAtomic(r.path, items)
}

// Replace はキュー全体を指定アイテム列に置き換える。
func (r *FilePendingQueueRepo) Replace(ctx context.Context, items []*model.PendingItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if items == nil {
		items = []*model.PendingItem{}
	}
	return writeJSONFileAtomic(r.path, items)
}

// loadLocked はファイルからアイテム列を読み込む。
// 呼び出し側がr.muを保持していること。
func (r *FilePendingQueueRepo) loadLocked() ([]*model.PendingItem, error) {
	items := []*model.PendingItem{}
	if err := readJSONFile(r.path, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// compile-time interface check
var _ PendingQueueRepository = (*FilePendingQueueRepo)(nil)
