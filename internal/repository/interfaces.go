// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/promptbox/internal/model"
)

// PendingQueueRepository は保留キューの永続化インターフェース。
// 受付プロセスは追記のみ、取り込みジョブは読み出しと置き換えのみを行う。
type PendingQueueRepository interface {
	// Load は保留中の全アイテムを追加順で返す。
	// キューがまだ存在しない場合は空スライスを返す（エラーではない）。
	Load(ctx context.Context) ([]*model.PendingItem, error)

	// Append はアイテムをキュー末尾に追加する。
	// 戻った時点で追記は安定ストレージに反映されていること
	// （確認応答を返す前のクラッシュで投稿が消えてはならない）。
	Append(ctx context.Context, item *model.PendingItem) error

	// Replace はキュー全体を指定アイテム列に置き換える。
	// 取り込みジョブが処理済みアイテムを取り除くために使用する。
	// アトミックに行い、失敗時に既存エントリを壊してはならない。
	Replace(ctx context.Context, items []*model.PendingItem) error
}

// CatalogRepository はカタログの永続化インターフェース。
// 追記専用で、既存エントリが変更されることはない。
type CatalogRepository interface {
	// AppendEntries はエントリ列をカタログ末尾に追記する。
	AppendEntries(ctx context.Context, entries []*model.CatalogEntry) error

	// ListTitles は全エントリのタイトルを追加順で返す。
	ListTitles(ctx context.Context) ([]string, error)

	// FindByTitle はタイトル完全一致でエントリを検索する。
	// 見つからない場合はnilを返す。
	FindByTitle(ctx context.Context, title string) (*model.CatalogEntry, error)
}
