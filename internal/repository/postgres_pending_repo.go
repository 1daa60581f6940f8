package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/promptbox/internal/model"
)

// PostgresPendingQueueRepo はPostgreSQLを使用した保留キューリポジトリ。
// Replaceはトランザクション内の全削除 + 再挿入で行い、
// 失敗時は既存エントリがそのまま残る。
type PostgresPendingQueueRepo struct {
	db *sql.DB
}

// NewPostgresPendingQueueRepo はPostgresPendingQueueRepoを生成する。
func NewPostgresPendingQueueRepo(db *sql.DB) *PostgresPendingQueueRepo {
	return &PostgresPendingQueueRepo{db: db}
}

// Load は保留中の全アイテムを追加順で返す。
func (r *PostgresPendingQueueRepo) Load(ctx context.Context) ([]*model.PendingItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, image_ref, prompt, title, created_at
		 FROM pending_items
		 ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending items: %w", err)
	}
	defer rows.Close()

	items := []*model.PendingItem{}
	for rows.Next() {
		item := &model.PendingItem{}
		if err := rows.Scan(
			&item.ID, &item.OwnerID, &item.ImageRef,
			&item.Prompt, &item.Title, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan pending item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending items: %w", err)
	}

	return items, nil
}

// Append はアイテムをキュー末尾に追加する。
// INSERTのコミットで永続化が保証される。
func (r *PostgresPendingQueueRepo) Append(ctx context.Context, item *model.PendingItem) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO pending_items (id, owner_id, image_ref, prompt, title, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		item.ID, item.OwnerID, item.ImageRef, item.Prompt, item.Title, item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append pending item: %w", err)
	}
	return nil
}

// Replace はキュー全体を指定アイテム列に置き換える。
func (r *PostgresPendingQueueRepo) Replace(ctx context.Context, items []*model.PendingItem) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_items`); err != nil {
		return fmt.Errorf("failed to clear pending items: %w", err)
	}

	for _, item := range items {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO pending_items (id, owner_id, image_ref, prompt, title, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			item.ID, item.OwnerID, item.ImageRef, item.Prompt, item.Title, item.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert pending item %s: %w", item.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit queue replace: %w", err)
	}
	return nil
}

// compile-time interface check
var _ PendingQueueRepository = (*PostgresPendingQueueRepo)(nil)
