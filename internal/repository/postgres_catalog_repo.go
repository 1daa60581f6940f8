package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/promptbox/internal/model"
)

// PostgresCatalogRepo はPostgreSQLを使用したカタログリポジトリ。
type PostgresCatalogRepo struct {
	db *sql.DB
}

// NewPostgresCatalogRepo はPostgresCatalogRepoを生成する。
func NewPostgresCatalogRepo(db *sql.DB) *PostgresCatalogRepo {
	return &PostgresCatalogRepo{db: db}
}

// AppendEntries はエントリ列をカタログ末尾に追記する。
// 全件を同一トランザクションで挿入する。
func (r *PostgresCatalogRepo) AppendEntries(ctx context.Context, entries []*model.CatalogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		committedOn, err := time.Parse("2006-01-02", e.Date)
		if err != nil {
			return fmt.Errorf("invalid catalog entry date %q: %w", e.Date, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO catalog_entries (title, image_path, prompt_path, committed_on)
			 VALUES ($1, $2, $3, $4)`,
			e.Title, e.ImagePath, e.PromptPath, committedOn,
		); err != nil {
			return fmt.Errorf("failed to insert catalog entry %q: %w", e.Title, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit catalog append: %w", err)
	}
	return nil
}

// ListTitles は全エントリのタイトルを追加順で返す。
func (r *PostgresCatalogRepo) ListTitles(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT title FROM catalog_entries ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog titles: %w", err)
	}
	defer rows.Close()

	titles := []string{}
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("failed to scan catalog title: %w", err)
		}
		titles = append(titles, title)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate catalog titles: %w", err)
	}

	return titles, nil
}

// FindByTitle はタイトル完全一致でエントリを検索する。
// 同一タイトルが複数ある場合は最初に追記されたものを返す。
// 見つからない場合はnilを返す。
func (r *PostgresCatalogRepo) FindByTitle(ctx context.Context, title string) (*model.CatalogEntry, error) {
	entry := &model.CatalogEntry{}
	var committedOn time.Time

	err := r.db.QueryRowContext(ctx,
		`SELECT title, image_path, prompt_path, committed_on
		 FROM catalog_entries
		 WHERE title = $1
		 ORDER BY id
		 LIMIT 1`,
		title,
	).Scan(&entry.Title, &entry.ImagePath, &entry.PromptPath, &committedOn)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find catalog entry: %w", err)
	}

	entry.Date = committedOn.Format("2006-01-02")
	return entry, nil
}

// compile-time interface check
var _ CatalogRepository = (*PostgresCatalogRepo)(nil)
