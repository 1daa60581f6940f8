// Package fulfill は保留キューの取り込みジョブを提供する。
// 保留中の各投稿について画像参照をバイト列に解決し、成果物を保存し、
// カタログに追記した上で処理済みアイテムをキューから取り除く。
package fulfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/promptbox/internal/artifact"
	"github.com/hitoshi/promptbox/internal/metrics"
	"github.com/hitoshi/promptbox/internal/model"
	"github.com/hitoshi/promptbox/internal/repository"
)

// ContentResolver は画像参照をバイト列に解決するインターフェース。
type ContentResolver interface {
	Resolve(ctx context.Context, imageRef string) ([]byte, error)
}

// ArtifactStore は成果物の保存インターフェース。
type ArtifactStore interface {
	SaveImage(base string, data []byte) (string, error)
	SavePrompt(base string, text string) (string, error)
}

// Job は取り込みジョブ。1回の起動につきRunを1度だけ実行する。
// 実行中はキューとカタログの唯一の書き手でなければならない
// （多重起動はプロセスロックで防ぐ）。
type Job struct {
	queue          repository.PendingQueueRepository
	catalog        repository.CatalogRepository
	resolver       ContentResolver
	artifacts      ArtifactStore
	collector      metrics.MetricsCollector
	logger         *slog.Logger
	resolveTimeout time.Duration
	now            func() time.Time
}

// NewJob はJobの新しいインスタンスを生成する。
func NewJob(
	queue repository.PendingQueueRepository,
	catalog repository.CatalogRepository,
	resolver ContentResolver,
	artifacts ArtifactStore,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	resolveTimeout time.Duration,
) *Job {
	return &Job{
		queue:          queue,
		catalog:        catalog,
		resolver:       resolver,
		artifacts:      artifacts,
		collector:      collector,
		logger:         logger,
		resolveTimeout: resolveTimeout,
		now:            time.Now,
	}
}

// Run は保留キューを1回分処理する。
// 開始時点のスナップショットを処理対象とし、解決に失敗したアイテムは
// 次回の実行に向けてキューに残す。カタログ書き込みが完了してから
// キューを更新するため、途中でクラッシュしても投稿が失われることはない
// （最悪でも次回実行時の再処理によるカタログ重複に留まる）。
func (j *Job) Run(ctx context.Context) error {
	items, err := j.queue.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pending queue: %w", err)
	}

	if len(items) == 0 {
		j.logger.Info("保留キューは空です")
		j.collector.SetQueueDepth(0)
		return nil
	}

	j.logger.Info("取り込みジョブを開始します", slog.Int("pending_count", len(items)))

	var entries []*model.CatalogEntry
	processed := make(map[string]struct{})

	for _, item := range items {
		entry, err := j.processItem(ctx, item)
		if err != nil {
			j.collector.RecordFulfillFailure(failureReason(err))
			j.logger.Error("アイテムの取り込みに失敗しました（次回再試行します）",
				slog.String("item_id", item.ID),
				slog.String("title", item.Title),
				slog.String("error", err.Error()),
			)
			continue
		}

		entries = append(entries, entry)
		processed[item.ID] = struct{}{}
		j.collector.RecordFulfillSuccess()
	}

	// カタログを先に書き、成功した分だけキューから取り除く
	if len(entries) > 0 {
		if err := j.catalog.AppendEntries(ctx, entries); err != nil {
			return fmt.Errorf("failed to append catalog entries: %w", err)
		}
	}

	// 実行中に追記されたアイテムを失わないよう、キューを読み直して
	// 処理済みIDのみを差し引いた内容で置き換える
	current, err := j.queue.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to reload pending queue: %w", err)
	}

	remaining := make([]*model.PendingItem, 0, len(current))
	for _, item := range current {
		if _, ok := processed[item.ID]; ok {
			continue
		}
		remaining = append(remaining, item)
	}

	if err := j.queue.Replace(ctx, remaining); err != nil {
		return fmt.Errorf("failed to replace pending queue: %w", err)
	}

	j.collector.SetQueueDepth(len(remaining))
	j.logger.Info("取り込みジョブが完了しました",
		slog.Int("committed", len(entries)),
		slog.Int("remaining", len(remaining)),
	)
	return nil
}

// processItem は1アイテムの解決・保存・カタログエントリ生成を行う。
func (j *Job) processItem(ctx context.Context, item *model.PendingItem) (*model.CatalogEntry, error) {
	resolveCtx := ctx
	if j.resolveTimeout > 0 {
		var cancel context.CancelFunc
		resolveCtx, cancel = context.WithTimeout(ctx, j.resolveTimeout)
		defer cancel()
	}

	start := j.now()
	data, err := j.resolver.Resolve(resolveCtx, item.ImageRef)
	j.collector.RecordResolveLatency(j.now().Sub(start))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve image ref %s: %w", item.ImageRef, err)
	}

	base := artifact.SafeBasename(item.Title)

	imagePath, err := j.artifacts.SaveImage(base, data)
	if err != nil {
		return nil, fmt.Errorf("failed to save image for %s: %w", item.ID, err)
	}

	promptPath, err := j.artifacts.SavePrompt(base, item.Prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to save prompt for %s: %w", item.ID, err)
	}

	return &model.CatalogEntry{
		Title:      item.Title,
		ImagePath:  imagePath,
		PromptPath: promptPath,
		Date:       j.now().UTC().Format("2006-01-02"),
	}, nil
}

// failureReason はメトリクス用の失敗理由ラベルを導出する。
func failureReason(err error) string {
	var botErr *model.BotError
	if errors.As(err, &botErr) && botErr.Code == model.ErrCodeContentUnavailable {
		return "resolve"
	}
	return "artifact"
}
