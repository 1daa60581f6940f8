// Package intake は投稿受け付けの会話ステートマシンを提供する。
// 受信イベントをユーザーごとの会話状態に基づいてディスパッチし、
// 返信文言と状態遷移、完成時の保留キュー追記を行う。
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/promptbox/internal/metrics"
	"github.com/hitoshi/promptbox/internal/model"
	"github.com/hitoshi/promptbox/internal/repository"
	"github.com/hitoshi/promptbox/internal/security"
	"github.com/hitoshi/promptbox/internal/session"
)

// ユーザー向け返信文言
const (
	replyAskPassword   = "パスワードを入力してください。"
	replyAuthSuccess   = "ログインに成功しました。/new で新しい投稿を開始できます。"
	replyAskPhoto      = "画像を送信してください。"
	replyAskPrompt     = "プロンプトを送信してください。"
	replyAskTitle      = "タイトルを送信してください。"
	replyAccepted      = "投稿を受け付けました。次回の取り込み処理で公開されます。"
	replyNoPending     = "保留中の投稿はありません。"
	replyNoUploaded    = "取り込み済みの投稿はありません。"
	replyUsage         = "使い方: /start /new /pending /uploaded /get <タイトル>"
	replyGetUsage      = "使い方: /get <タイトル>"
	replyStorageFailed = "保存に失敗しました。時間をおいて再度タイトルを送信してください。"
)

// CatalogQuerier はカタログの読み取り操作。
type CatalogQuerier interface {
	ListTitles(ctx context.Context) ([]string, error)
	FindByTitle(ctx context.Context, title string) (*model.CatalogEntry, error)
}

// Machine は会話ステートマシン。
// 同一ユーザーのイベントはユーザー単位のロックで直列化される。
type Machine struct {
	sessions  *session.Store
	queue     repository.PendingQueueRepository
	catalog   CatalogQuerier
	sanitizer security.TextSanitizerService
	collector metrics.MetricsCollector
	logger    *slog.Logger
	password  string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewMachine はMachineの新しいインスタンスを生成する。
func NewMachine(
	sessions *session.Store,
	queue repository.PendingQueueRepository,
	catalog CatalogQuerier,
	sanitizer security.TextSanitizerService,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	password string,
) *Machine {
	return &Machine{
		sessions:  sessions,
		queue:     queue,
		catalog:   catalog,
		sanitizer: sanitizer,
		collector: collector,
		logger:    logger,
		password:  password,
		locks:     make(map[string]*sync.Mutex),
	}
}

// Dispatch は受信イベントを1件処理し、ユーザーへの返信文言を返す。
// 返信が不要な場合（イベント種別の不一致など）は空文字列を返す。
// 返されるエラーは内部記録用で、ユーザー向け文言は返信に含まれる。
func (m *Machine) Dispatch(ctx context.Context, ev *model.InboundEvent) (string, error) {
	lock := m.userLock(ev.SenderID)
	lock.Lock()
	defer lock.Unlock()

	m.collector.RecordEvent(string(ev.Kind))

	state := m.sessions.State(ev.SenderID)

	// コマンドは会話状態に関わらず最優先で処理する。
	// ただしパスワード待ちの間だけは例外とし、スラッシュで始まる
	// 共有シークレットも入力できるようにする。
	if ev.Kind == model.EventKindText && strings.HasPrefix(ev.Text, "/") &&
		state != model.StateAwaitingPassword {
		return m.dispatchCommand(ctx, ev)
	}

	switch state {
	case model.StateAwaitingPassword:
		if ev.Kind != model.EventKindText {
			return "", nil
		}
		return m.handlePassword(ev)

	case model.StateAwaitingPhoto:
		if ev.Kind != model.EventKindPhoto {
			return "", nil
		}
		return m.handlePhoto(ev)

	case model.StateAwaitingPrompt:
		if ev.Kind != model.EventKindText {
			return "", nil
		}
		return m.handlePrompt(ev)

	case model.StateAwaitingTitle:
		if ev.Kind != model.EventKindText {
			return "", nil
		}
		return m.handleTitle(ctx, ev)

	default:
		// Idle中の非コマンドイベントは黙って無視する
		return "", nil
	}
}

// dispatchCommand はスラッシュコマンドを処理する。
func (m *Machine) dispatchCommand(ctx context.Context, ev *model.InboundEvent) (string, error) {
	fields := strings.Fields(ev.Text)
	command := fields[0]

	switch command {
	case "/start":
		m.sessions.Reset(ev.SenderID)
		m.sessions.SetState(ev.SenderID, model.StateAwaitingPassword)
		return replyAskPassword, nil

	case "/new":
		if !m.sessions.IsAuthorized(ev.SenderID) {
			return model.NewNotAuthorizedError().Message, nil
		}
		m.sessions.Reset(ev.SenderID)
		m.sessions.SetState(ev.SenderID, model.StateAwaitingPhoto)
		return replyAskPhoto, nil

	case "/pending":
		return m.handleListPending(ctx)

	case "/uploaded":
		return m.handleListUploaded(ctx)

	case "/get":
		if len(fields) < 2 {
			return replyGetUsage, nil
		}
		title := strings.Join(fields[1:], " ")
		return m.handleGet(ctx, title)

	default:
		return replyUsage, nil
	}
}

// handlePassword は共有シークレットとの照合を行う。
// 一致すればユーザーを認証済みに昇格し、状態をIdleに戻す。
// 不一致の場合はAwaitingPasswordに留まり、再入力を促す。
func (m *Machine) handlePassword(ev *model.InboundEvent) (string, error) {
	if ev.Text != m.password {
		m.collector.RecordAuthFailure()
		m.logger.Warn("パスワード認証に失敗しました", "user_id", ev.SenderID)
		return model.NewAuthFailureError().Message, nil
	}

	m.sessions.Authorize(ev.SenderID)
	m.sessions.Reset(ev.SenderID)
	m.logger.Info("ユーザーを認証しました", "user_id", ev.SenderID)
	return replyAuthSuccess, nil
}

// handlePhoto は画像参照をドラフトに保存し、プロンプト入力を待つ。
func (m *Machine) handlePhoto(ev *model.InboundEvent) (string, error) {
	draft := m.sessions.Draft(ev.SenderID)
	draft.ImageRef = ev.ImageRef
	m.sessions.SetDraft(ev.SenderID, draft)
	m.sessions.SetState(ev.SenderID, model.StateAwaitingPrompt)
	return replyAskPrompt, nil
}

// handlePrompt はプロンプトテキストをドラフトに保存し、タイトル入力を待つ。
func (m *Machine) handlePrompt(ev *model.InboundEvent) (string, error) {
	prompt := m.sanitizer.Sanitize(ev.Text)
	if prompt == "" {
		return replyAskPrompt, nil
	}

	draft := m.sessions.Draft(ev.SenderID)
	draft.Prompt = prompt
	m.sessions.SetDraft(ev.SenderID, draft)
	m.sessions.SetState(ev.SenderID, model.StateAwaitingTitle)
	return replyAskTitle, nil
}

// handleTitle はタイトルを確定し、完成した投稿を保留キューに追記する。
// 追記の永続化が完了してから確認返信を返す。追記に失敗した場合は
// AwaitingTitleに留まり、ユーザーは再送できる。
func (m *Machine) handleTitle(ctx context.Context, ev *model.InboundEvent) (string, error) {
	title := m.sanitizer.Sanitize(ev.Text)
	if title == "" {
		return replyAskTitle, nil
	}

	draft := m.sessions.Draft(ev.SenderID)
	draft.Title = title
	if !draft.Complete() {
		// 画像・プロンプトなしでここに到達することはないはずだが、
		// 不整合なドラフトをキューに流さない
		m.sessions.Reset(ev.SenderID)
		return replyUsage, errors.New("incomplete draft reached title stage")
	}

	item := &model.PendingItem{
		ID:        uuid.New().String(),
		OwnerID:   ev.SenderID,
		ImageRef:  draft.ImageRef,
		Prompt:    draft.Prompt,
		Title:     draft.Title,
		CreatedAt: time.Now().UTC(),
	}

	if err := m.queue.Append(ctx, item); err != nil {
		m.logger.Error("保留キューへの追記に失敗しました",
			"user_id", ev.SenderID, "title", title, "error", err)
		return replyStorageFailed, fmt.Errorf("failed to append pending item: %w", err)
	}

	m.sessions.Reset(ev.SenderID)
	m.collector.RecordSubmission()
	m.refreshQueueDepth(ctx)
	m.logger.Info("投稿を受け付けました",
		"user_id", ev.SenderID, "item_id", item.ID, "title", title)
	return replyAccepted, nil
}

// handleListPending は保留中の投稿タイトル一覧を返す。
func (m *Machine) handleListPending(ctx context.Context) (string, error) {
	items, err := m.queue.Load(ctx)
	if err != nil {
		return replyStorageFailed, fmt.Errorf("failed to load pending queue: %w", err)
	}
	m.collector.SetQueueDepth(len(items))

	if len(items) == 0 {
		return replyNoPending, nil
	}

	var b strings.Builder
	b.WriteString("保留中の投稿:\n")
	for _, item := range items {
		fmt.Fprintf(&b, "- %s\n", item.Title)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// handleListUploaded は取り込み済みの投稿タイトル一覧を返す。
func (m *Machine) handleListUploaded(ctx context.Context) (string, error) {
	titles, err := m.catalog.ListTitles(ctx)
	if err != nil {
		return replyStorageFailed, fmt.Errorf("failed to list catalog titles: %w", err)
	}

	if len(titles) == 0 {
		return replyNoUploaded, nil
	}

	var b strings.Builder
	b.WriteString("取り込み済みの投稿:\n")
	for _, title := range titles {
		fmt.Fprintf(&b, "- %s\n", title)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// handleGet はタイトル完全一致でカタログエントリを検索して返す。
func (m *Machine) handleGet(ctx context.Context, title string) (string, error) {
	entry, err := m.catalog.FindByTitle(ctx, title)
	if err != nil {
		var botErr *model.BotError
		if errors.As(err, &botErr) && botErr.Code == model.ErrCodeEntryNotFound {
			return botErr.Message, nil
		}
		return replyStorageFailed, fmt.Errorf("failed to find catalog entry: %w", err)
	}

	return fmt.Sprintf("%s\n画像: %s\nプロンプト: %s\n取り込み日: %s",
		entry.Title, entry.ImagePath, entry.PromptPath, entry.Date), nil
}

// refreshQueueDepth は保留キューの深さメトリクスを更新する。
// 失敗はメトリクス欠落にしかならないため無視する。
func (m *Machine) refreshQueueDepth(ctx context.Context) {
	items, err := m.queue.Load(ctx)
	if err != nil {
		return
	}
	m.collector.SetQueueDepth(len(items))
}

// userLock はユーザー単位のディスパッチ用ロックを取得または作成する。
func (m *Machine) userLock(userID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[userID] = lock
	}
	return lock
}
