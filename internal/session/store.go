// Package session は会話ストアを提供する。
// ユーザーごとの会話状態・組み立て中ドラフト・認証済み集合を
// プロセス内メモリで管理する。永続化はしない（プロセス寿命と同じ）。
package session

import (
	"sync"
	"time"

	"github.com/hitoshi/promptbox/internal/model"
)

// entry はユーザー1人分の会話状態とドラフト。
type entry struct {
	state      model.ConversationState
	draft      model.Draft
	lastAccess time.Time
}

// Store は会話ストア。全操作はミューテックスで保護される。
// アイドルなセッションはTTL経過後にバックグラウンドで削除される。
// 認証済み集合はセッションとは独立に保持され、削除されない
// （認証はプロセス寿命の間有効な事実として扱う）。
type Store struct {
	mu         sync.RWMutex
	sessions   map[string]*entry
	authorized map[string]struct{}
	ttl        time.Duration
	stopCh     chan struct{}
}

// NewStore は新しいStoreを生成し、アイドルセッションの
// 削除ループをバックグラウンドで開始する。
// ttlが0以下の場合は削除を行わない。
func NewStore(ttl time.Duration) *Store {
	s := &Store{
		sessions:   make(map[string]*entry),
		authorized: make(map[string]struct{}),
		ttl:        ttl,
		stopCh:     make(chan struct{}),
	}

	if ttl > 0 {
		go s.evictLoop()
	}

	return s
}

// Stop は削除ループのバックグラウンドゴルーチンを停止する。
func (s *Store) Stop() {
	close(s.stopCh)
}

// State は指定ユーザーの会話状態を返す。
// セッションが存在しない場合はStateIdleを返す。
func (s *Store) State(userID string) model.ConversationState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sessions[userID]
	if !ok {
		return model.StateIdle
	}
	return e.state
}

// SetState は指定ユーザーの会話状態を設定する。
// セッションが存在しない場合は暗黙に作成する。
func (s *Store) SetState(userID string, state model.ConversationState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.getOrCreateLocked(userID)
	e.state = state
	e.lastAccess = time.Now()
}

// Draft は指定ユーザーのドラフトのコピーを返す。
func (s *Store) Draft(userID string) model.Draft {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sessions[userID]
	if !ok {
		return model.Draft{}
	}
	return e.draft
}

// SetDraft は指定ユーザーのドラフトを設定する。
func (s *Store) SetDraft(userID string, draft model.Draft) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.getOrCreateLocked(userID)
	e.draft = draft
	e.lastAccess = time.Now()
}

// Reset は指定ユーザーの会話状態をIdleに戻し、ドラフトをクリアする。
// 認証済み集合には影響しない。
func (s *Store) Reset(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, userID)
}

// Authorize は指定ユーザーを認証済みとして記録する。
func (s *Store) Authorize(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.authorized[userID] = struct{}{}
}

// IsAuthorized は指定ユーザーが認証済みかを返す。
func (s *Store) IsAuthorized(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.authorized[userID]
	return ok
}

// Len は現在のセッションエントリ数を返す。テストおよびメトリクス用。
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// getOrCreateLocked はセッションエントリを取得または作成する。
// 呼び出し側がs.muを保持していること。
func (s *Store) getOrCreateLocked(userID string) *entry {
	e, ok := s.sessions[userID]
	if !ok {
		e = &entry{state: model.StateIdle}
		s.sessions[userID] = e
	}
	return e
}

// evictLoop はTTLの半分の間隔でアイドルセッションを定期削除する。
func (s *Store) evictLoop() {
	interval := s.ttl / 2
	if interval < time.Minute {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictIdle(time.Now())
		case <-s.stopCh:
			return
		}
	}
}

// evictIdle は最終アクセスからTTLを超過したセッションを削除する。
// 途中までのドラフトも一緒に破棄される。
func (s *Store) evictIdle(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for userID, e := range s.sessions {
		if now.Sub(e.lastAccess) > s.ttl {
			delete(s.sessions, userID)
		}
	}
}
