// Package middleware はHTTPミドルウェアと受信イベントのレート制限を提供する。
package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// EventLimiterConfig は送信者ごとのイベントレート制限の設定を保持する。
type EventLimiterConfig struct {
	EventsPerMinute int           // 送信者1人あたりの毎分イベント数
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultEventLimiterConfig はデフォルトのイベントレート制限設定を返す。
func DefaultEventLimiterConfig(eventsPerMinute int) EventLimiterConfig {
	return EventLimiterConfig{
		EventsPerMinute: eventsPerMinute,
		CleanupInterval: 5 * time.Minute,
	}
}

// senderLimiter は送信者ごとのレートリミッターとアクセス時刻を保持する。
type senderLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// EventLimiter は送信者ごとの受信イベントレート制限を管理する。
// HTTPパスではなく会話の送信者単位で制限するため、webhookハンドラーが
// イベントのディスパッチ前にAllowを呼ぶ形で利用する。
type EventLimiter struct {
	config EventLimiterConfig

	mu       sync.RWMutex
	limiters map[string]*senderLimiter

	stopCh chan struct{}
}

// NewEventLimiter は新しいEventLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewEventLimiter(config EventLimiterConfig) *EventLimiter {
	el := &EventLimiter{
		config:   config,
		limiters: make(map[string]*senderLimiter),
		stopCh:   make(chan struct{}),
	}

	go el.cleanupLoop()

	return el
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (el *EventLimiter) Stop() {
	close(el.stopCh)
}

// Allow は指定送信者のイベントを受け付けてよいかを返す。
func (el *EventLimiter) Allow(senderID string) bool {
	return el.getOrCreateLimiter(senderID).Allow()
}

// Count は現在管理されているリミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (el *EventLimiter) Count() int {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return len(el.limiters)
}

// getOrCreateLimiter は送信者のリミッターを取得または作成する。
func (el *EventLimiter) getOrCreateLimiter(senderID string) *rate.Limiter {
	el.mu.RLock()
	sl, exists := el.limiters[senderID]
	el.mu.RUnlock()

	if exists {
		el.mu.Lock()
		sl.lastAccess = time.Now()
		el.mu.Unlock()
		return sl.limiter
	}

	el.mu.Lock()
	defer el.mu.Unlock()

	// ダブルチェック
	if sl, exists := el.limiters[senderID]; exists {
		sl.lastAccess = time.Now()
		return sl.limiter
	}

	limiter := rate.NewLimiter(rate.Limit(float64(el.config.EventsPerMinute)/60.0), el.config.EventsPerMinute)
	el.limiters[senderID] = &senderLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (el *EventLimiter) cleanupLoop() {
	ticker := time.NewTicker(el.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			el.cleanup()
		case <-el.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (el *EventLimiter) cleanup() {
	ttl := el.config.CleanupInterval * 2
	now := time.Now()

	el.mu.Lock()
	defer el.mu.Unlock()

	for senderID, sl := range el.limiters {
		if now.Sub(sl.lastAccess) > ttl {
			delete(el.limiters, senderID)
		}
	}
}
