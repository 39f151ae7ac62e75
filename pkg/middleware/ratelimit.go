package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// DefaultAttemptWindow はログイン失敗回数を数える固定ウィンドウの長さ。
const DefaultAttemptWindow = time.Minute

// attemptCounter は1つのキーに対するウィンドウ内の失敗回数。
type attemptCounter struct {
	windowStart time.Time
	count       int
}

// AttemptLimiter はキー（クライアントIP）ごとのログイン失敗回数を固定ウィンドウで数える。
// limitが0以下の場合は制限しない。
type AttemptLimiter struct {
	mu         sync.Mutex
	limit      int
	window     time.Duration
	lastPruned time.Time
	counters   map[string]attemptCounter
	// now は現在時刻を返す。テストで差し替える。
	now func() time.Time
}

// NewAttemptLimiter は新しいAttemptLimiterを生成する。
func NewAttemptLimiter(limit int, window time.Duration) *AttemptLimiter {
	if window <= 0 {
		window = DefaultAttemptWindow
	}
	return &AttemptLimiter{
		limit:    limit,
		window:   window,
		counters: make(map[string]attemptCounter, 128),
		now:      time.Now,
	}
}

// Blocked は現在のウィンドウでキーの失敗回数が上限に達しているかを返す。
func (l *AttemptLimiter) Blocked(key string) bool {
	if l == nil || l.limit <= 0 {
		return false
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}

	windowStart := l.windowStart()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneStaleLocked(windowStart)

	counter, ok := l.counters[key]
	if !ok || !counter.windowStart.Equal(windowStart) {
		return false
	}
	return counter.count >= l.limit
}

// RecordFailure はキーの失敗回数を1つ増やす。
func (l *AttemptLimiter) RecordFailure(key string) {
	if l == nil || l.limit <= 0 {
		return
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}

	windowStart := l.windowStart()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneStaleLocked(windowStart)

	counter := l.counters[key]
	if !counter.windowStart.Equal(windowStart) {
		counter = attemptCounter{windowStart: windowStart}
	}
	counter.count++
	l.counters[key] = counter
}

// Reset はキーの失敗回数を消去する。ログイン成功時に呼び出す。
func (l *AttemptLimiter) Reset(key string) {
	if l == nil || l.limit <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.counters, strings.TrimSpace(key))
}

// RetryAfter は現在のウィンドウが終わるまでの時間を返す。
func (l *AttemptLimiter) RetryAfter() time.Duration {
	now := l.now().UTC()
	return now.Truncate(l.window).Add(l.window).Sub(now)
}

// windowStart は現在時刻が属するウィンドウの開始時刻を返す。
func (l *AttemptLimiter) windowStart() time.Time {
	return l.now().UTC().Truncate(l.window)
}

// pruneStaleLocked は古いウィンドウのカウンタを削除する。l.muを保持して呼び出すこと。
func (l *AttemptLimiter) pruneStaleLocked(currentWindowStart time.Time) {
	if !l.lastPruned.IsZero() && currentWindowStart.Sub(l.lastPruned) < l.window {
		return
	}
	for key, counter := range l.counters {
		if counter.windowStart.Before(currentWindowStart) {
			delete(l.counters, key)
		}
	}
	l.lastPruned = currentWindowStart
}

// LoginRateLimit は失敗回数が上限に達したクライアントからのリクエストを
// パスワード照合の前に429で拒否するGinミドルウェアを返す。
func LoginRateLimit(l *AttemptLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.Blocked(c.ClientIP()) {
			seconds := int(l.RetryAfter().Round(time.Second) / time.Second)
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "ログイン試行回数が多すぎます。しばらくしてから再試行してください",
			})
			return
		}
		c.Next()
	}
}
