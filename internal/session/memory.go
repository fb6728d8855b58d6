package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hitoshi/astropulse/internal/model"
)

// ErrEmptySender は送信者IDが空であることを示す。
var ErrEmptySender = errors.New("empty sender")

// entry はセッションと最終書き込み時刻を保持する。
type entry struct {
	session   model.Session
	lastWrite time.Time
}

// MemoryStore はプロセス内メモリのStore実装。再起動で内容は失われる。
// idleTTLを超えて書き込みの無いセッションは期限切れとして扱い、
// バックグラウンドで定期的に削除する。idleTTLが0なら期限切れにしない。
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]entry

	idleTTL time.Duration
	now     func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore は新しいMemoryStoreを生成する。
// idleTTLが正の場合はクリーンアップのゴルーチンを開始する。
func NewMemoryStore(idleTTL time.Duration) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[string]entry),
		idleTTL:  idleTTL,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}

	if idleTTL > 0 {
		go s.cleanupLoop(cleanupInterval(idleTTL))
	}
	return s
}

// cleanupInterval はTTLの半分、ただし1秒から10分の範囲に収める。
func cleanupInterval(ttl time.Duration) time.Duration {
	interval := ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	if interval > 10*time.Minute {
		interval = 10 * time.Minute
	}
	return interval
}

// Get は送信者のセッションを返す。未登録または期限切れなら新しいセッションを返す。
func (s *MemoryStore) Get(ctx context.Context, sender string) (model.Session, error) {
	if sender == "" {
		return model.Session{}, ErrEmptySender
	}

	s.mu.RLock()
	e, ok := s.sessions[sender]
	s.mu.RUnlock()

	if !ok || s.expired(e, s.now()) {
		return model.NewSession(sender), nil
	}
	return e.session, nil
}

// Put はセッションを保存する。
func (s *MemoryStore) Put(ctx context.Context, sess model.Session) error {
	if sess.Sender == "" {
		return ErrEmptySender
	}

	s.mu.Lock()
	s.sessions[sess.Sender] = entry{session: sess, lastWrite: s.now()}
	s.mu.Unlock()
	return nil
}

// Len は保持しているセッション数を返す。テストおよびメトリクス用。
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Stop はクリーンアップのゴルーチンを停止する。複数回呼んでもよい。
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

func (s *MemoryStore) expired(e entry, now time.Time) bool {
	return s.idleTTL > 0 && now.Sub(e.lastWrite) > s.idleTTL
}

func (s *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup は期限切れのセッションを削除し、削除件数を返す。
func (s *MemoryStore) cleanup() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for sender, e := range s.sessions {
		if s.expired(e, now) {
			delete(s.sessions, sender)
			removed++
		}
	}
	return removed
}
