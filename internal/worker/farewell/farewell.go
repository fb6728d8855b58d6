// Package farewell はレポート送信後の終了メッセージを遅延送信するジョブを提供する。
// ジョブは送信者ごとに最大1件で、新しい会話が始まったら取り消せる。
package farewell

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/astropulse/internal/logger"
	"github.com/hitoshi/astropulse/internal/metrics"
)

// sendTimeout は1件の送信にかける上限時間。
const sendTimeout = 30 * time.Second

// Result はメトリクスのラベルに使う結果名。
const (
	ResultSent      = "sent"
	ResultFailed    = "failed"
	ResultCancelled = "cancelled"
)

// TextSender はテキスト送信のインターフェース。delivery.Channelが実装する。
type TextSender interface {
	SendText(ctx context.Context, to, body string) error
}

type job struct {
	id    uint64
	timer *time.Timer
}

// Scheduler は送信者ごとの遅延メッセージを管理する。
type Scheduler struct {
	sender  TextSender
	delay   time.Duration
	metrics metrics.MetricsCollector
	logger  *slog.Logger

	mu      sync.Mutex
	jobs    map[string]job
	nextID  uint64
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler は新しいSchedulerを生成する。
func NewScheduler(sender TextSender, delay time.Duration, collector metrics.MetricsCollector, logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		sender:  sender,
		delay:   delay,
		metrics: collector,
		logger:  logger,
		jobs:    make(map[string]job),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Schedule はdelay後にtextをrecipientへ送るジョブを登録する。
// 同じrecipientの未実行ジョブがあれば置き換える。Stop後は何もしない。
func (s *Scheduler) Schedule(recipient, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.cancelLocked(recipient)

	s.nextID++
	id := s.nextID
	s.wg.Add(1)
	timer := time.AfterFunc(s.delay, func() {
		s.fire(recipient, id, text)
	})
	s.jobs[recipient] = job{id: id, timer: timer}
}

// Cancel はrecipientの未実行ジョブを取り消す。取り消した場合はtrueを返す。
func (s *Scheduler) Cancel(recipient string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(recipient)
}

func (s *Scheduler) cancelLocked(recipient string) bool {
	j, ok := s.jobs[recipient]
	if !ok {
		return false
	}
	delete(s.jobs, recipient)
	if j.timer.Stop() {
		s.wg.Done()
		s.metrics.RecordFarewell(ResultCancelled)
		return true
	}
	// 既に発火済み。fire側がjobsに無いことを見て送信をやめる
	return false
}

// Pending は未実行のジョブ数を返す。
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Stop は全ての未実行ジョブを取り消し、送信中のジョブの終了を待つ。
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for recipient := range s.jobs {
		s.cancelLocked(recipient)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) fire(recipient string, id uint64, text string) {
	defer s.wg.Done()

	s.mu.Lock()
	j, ok := s.jobs[recipient]
	if !ok || j.id != id {
		s.mu.Unlock()
		return
	}
	delete(s.jobs, recipient)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(s.ctx, sendTimeout)
	defer cancel()

	if err := s.sender.SendText(ctx, recipient, text); err != nil {
		s.metrics.RecordFarewell(ResultFailed)
		s.logger.Warn("終了メッセージの送信に失敗しました",
			slog.String("sender", logger.MaskSender(recipient)),
			slog.String("error", err.Error()),
		)
		return
	}
	s.metrics.RecordFarewell(ResultSent)
	s.logger.Info("終了メッセージを送信しました",
		slog.String("sender", logger.MaskSender(recipient)),
	)
}
