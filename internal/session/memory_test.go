package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/astropulse/internal/model"
)

// fakeClock はテスト用の時計。
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryStore_GetUnseenSender_ReturnsInitialSession(t *testing.T) {
	s := NewMemoryStore(0)
	defer s.Stop()

	sess, err := s.Get(context.Background(), "whatsapp:+911111111111")
	if err != nil {
		t.Fatalf("Get がエラーを返した: %v", err)
	}
	if sess.Sender != "whatsapp:+911111111111" {
		t.Errorf("Sender = %q", sess.Sender)
	}
	if sess.Step != model.StepInitial || sess.Language != model.LanguageUnset {
		t.Errorf("session = %+v, want initial", sess)
	}
	if s.Len() != 0 {
		t.Errorf("Get should not store anything, Len = %d", s.Len())
	}
}

func TestMemoryStore_PutThenGet(t *testing.T) {
	s := NewMemoryStore(0)
	defer s.Stop()
	ctx := context.Background()

	want := model.Session{
		Sender:   "whatsapp:+912222222222",
		Step:     model.StepAwaitingYear,
		Language: model.LanguageMalayalam,
		Zodiac:   7,
	}
	if err := s.Put(ctx, want); err != nil {
		t.Fatalf("Put がエラーを返した: %v", err)
	}

	got, err := s.Get(ctx, want.Sender)
	if err != nil {
		t.Fatalf("Get がエラーを返した: %v", err)
	}
	if got != want {
		t.Errorf("Get = %+v, want %+v", got, want)
	}
}

func TestMemoryStore_EmptySender(t *testing.T) {
	s := NewMemoryStore(0)
	defer s.Stop()

	if _, err := s.Get(context.Background(), ""); !errors.Is(err, ErrEmptySender) {
		t.Errorf("Get err = %v, want ErrEmptySender", err)
	}
	if err := s.Put(context.Background(), model.Session{}); !errors.Is(err, ErrEmptySender) {
		t.Errorf("Put err = %v, want ErrEmptySender", err)
	}
}

func TestMemoryStore_IdleSessionExpires(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(time.Hour)
	defer s.Stop()
	s.now = clock.Now
	ctx := context.Background()

	sender := "whatsapp:+913333333333"
	if err := s.Put(ctx, model.Session{Sender: sender, Step: model.StepAwaitingZodiac, Language: model.LanguageEnglish}); err != nil {
		t.Fatal(err)
	}

	clock.Advance(59 * time.Minute)
	got, _ := s.Get(ctx, sender)
	if got.Step != model.StepAwaitingZodiac {
		t.Errorf("before TTL: Step = %v, want %v", got.Step, model.StepAwaitingZodiac)
	}

	clock.Advance(2 * time.Minute)
	got, _ = s.Get(ctx, sender)
	if got.Step != model.StepInitial || got.Language != model.LanguageUnset {
		t.Errorf("after TTL: session = %+v, want fresh", got)
	}

	if removed := s.cleanup(); removed != 1 {
		t.Errorf("cleanup removed %d, want 1", removed)
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0", s.Len())
	}
}

func TestMemoryStore_ZeroTTL_NeverExpires(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(0)
	defer s.Stop()
	s.now = clock.Now

	sender := "whatsapp:+914444444444"
	s.Put(context.Background(), model.Session{Sender: sender, Step: model.StepAwaitingYear, Language: model.LanguageEnglish})
	clock.Advance(365 * 24 * time.Hour)

	if removed := s.cleanup(); removed != 0 {
		t.Errorf("cleanup removed %d, want 0", removed)
	}
	got, _ := s.Get(context.Background(), sender)
	if got.Step != model.StepAwaitingYear {
		t.Errorf("Step = %v, want %v", got.Step, model.StepAwaitingYear)
	}
}

func TestMemoryStore_StopIsIdempotent(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	s.Stop()
	s.Stop()
}

func TestCleanupInterval_Bounds(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want time.Duration
	}{
		{time.Second, time.Second},
		{10 * time.Second, 5 * time.Second},
		{24 * time.Hour, 10 * time.Minute},
	}
	for _, tt := range tests {
		if got := cleanupInterval(tt.ttl); got != tt.want {
			t.Errorf("cleanupInterval(%v) = %v, want %v", tt.ttl, got, tt.want)
		}
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	defer s.Stop()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender := "sender-" + string(rune('a'+i%26))
			sess, _ := s.Get(ctx, sender)
			sess.Step = model.StepAwaitingLanguage
			s.Put(ctx, sess)
		}(i)
	}
	wg.Wait()

	if s.Len() != 26 {
		t.Errorf("Len = %d, want 26", s.Len())
	}
}
