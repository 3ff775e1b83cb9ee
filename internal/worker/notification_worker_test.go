package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GTDGit/gtd_auth/internal/config"
	"github.com/GTDGit/gtd_auth/internal/notify"
)

type flakySender struct {
	mu       sync.Mutex
	failures int
	calls    int
	sent     []string
}

func (s *flakySender) Send(_ context.Context, tmpl notify.Template, recipient string, _ map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return errors.New("smtp: 421 service not available")
	}
	s.sent = append(s.sent, string(tmpl)+":"+recipient)
	return nil
}

func (s *flakySender) snapshot() (int, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, append([]string(nil), s.sent...)
}

func testNotifyConfig() config.NotifyConfig {
	return config.NotifyConfig{
		Workers:        1,
		QueueSize:      2,
		MaxRetries:     3,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  5 * time.Millisecond,
	}
}

func TestNotificationWorkerRetries(t *testing.T) {
	sender := &flakySender{failures: 2}
	w := NewNotificationWorker(sender, testNotifyConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.NoError(t, w.Send(context.Background(), notify.TemplateVerifyEmail, "alice@example.com", nil))

	assert.Eventually(t, func() bool {
		_, sent := sender.snapshot()
		return len(sent) == 1
	}, time.Second, 5*time.Millisecond)

	calls, sent := sender.snapshot()
	assert.Equal(t, 3, calls)
	assert.Equal(t, []string{"verify_email:alice@example.com"}, sent)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestNotificationWorkerGivesUp(t *testing.T) {
	sender := &flakySender{failures: 100}
	w := NewNotificationWorker(sender, testNotifyConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	require.NoError(t, w.Send(ctx, notify.TemplatePasswordReset, "bob@example.com", nil))

	// one attempt plus MaxRetries retries
	assert.Eventually(t, func() bool {
		calls, _ := sender.snapshot()
		return calls == 4
	}, time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	calls, sent := sender.snapshot()
	assert.Equal(t, 4, calls)
	assert.Empty(t, sent)
}

func TestNotificationWorkerQueueFull(t *testing.T) {
	w := NewNotificationWorker(&flakySender{}, testNotifyConfig(), nil)
	ctx := context.Background()

	require.NoError(t, w.Send(ctx, notify.TemplateVerifyEmail, "a@example.com", nil))
	require.NoError(t, w.Send(ctx, notify.TemplateVerifyEmail, "b@example.com", nil))
	assert.ErrorIs(t, w.Send(ctx, notify.TemplateVerifyEmail, "c@example.com", nil), ErrQueueFull)
}
