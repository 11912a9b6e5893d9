package bot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu   sync.Mutex
	sent map[string][]string
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(map[string][]string)}
}

func (f *fakeSender) SendMessage(ctx context.Context, chatID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[chatID] = append(f.sent[chatID], text)
	return nil
}

func (f *fakeSender) count(chatID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent[chatID])
}

func (f *fakeSender) last(chatID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.sent[chatID]
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

func TestPollerDeliversCommandReplies(t *testing.T) {
	var mu sync.Mutex
	var offsets []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		offsets = append(offsets, r.URL.Query().Get("offset"))
		first := len(offsets) == 1
		mu.Unlock()

		resp := map[string]any{"ok": true, "result": []any{}}
		if first {
			resp["result"] = []map[string]any{{
				"update_id": 7,
				"message":   map[string]any{"text": "/low", "chat": map[string]any{"id": 99}},
			}}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	sender := newFakeSender()
	p := NewPoller("token", New(testStore(), testSettle(), nil, nil), sender, nil)
	p.baseURL = srv.URL
	p.pollSeconds = 0
	p.retryDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return sender.count("99") == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Contains(t, sender.last("99"), "부족 품목")

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	// The next fetch acknowledges the consumed update.
	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(offsets), 2)
	require.Equal(t, "0", offsets[0])
	require.Equal(t, "8", offsets[1])
}

func TestPollerIgnoresNonCommands(t *testing.T) {
	sender := newFakeSender()
	p := NewPoller("token", New(testStore(), nil, nil, nil), sender, nil)
	ctx := context.Background()

	p.dispatch(ctx, telegramUpdate{UpdateID: 1})

	chatter := &telegramMessage{Text: "안녕하세요"}
	chatter.Chat.ID = 99
	p.dispatch(ctx, telegramUpdate{UpdateID: 2, Message: chatter})

	require.Zero(t, sender.count("99"))
}

func TestPollerRepliesWithErrorNotice(t *testing.T) {
	sender := newFakeSender()
	b := New(testStore(), &fakeSettle{err: errors.New("backend down")}, nil, nil)
	p := NewPoller("token", b, sender, nil)

	msg := &telegramMessage{Text: "/ar"}
	msg.Chat.ID = 42
	p.dispatch(context.Background(), telegramUpdate{UpdateID: 1, Message: msg})

	require.Equal(t, 1, sender.count("42"))
	require.Contains(t, sender.last("42"), "오류")
}

func TestPollerRetriesAfterFetchFailure(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()

		if first {
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "flood"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": []map[string]any{{
			"update_id": 1,
			"message":   map[string]any{"text": "/help", "chat": map[string]any{"id": 7}},
		}}})
	}))
	defer srv.Close()

	sender := newFakeSender()
	p := NewPoller("token", New(testStore(), nil, nil, nil), sender, nil)
	p.baseURL = srv.URL
	p.pollSeconds = 0
	p.retryDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return sender.count("7") >= 1 }, 2*time.Second, 5*time.Millisecond)
	require.Contains(t, sender.last("7"), "사용 가능한 명령어")

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
