package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/grovestreet/grovebot/internal/persona"
	"github.com/grovestreet/grovebot/internal/telegram"
)

type sentMessage struct {
	chatID int64
	text   string
}

type fakeTransport struct {
	mu      sync.Mutex
	batches [][]telegram.Update
	err     error
	offsets []int64
	sent    []sentMessage
}

func (f *fakeTransport) GetUpdates(offset int64, timeout int) ([]telegram.Update, error) {
	f.mu.Lock()
	f.offsets = append(f.offsets, offset)
	if f.err != nil {
		err := f.err
		f.err = nil
		f.mu.Unlock()
		return nil, err
	}
	var batch []telegram.Update
	if len(f.batches) > 0 {
		batch = f.batches[0]
		f.batches = f.batches[1:]
	}
	f.mu.Unlock()
	if batch == nil {
		time.Sleep(time.Millisecond)
	}
	return batch, nil
}

func (f *fakeTransport) SendMessage(chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

func (f *fakeTransport) sentCopy() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeTransport) offsetsCopy() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, len(f.offsets))
	copy(out, f.offsets)
	return out
}

type echoReplier struct{}

func (echoReplier) Handle(_ context.Context, userID int64, text string) string {
	return fmt.Sprintf("echo[%d]: %s", userID, text)
}

func textUpdate(id, chatID int64, text string, date int64) telegram.Update {
	return telegram.Update{
		UpdateID: id,
		Message:  &telegram.Message{Chat: telegram.Chat{ID: chatID}, Text: &text, Date: date},
	}
}

func runBot(t *testing.T, transport Transport, opts Options) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	b := New(transport, echoReplier{}, nil, nil, opts)
	go func() {
		defer close(done)
		b.Run(ctx)
	}()
	return func() {
		stop()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("bot did not stop after cancel")
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestRun_RoutesCommandsAndText(t *testing.T) {
	now := time.Now().Unix()
	transport := &fakeTransport{batches: [][]telegram.Update{{
		textUpdate(1, 10, "/start", now),
		textUpdate(2, 10, "/help", now),
		textUpdate(3, 10, "/unknown", now),
		textUpdate(4, 10, "what's up", now),
	}}}

	stop := runBot(t, transport, Options{})
	defer stop()

	waitFor(t, func() bool { return len(transport.sentCopy()) >= 3 })

	sent := transport.sentCopy()
	if sent[0].text != persona.Welcome {
		t.Errorf("expected welcome for /start, got %q", sent[0].text)
	}
	if sent[1].text != persona.Help {
		t.Errorf("expected help for /help, got %q", sent[1].text)
	}
	last := sent[len(sent)-1]
	if last.chatID != 10 || last.text != "echo[10]: what's up" {
		t.Errorf("unexpected relayed reply: %+v", last)
	}
	for _, m := range sent {
		if m.text == "" {
			t.Error("unexpected empty outbound message")
		}
	}
	if len(sent) != 3 {
		t.Errorf("expected 3 sends (unknown command ignored), got %d", len(sent))
	}
}

func TestRun_AddressedCommand(t *testing.T) {
	now := time.Now().Unix()
	transport := &fakeTransport{batches: [][]telegram.Update{{
		textUpdate(1, 20, "/start@grovebot", now),
	}}}

	stop := runBot(t, transport, Options{})
	defer stop()

	waitFor(t, func() bool { return len(transport.sentCopy()) >= 1 })
	if sent := transport.sentCopy(); sent[0].text != persona.Welcome {
		t.Errorf("expected welcome for addressed /start, got %q", sent[0].text)
	}
}

func TestRun_AdvancesOffset(t *testing.T) {
	now := time.Now().Unix()
	transport := &fakeTransport{batches: [][]telegram.Update{{
		textUpdate(7, 1, "hi", now),
	}}}

	stop := runBot(t, transport, Options{})
	defer stop()

	waitFor(t, func() bool {
		offsets := transport.offsetsCopy()
		return len(offsets) >= 2 && offsets[len(offsets)-1] == 8
	})
}

func TestRun_SkipsNonTextUpdates(t *testing.T) {
	transport := &fakeTransport{batches: [][]telegram.Update{{
		{UpdateID: 1},
		{UpdateID: 2, Message: &telegram.Message{Chat: telegram.Chat{ID: 5}}},
	}}}

	stop := runBot(t, transport, Options{})
	defer stop()

	waitFor(t, func() bool {
		offsets := transport.offsetsCopy()
		return len(offsets) >= 2 && offsets[len(offsets)-1] == 3
	})
	if sent := transport.sentCopy(); len(sent) != 0 {
		t.Fatalf("expected no sends for non-text updates, got %+v", sent)
	}
}

func TestRun_DropPendingBootstrap(t *testing.T) {
	now := time.Now().Unix()
	stale := now - 10000
	transport := &fakeTransport{batches: [][]telegram.Update{{
		textUpdate(100, 1, "stale", stale),
		textUpdate(101, 1, "recent one", now),
		textUpdate(102, 1, "recent two", now),
	}}}

	stop := runBot(t, transport, Options{
		DropPending:          true,
		PendingWindowSeconds: 600,
		PendingMaxMessages:   50,
	})
	defer stop()

	// Bootstrap polls with offset 0, then resumes from the first recent update.
	waitFor(t, func() bool {
		offsets := transport.offsetsCopy()
		return len(offsets) >= 2 && offsets[1] == 101
	})
}

func TestRun_DropPendingAllStale(t *testing.T) {
	stale := time.Now().Unix() - 10000
	transport := &fakeTransport{batches: [][]telegram.Update{{
		textUpdate(100, 1, "stale", stale),
		textUpdate(101, 1, "also stale", stale),
	}}}

	stop := runBot(t, transport, Options{
		DropPending:          true,
		PendingWindowSeconds: 600,
	})
	defer stop()

	waitFor(t, func() bool {
		offsets := transport.offsetsCopy()
		return len(offsets) >= 2 && offsets[1] == 102
	})
	if sent := transport.sentCopy(); len(sent) != 0 {
		t.Fatalf("expected stale backlog dropped, got sends: %+v", sent)
	}
}

func TestRun_StopsDuringErrorBackoff(t *testing.T) {
	transport := &fakeTransport{err: errors.New("telegram getUpdates request failed")}

	stop := runBot(t, transport, Options{SleepSeconds: 60})
	waitFor(t, func() bool { return len(transport.offsetsCopy()) >= 1 })
	stop()
}
