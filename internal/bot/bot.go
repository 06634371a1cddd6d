// Package bot runs the Telegram long-polling loop and routes updates:
// commands get fixed replies, plain text goes through the reply
// orchestrator.
package bot

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/grovestreet/grovebot/internal/events"
	"github.com/grovestreet/grovebot/internal/observability"
	"github.com/grovestreet/grovebot/internal/persona"
	"github.com/grovestreet/grovebot/internal/telegram"
)

// Transport is the messaging platform abstraction.
type Transport interface {
	GetUpdates(offset int64, timeout int) ([]telegram.Update, error)
	SendMessage(chatID int64, text string) error
}

// Replier produces the reply for one inbound text message.
type Replier interface {
	Handle(ctx context.Context, userID int64, text string) string
}

// Options tunes the polling loop.
type Options struct {
	PollTimeout          int
	SleepSeconds         int
	DropPending          bool
	PendingWindowSeconds int64
	PendingMaxMessages   int
}

// Bot owns the serving loop.
type Bot struct {
	transport Transport
	replier   Replier
	journal   *events.Log
	log       *slog.Logger
	opts      Options
}

func New(transport Transport, replier Replier, journal *events.Log, log *slog.Logger, opts Options) *Bot {
	if log == nil {
		log = observability.Logger()
	}
	return &Bot{
		transport: transport,
		replier:   replier,
		journal:   journal,
		log:       log,
		opts:      opts,
	}
}

// Run polls for updates until ctx is cancelled. Updates are dispatched on
// their own goroutines; per-user ordering is the session store's concern.
func (b *Bot) Run(ctx context.Context) {
	var offset int64
	if b.opts.DropPending {
		bootstrapped, err := b.bootstrapOffset()
		if err != nil {
			b.log.Warn("bootstrap offset failed", "error", err)
		} else {
			offset = bootstrapped
		}
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		updates, err := b.transport.GetUpdates(offset, b.opts.PollTimeout)
		if err != nil {
			b.log.Error("getUpdates failed", "error", err)
			b.sleep(ctx)
			continue
		}

		for _, update := range updates {
			offset = update.UpdateID + 1

			if update.Message == nil || update.Message.Text == nil {
				continue
			}
			text := *update.Message.Text
			if text == "" {
				continue
			}
			chatID := update.Message.Chat.ID

			if strings.HasPrefix(text, "/") {
				b.handleCommand(chatID, text)
				continue
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				b.handleText(ctx, chatID, text)
			}()
		}
	}
}

// handleCommand answers /start and /help with fixed replies. Commands
// never touch conversation state; everything else is ignored like the
// unrouted commands they are.
func (b *Bot) handleCommand(chatID int64, text string) {
	// Group chats address commands as "/start@botname".
	command := strings.ToLower(strings.SplitN(strings.Fields(text)[0], "@", 2)[0])
	var reply string
	switch command {
	case "/start":
		reply = persona.Welcome
	case "/help":
		reply = persona.Help
	default:
		b.log.Info("ignoring unknown command", "chat_id", chatID, "command", command)
		return
	}

	b.journal.Record(nil, events.EventCommandHandled, map[string]any{
		"chat_id": chatID,
		"command": command,
	})
	if err := b.transport.SendMessage(chatID, reply); err != nil {
		b.log.Error("sendMessage failed", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleText(ctx context.Context, chatID int64, text string) {
	ctx = observability.WithRequestID(ctx, uuid.NewString())
	reply := b.replier.Handle(ctx, chatID, text)
	if err := b.transport.SendMessage(chatID, reply); err != nil {
		observability.LoggerFromContext(ctx).Error("sendMessage failed", "chat_id", chatID, "error", err)
	}
}

// bootstrapOffset consumes the pending backlog on first start: updates
// older than the pending window are dropped, the rest (capped) are kept
// for processing.
func (b *Bot) bootstrapOffset() (int64, error) {
	updates, err := b.transport.GetUpdates(0, 0)
	if err != nil {
		return 0, err
	}
	if len(updates) == 0 {
		return 0, nil
	}

	now := time.Now().Unix()
	cutoff := now - b.opts.PendingWindowSeconds

	var inWindow []telegram.Update
	for _, u := range updates {
		if u.Message != nil && u.Message.Date >= cutoff {
			inWindow = append(inWindow, u)
		}
	}

	if len(inWindow) == 0 {
		return updates[len(updates)-1].UpdateID + 1, nil
	}

	if b.opts.PendingMaxMessages > 0 && len(inWindow) > b.opts.PendingMaxMessages {
		inWindow = inWindow[len(inWindow)-b.opts.PendingMaxMessages:]
	}

	return inWindow[0].UpdateID, nil
}

func (b *Bot) sleep(ctx context.Context) {
	seconds := b.opts.SleepSeconds
	if seconds <= 0 {
		seconds = 1
	}
	select {
	case <-ctx.Done():
	case <-time.After(time.Duration(seconds) * time.Second):
	}
}
