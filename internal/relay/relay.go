// Package relay turns one inbound message into one outbound reply: it
// assembles the prompt from the persona and the user's session, invokes
// the completion endpoint once, and commits the exchange only on success.
package relay

import (
	"context"
	"strings"
	"time"

	"github.com/grovestreet/grovebot/internal/control"
	"github.com/grovestreet/grovebot/internal/events"
	"github.com/grovestreet/grovebot/internal/observability"
	"github.com/grovestreet/grovebot/internal/openai"
	"github.com/grovestreet/grovebot/internal/persona"
	"github.com/grovestreet/grovebot/internal/prompt"
	"github.com/grovestreet/grovebot/internal/session"
)

// Completer is the completion endpoint abstraction.
type Completer interface {
	ChatCompletion(messages []prompt.Message) (openai.CompletionResponse, error)
}

// Orchestrator owns the message-to-reply cycle for all users.
type Orchestrator struct {
	store     *session.Store
	completer Completer
	breaker   *control.CircuitBreaker
	persona   string
	journal   *events.Log
	metrics   *observability.Metrics
}

func New(
	store *session.Store,
	completer Completer,
	breaker *control.CircuitBreaker,
	personaText string,
	journal *events.Log,
	metrics *observability.Metrics,
) *Orchestrator {
	return &Orchestrator{
		store:     store,
		completer: completer,
		breaker:   breaker,
		persona:   personaText,
		journal:   journal,
		metrics:   metrics,
	}
}

// Handle produces the reply for one inbound text message. It never panics
// and never returns an empty string: every failure maps to the fixed
// fallback, with the session left at its pre-call state.
func (o *Orchestrator) Handle(ctx context.Context, userID int64, text string) (reply string) {
	log := observability.LoggerFromContext(ctx).With("user_id", userID)
	defer func() {
		if r := recover(); r != nil {
			log.Error("handler panic recovered", "panic", r)
			o.metrics.IncReply("fallback")
			reply = persona.Fallback
		}
	}()

	o.metrics.IncMessageReceived()
	msgEventID, _ := o.journal.Record(nil, events.EventMessageReceived, map[string]any{
		"user_id": userID,
		"chars":   len([]rune(text)),
	})

	// Serialize the read-modify-commit cycle per user; a concurrent
	// double-send must not overwrite this exchange.
	lock := o.store.UserLock(userID)
	lock.Lock()
	defer lock.Unlock()

	history := o.store.GetOrCreate(userID)
	messages := prompt.Assemble(o.persona, history, text)

	if o.breaker != nil && !o.breaker.Allow(time.Now()) {
		log.Warn("completion short-circuited", "opened_class", o.breaker.OpenedClass())
		return o.fallbackReply(msgEventID, userID, "circuit_open")
	}

	started := time.Now()
	resp, err := o.completer.ChatCompletion(messages)
	latency := time.Since(started)
	o.metrics.ObserveCompletionLatency(latency)

	if err == nil && strings.TrimSpace(resp.Content) == "" {
		err = openai.ErrMalformedResponse
	}
	if err != nil {
		class := openai.FailureClass(err)
		log.Error("completion failed", "error", err, "class", class)
		o.metrics.IncCompletionError(class)
		o.journal.Record(&msgEventID, events.EventCompletionFailed, map[string]any{
			"user_id":    userID,
			"class":      class,
			"latency_ms": latency.Milliseconds(),
		})
		o.recordBreakerFailure(class)
		return o.fallbackReply(msgEventID, userID, class)
	}
	o.recordBreakerSuccess()

	reply = strings.TrimSpace(resp.Content)
	updated := append(history,
		session.Turn{Role: session.RoleUser, Content: text},
		session.Turn{Role: session.RoleAssistant, Content: reply},
	)
	o.store.Commit(userID, updated)
	o.metrics.SetActiveSessions(o.store.Len())
	o.metrics.IncReply("success")
	o.journal.Record(&msgEventID, events.EventReplySent, map[string]any{
		"user_id":       userID,
		"latency_ms":    latency.Milliseconds(),
		"input_tokens":  resp.InputTokens,
		"output_tokens": resp.OutputTokens,
	})
	log.Info("reply sent", "latency_ms", latency.Milliseconds())
	return reply
}

func (o *Orchestrator) fallbackReply(msgEventID int64, userID int64, reason string) string {
	o.metrics.IncReply("fallback")
	o.journal.Record(&msgEventID, events.EventFallbackSent, map[string]any{
		"user_id": userID,
		"reason":  reason,
	})
	return persona.Fallback
}

func (o *Orchestrator) recordBreakerFailure(class string) {
	if o.breaker == nil {
		return
	}
	prev := o.breaker.State()
	o.breaker.RecordFailure(class, time.Now())
	if prev != control.CircuitOpen && o.breaker.State() == control.CircuitOpen {
		o.journal.Record(nil, events.EventCircuitOpened, map[string]any{
			"class":            class,
			"threshold":        o.breaker.Threshold,
			"cooldown_seconds": int(o.breaker.Cooldown.Seconds()),
		})
	}
}

func (o *Orchestrator) recordBreakerSuccess() {
	if o.breaker == nil {
		return
	}
	prev := o.breaker.State()
	o.breaker.RecordSuccess()
	if prev != control.CircuitClosed {
		o.journal.Record(nil, events.EventCircuitClosed, map[string]any{"recovered": true})
	}
}
