// Package notify is the single user-visible failure channel. Every error
// that reaches the user passes through a Sink as one Notification.
package notify

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
)

const (
	DefaultTitle  = "Uh oh! Something went wrong."
	DefaultAction = "Configure"
)

// Notification is a non-blocking, user-facing failure message with an
// optional action label offering retry or configuration.
type Notification struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Action      string `json:"action,omitempty"`
}

// Sink receives notifications.
type Sink interface {
	Notify(n Notification)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(n Notification)

func (f SinkFunc) Notify(n Notification) { f(n) }

// Error builds the standard notification for a failure message.
func Error(message string) Notification {
	return Notification{
		Title:       DefaultTitle,
		Description: Normalize(message),
		Action:      DefaultAction,
	}
}

// Normalize turns a raw failure string into display text. A message that is
// itself a JSON object with a "message" field is unwrapped.
func Normalize(message string) string {
	message = strings.TrimSpace(message)
	if strings.HasPrefix(message, "{") {
		var parsed struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal([]byte(message), &parsed); err == nil && parsed.Message != "" {
			return parsed.Message
		}
	}
	return message
}

// Message renders err for the user, or fallback when err carries no text.
func Message(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	if msg := Normalize(err.Error()); msg != "" {
		return msg
	}
	return fallback
}

// Log writes notifications to logger at warn level.
func Log(logger *slog.Logger) Sink {
	return SinkFunc(func(n Notification) {
		logger.Warn("user notification", "title", n.Title, "description", n.Description)
	})
}

// Multi fans a notification out to every non-nil sink in order.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(n Notification) {
		for _, s := range sinks {
			if s != nil {
				s.Notify(n)
			}
		}
	})
}

// Broadcaster delivers notifications to any number of subscribers. Slow
// subscribers drop notifications instead of blocking the sender.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[chan Notification]struct{}
	buffer int
}

// NewBroadcaster returns a Broadcaster whose subscriber channels hold up to
// buffer pending notifications.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 8
	}
	return &Broadcaster{subs: make(map[chan Notification]struct{}), buffer: buffer}
}

// Subscribe registers a new subscriber. The returned cancel func unregisters
// it and closes the channel.
func (b *Broadcaster) Subscribe() (<-chan Notification, func()) {
	ch := make(chan Notification, b.buffer)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Broadcaster) Notify(n Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- n:
		default:
		}
	}
}
