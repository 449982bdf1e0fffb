// Package notify abstracts the outbound chat surface. The engine and
// conversation layers emit messages through a Notifier without knowing
// which messaging transport delivers them.
package notify

import (
	"context"
	"log"
	"sync"
)

// Button is one inline keyboard button. Data is the callback payload
// delivered back when the button is pressed.
type Button struct {
	Text string
	Data string
}

// Markup is an inline keyboard attached to a message.
type Markup struct {
	Rows [][]Button
}

// Notifier delivers messages to a chat.
type Notifier interface {
	// Send posts a message and returns its id for later edits.
	Send(ctx context.Context, chatID int64, text string, markup *Markup) (int64, error)

	// Edit replaces the text and markup of a previously sent message.
	Edit(ctx context.Context, chatID, messageID int64, text string, markup *Markup) error

	// Delete removes a previously sent message.
	Delete(ctx context.Context, chatID, messageID int64) error
}

// LogNotifier writes messages to a logger. It stands in for a real
// chat transport in local runs.
type LogNotifier struct {
	log    *log.Logger
	mu     sync.Mutex
	nextID int64
}

var _ Notifier = (*LogNotifier)(nil)

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.Default()
	}
	return &LogNotifier{log: logger}
}

func (n *LogNotifier) Send(_ context.Context, chatID int64, text string, _ *Markup) (int64, error) {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.mu.Unlock()
	n.log.Printf("chat %d msg %d: %s", chatID, id, text)
	return id, nil
}

func (n *LogNotifier) Edit(_ context.Context, chatID, messageID int64, text string, _ *Markup) error {
	n.log.Printf("chat %d edit %d: %s", chatID, messageID, text)
	return nil
}

func (n *LogNotifier) Delete(_ context.Context, chatID, messageID int64) error {
	n.log.Printf("chat %d delete %d", chatID, messageID)
	return nil
}

// Recorder captures messages for assertions.
type Recorder struct {
	mu       sync.Mutex
	messages []Recorded
	nextID   int64
}

// Recorded is one captured notification.
type Recorded struct {
	ChatID    int64
	MessageID int64
	Text      string
	Markup    *Markup
	Edited    bool
	Deleted   bool
}

var _ Notifier = (*Recorder)(nil)

func (r *Recorder) Send(_ context.Context, chatID int64, text string, markup *Markup) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.messages = append(r.messages, Recorded{ChatID: chatID, MessageID: r.nextID, Text: text, Markup: markup})
	return r.nextID, nil
}

func (r *Recorder) Edit(_ context.Context, chatID, messageID int64, text string, markup *Markup) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Recorded{ChatID: chatID, MessageID: messageID, Text: text, Markup: markup, Edited: true})
	return nil
}

func (r *Recorder) Delete(_ context.Context, chatID, messageID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Recorded{ChatID: chatID, MessageID: messageID, Deleted: true})
	return nil
}

// Messages returns a copy of everything captured so far.
func (r *Recorder) Messages() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Recorded, len(r.messages))
	copy(out, r.messages)
	return out
}
