package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/onnwee/streamrelay/telemetry"
)

// Poller fetches successive pages of one broadcast's chat.
type Poller struct {
	platform Platform
	chatID   string

	mu     sync.Mutex
	cursor Cursor
}

// NewPoller starts at the first page of chatID.
func NewPoller(p Platform, chatID string) *Poller {
	return &Poller{platform: p, chatID: chatID}
}

// Cursor returns the page token the next fetch will use.
func (p *Poller) Cursor() Cursor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// PollOnce fetches the page at the current cursor and advances the cursor to the returned token.
// On error the cursor is left unchanged.
func (p *Poller) PollOnce(ctx context.Context) ([]Message, error) {
	ctx, span := telemetry.StartSpan(ctx, "chat", "chat.fetch")
	defer span.End()

	cur := p.Cursor()
	var (
		page Page
		err  error
	)
	telemetry.TimeFunc(telemetry.ChatFetchDuration, func() {
		page, err = p.platform.ListChatMessages(ctx, p.chatID, cur)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("fetch chat page: %w", err)
	}

	name := p.platform.Name()
	msgs := make([]Message, 0, len(page.Items))
	for _, it := range page.Items {
		msgs = append(msgs, newMessage(name, it.Author, it.Text, it.Published))
	}

	p.mu.Lock()
	p.cursor = page.Next
	p.mu.Unlock()

	telemetry.CountChatMessages(name, len(msgs))
	telemetry.SetSpanSuccess(span)
	return msgs, nil
}
