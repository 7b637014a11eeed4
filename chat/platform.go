package chat

import (
	"context"
	"time"
)

// Platform is the live-streaming API the subsystem talks to. youtubeapi.Client implements it.
type Platform interface {
	Name() string
	ListMyBroadcasts(ctx context.Context) ([]Broadcast, error)
	ListChatMessages(ctx context.Context, chatID string, cur Cursor) (Page, error)
}

// Broadcast is one of the caller's broadcasts.
type Broadcast struct {
	ID          string
	Title       string
	ChatID      string
	ActualStart time.Time
	ActualEnd   time.Time
}

// Live reports whether the broadcast is on air with a chat attached.
func (b Broadcast) Live() bool {
	return b.ChatID != "" && !b.ActualStart.IsZero() && b.ActualEnd.IsZero()
}

// Item is a raw chat entry as returned by the platform.
type Item struct {
	Author    string
	Text      string
	Published time.Time
}

// Page is one fetch of the chat feed.
type Page struct {
	Items []Item
	Next  Cursor
}
