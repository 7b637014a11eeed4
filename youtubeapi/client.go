package youtubeapi

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/streamrelay/chat"
)

// PlatformName labels YouTube chat messages.
const PlatformName = "YouTube"

// Client reads live broadcasts and chat with one credential. It implements chat.Platform.
type Client struct {
	svc *yt.Service
}

var _ chat.Platform = (*Client)(nil)

// NewClient builds a Data API client authorized by cred. Extra options (endpoint, HTTP client)
// are applied after the credential.
func NewClient(ctx context.Context, cred *Credential, opts ...option.ClientOption) (*Client, error) {
	all := append([]option.ClientOption{option.WithTokenSource(cred)}, opts...)
	svc, err := yt.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// Name implements chat.Platform.
func (c *Client) Name() string { return PlatformName }

// ListMyBroadcasts returns up to ten of the authorized channel's broadcasts.
func (c *Client) ListMyBroadcasts(ctx context.Context) ([]chat.Broadcast, error) {
	resp, err := c.svc.LiveBroadcasts.List([]string{"id", "snippet"}).Mine(true).MaxResults(10).Context(ctx).Do()
	if err != nil {
		return nil, wrapAPIError("list broadcasts", err)
	}
	out := make([]chat.Broadcast, 0, len(resp.Items))
	for _, it := range resp.Items {
		if it.Snippet == nil {
			continue
		}
		out = append(out, chat.Broadcast{
			ID:          it.Id,
			Title:       it.Snippet.Title,
			ChatID:      it.Snippet.LiveChatId,
			ActualStart: parseTime(it.Snippet.ActualStartTime),
			ActualEnd:   parseTime(it.Snippet.ActualEndTime),
		})
	}
	return out, nil
}

// ListChatMessages fetches the chat page at cur; an empty cursor is the first page.
func (c *Client) ListChatMessages(ctx context.Context, chatID string, cur chat.Cursor) (chat.Page, error) {
	call := c.svc.LiveChatMessages.List(chatID, []string{"snippet", "authorDetails"}).Context(ctx)
	if cur != "" {
		call = call.PageToken(string(cur))
	}
	resp, err := call.Do()
	if err != nil {
		return chat.Page{}, wrapAPIError("list chat messages", err)
	}
	page := chat.Page{Items: make([]chat.Item, 0, len(resp.Items)), Next: chat.Cursor(resp.NextPageToken)}
	for _, it := range resp.Items {
		var item chat.Item
		if it.Snippet != nil {
			item.Text = it.Snippet.DisplayMessage
			item.Published = parseTime(it.Snippet.PublishedAt)
		}
		if it.AuthorDetails != nil {
			item.Author = it.AuthorDetails.DisplayName
		}
		if item.Published.IsZero() {
			item.Published = time.Now()
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
