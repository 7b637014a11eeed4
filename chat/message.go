package chat

import "time"

// Cursor is the page token of the next chat page. Empty means the first page.
type Cursor string

// PollState is the phase of a chat subsystem.
type PollState int

const (
	Locating PollState = iota
	Polling
	Exhausted
)

func (s PollState) String() string {
	switch s {
	case Locating:
		return "locating"
	case Polling:
		return "polling"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Message is one chat line as delivered to the client.
type Message struct {
	Platform  string `json:"platform"`
	User      string `json:"user"`
	Text      string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Listener receives chat output. Calls for one subsystem are never concurrent, and none are made
// after Stop returns.
type Listener interface {
	ChatState(state PollState, err error)
	ChatMessages(msgs []Message)
}

const (
	unknownUser  = "Unknown"
	emptyMessage = "No message"
)

func newMessage(platform, user, text string, at time.Time) Message {
	if user == "" {
		user = unknownUser
	}
	if text == "" {
		text = emptyMessage
	}
	return Message{Platform: platform, User: user, Text: text, Timestamp: at.Format("15:04:05")}
}
