// Package testutil holds shared test helpers: an httptest stand-in for the YouTube Data API and
// a Postgres connection helper.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockYouTubeServer serves canned YouTube Data API v3 responses keyed by URL path.
type MockYouTubeServer struct {
	*httptest.Server

	mu       sync.Mutex
	Handlers map[string]http.HandlerFunc
	requests []*http.Request
}

// NewMockYouTubeServer starts a server that answers 404 for paths without a handler.
func NewMockYouTubeServer(t *testing.T) *MockYouTubeServer {
	t.Helper()
	m := &MockYouTubeServer{Handlers: make(map[string]http.HandlerFunc)}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.requests = append(m.requests, r.Clone(r.Context()))
		handler, ok := m.Handlers[r.URL.Path]
		m.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		WriteAPIError(w, http.StatusNotFound, "notFound", "no handler for "+r.URL.Path)
	}))
	t.Cleanup(m.Close)
	return m
}

// Handle registers h for path.
func (m *MockYouTubeServer) Handle(path string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Handlers[path] = h
}

// Requests returns the requests received so far.
func (m *MockYouTubeServer) Requests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*http.Request(nil), m.requests...)
}

// MockBroadcasts answers liveBroadcasts.list with items, each a liveBroadcast resource as a map.
func (m *MockYouTubeServer) MockBroadcasts(items []map[string]any) {
	m.Handle("/youtube/v3/liveBroadcasts", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"kind": "youtube#liveBroadcastListResponse", "items": items})
	})
}

// MockChatPage answers liveChatMessages.list with items and nextPageToken.
func (m *MockYouTubeServer) MockChatPage(items []map[string]any, nextPageToken string) {
	m.Handle("/youtube/v3/liveChat/messages", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"kind":                  "youtube#liveChatMessageListResponse",
			"items":                 items,
			"nextPageToken":         nextPageToken,
			"pollingIntervalMillis": 5000,
		})
	})
}

// MockError answers path with a googleapi-shaped error.
func (m *MockYouTubeServer) MockError(path string, status int, reason string) {
	m.Handle(path, func(w http.ResponseWriter, r *http.Request) {
		WriteAPIError(w, status, reason, http.StatusText(status))
	})
}

// MockOAuthTokenResponse answers the OAuth token endpoint at /token.
func (m *MockYouTubeServer) MockOAuthTokenResponse(accessToken, refreshToken string, expiresIn int) {
	m.Handle("/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"expires_in":    expiresIn,
			"token_type":    "Bearer",
		})
	})
}

// ChatItem builds a liveChatMessage resource.
func ChatItem(author, text, publishedAt string) map[string]any {
	return map[string]any{
		"snippet":       map[string]any{"displayMessage": text, "publishedAt": publishedAt},
		"authorDetails": map[string]any{"displayName": author},
	}
}

// WriteAPIError writes the JSON error envelope the Google API client decodes into *googleapi.Error.
func WriteAPIError(w http.ResponseWriter, status int, reason, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck // test mock response
		"error": map[string]any{
			"code":    status,
			"message": message,
			"errors":  []map[string]any{{"reason": reason, "message": message}},
		},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
}
