package youtubeapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/onnwee/streamrelay/chat"
	"github.com/onnwee/streamrelay/config"
	"github.com/onnwee/streamrelay/testutil"
)

// mockTokenStore implements TokenStore for testing
type mockTokenStore struct {
	mu     sync.Mutex
	tokens map[string]tokenData
}

type tokenData struct {
	access  string
	refresh string
	expiry  time.Time
	scope   string
}

func newMockTokenStore() *mockTokenStore {
	return &mockTokenStore{tokens: make(map[string]tokenData)}
}

func (m *mockTokenStore) UpsertOAuthToken(_ context.Context, provider, accessToken, refreshToken string, expiry time.Time, scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[provider] = tokenData{access: accessToken, refresh: refreshToken, expiry: expiry, scope: scope}
	return nil
}

func (m *mockTokenStore) GetOAuthToken(_ context.Context, provider string) (string, string, time.Time, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.tokens[provider]
	return d.access, d.refresh, d.expiry, d.scope, nil
}

func (m *mockTokenStore) get(provider string) tokenData {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[provider]
}

func testConfig() *config.Config {
	return &config.Config{
		YTClientID:     "test-client-id",
		YTClientSecret: "test-secret",
		YTRedirectURI:  "http://localhost/callback",
	}
}

func TestNew_ScopeParsing(t *testing.T) {
	tests := []struct {
		name       string
		scopesConf string
		want       []string
	}{
		{"default readonly", "", []string{ReadonlyScope}},
		{"comma separated", "scope1,scope2,scope3", []string{"scope1", "scope2", "scope3"}},
		{"space separated", "scope1 scope2", []string{"scope1", "scope2"}},
		{"mixed separators", "scope1, scope2 scope3", []string{"scope1", "scope2", "scope3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.YTScopes = tt.scopesConf
			got := New(cfg, nil).OAuthConfig().Scopes
			if strings.Join(got, " ") != strings.Join(tt.want, " ") {
				t.Errorf("scopes = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAuthCodeURL(t *testing.T) {
	url := New(testConfig(), nil).AuthCodeURL("test-state")
	for _, want := range []string{"client_id=test-client-id", "state=test-state", "access_type=offline", "prompt=consent"} {
		if !strings.Contains(url, want) {
			t.Errorf("URL missing %s: %s", want, url)
		}
	}
}

func TestExchangePersistsToken(t *testing.T) {
	srv := testutil.NewMockYouTubeServer(t)
	srv.MockOAuthTokenResponse("ya29.new", "1//refresh", 3600)
	store := newMockTokenStore()
	svc := New(testConfig(), store)
	svc.OAuthConfig().Endpoint = oauth2.Endpoint{TokenURL: srv.URL + "/token", AuthStyle: oauth2.AuthStyleInParams}

	tok, err := svc.Exchange(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if tok.AccessToken != "ya29.new" {
		t.Errorf("AccessToken = %q", tok.AccessToken)
	}
	got := store.get(Provider)
	if got.access != "ya29.new" || got.refresh != "1//refresh" || got.expiry.IsZero() {
		t.Errorf("stored token = %+v", got)
	}
}

func TestDefaultCredential(t *testing.T) {
	ctx := context.Background()

	t.Run("none configured", func(t *testing.T) {
		cred, err := New(testConfig(), newMockTokenStore()).DefaultCredential(ctx)
		if err != nil || cred != nil {
			t.Fatalf("DefaultCredential() = %v, %v; want nil, nil", cred, err)
		}
	})

	t.Run("env tokens", func(t *testing.T) {
		cfg := testConfig()
		cfg.YTAccessToken = "env-access"
		cred, err := New(cfg, nil).DefaultCredential(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !cred.Shared {
			t.Error("default credential should be shared")
		}
		tok, err := cred.Token()
		if err != nil || tok.AccessToken != "env-access" {
			t.Errorf("Token() = %v, %v", tok, err)
		}
	})

	t.Run("stored token preferred", func(t *testing.T) {
		cfg := testConfig()
		cfg.YTAccessToken = "env-access"
		store := newMockTokenStore()
		_ = store.UpsertOAuthToken(ctx, Provider, "stored-access", "stored-refresh", time.Now().Add(time.Hour), "")
		cred, err := New(cfg, store).DefaultCredential(ctx)
		if err != nil {
			t.Fatal(err)
		}
		tok, err := cred.Token()
		if err != nil || tok.AccessToken != "stored-access" {
			t.Errorf("Token() = %v, %v", tok, err)
		}
	})
}

func TestCredentialRefreshCallback(t *testing.T) {
	srv := testutil.NewMockYouTubeServer(t)
	srv.MockOAuthTokenResponse("ya29.minted", "", 3600)
	oc := &oauth2.Config{ClientID: "id", ClientSecret: "secret", Endpoint: oauth2.Endpoint{TokenURL: srv.URL + "/token", AuthStyle: oauth2.AuthStyleInParams}}

	var got []string
	cred := NewCredential(context.Background(), oc, SessionToken("", "1//refresh"), false, func(tok *oauth2.Token) {
		got = append(got, tok.AccessToken)
	})
	for i := 0; i < 2; i++ {
		tok, err := cred.Token()
		if err != nil {
			t.Fatalf("Token: %v", err)
		}
		if tok.AccessToken != "ya29.minted" {
			t.Errorf("AccessToken = %q", tok.AccessToken)
		}
	}
	if len(got) != 1 || got[0] != "ya29.minted" {
		t.Errorf("refresh callback calls = %v, want exactly one", got)
	}
}

func TestSessionCredential(t *testing.T) {
	svc := New(testConfig(), nil)
	if _, err := svc.SessionCredential(context.Background(), "", "", nil); err == nil {
		t.Error("expected error for empty tokens")
	}
	cred, err := svc.SessionCredential(context.Background(), "a", "r", nil)
	if err != nil || cred.Shared {
		t.Errorf("SessionCredential = %+v, %v", cred, err)
	}
	var nilCred *Credential
	if _, err := nilCred.Token(); err == nil {
		t.Error("nil credential should not yield a token")
	}
}

func newTestClient(t *testing.T, srv *testutil.MockYouTubeServer) *Client {
	t.Helper()
	c, err := NewClient(context.Background(), NewStaticCredential("test-token"), option.WithEndpoint(srv.URL+"/"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestListMyBroadcasts(t *testing.T) {
	srv := testutil.NewMockYouTubeServer(t)
	srv.MockBroadcasts([]map[string]any{
		{"id": "b1", "snippet": map[string]any{"title": "ended", "liveChatId": "c1", "actualStartTime": "2024-05-01T17:00:00Z", "actualEndTime": "2024-05-01T18:00:00Z"}},
		{"id": "b2", "snippet": map[string]any{"title": "live now", "liveChatId": "c2", "actualStartTime": "2024-05-01T18:30:00Z"}},
	})
	c := newTestClient(t, srv)

	got, err := c.ListMyBroadcasts(context.Background())
	if err != nil {
		t.Fatalf("ListMyBroadcasts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Live() || !got[1].Live() {
		t.Errorf("Live() = %v, %v; want false, true", got[0].Live(), got[1].Live())
	}
	if got[1].ChatID != "c2" || got[1].Title != "live now" {
		t.Errorf("broadcast = %+v", got[1])
	}

	req := srv.Requests()[0]
	q := req.URL.Query()
	if q.Get("mine") != "true" || q.Get("maxResults") != "10" || q.Get("part") != "id,snippet" {
		t.Errorf("query = %v", q)
	}
	if req.Header.Get("Authorization") != "Bearer test-token" {
		t.Errorf("Authorization = %q", req.Header.Get("Authorization"))
	}
}

func TestListChatMessages(t *testing.T) {
	srv := testutil.NewMockYouTubeServer(t)
	srv.MockChatPage([]map[string]any{
		testutil.ChatItem("alice", "hello", "2024-05-01T18:31:02Z"),
		testutil.ChatItem("", "", "2024-05-01T18:31:05Z"),
	}, "next-1")
	c := newTestClient(t, srv)

	page, err := c.ListChatMessages(context.Background(), "c2", "prev-0")
	if err != nil {
		t.Fatalf("ListChatMessages: %v", err)
	}
	if page.Next != chat.Cursor("next-1") {
		t.Errorf("Next = %q", page.Next)
	}
	if len(page.Items) != 2 || page.Items[0].Author != "alice" || page.Items[0].Text != "hello" {
		t.Errorf("items = %+v", page.Items)
	}
	if want := time.Date(2024, 5, 1, 18, 31, 2, 0, time.UTC); !page.Items[0].Published.Equal(want) {
		t.Errorf("Published = %v", page.Items[0].Published)
	}

	q := srv.Requests()[0].URL.Query()
	if q.Get("liveChatId") != "c2" || q.Get("pageToken") != "prev-0" || q.Get("part") != "snippet,authorDetails" {
		t.Errorf("query = %v", q)
	}

	if _, err := c.ListChatMessages(context.Background(), "c2", ""); err != nil {
		t.Fatal(err)
	}
	if srv.Requests()[1].URL.Query().Has("pageToken") {
		t.Error("first page request should not carry a pageToken")
	}
}

func TestAPIErrorsAreClassified(t *testing.T) {
	tests := []struct {
		status int
		reason string
		want   error
	}{
		{http.StatusTooManyRequests, "rateLimitExceeded", ErrRateLimited},
		{http.StatusForbidden, "quotaExceeded", ErrRateLimited},
		{http.StatusForbidden, "insufficientPermissions", ErrUnauthorized},
		{http.StatusUnauthorized, "authError", ErrUnauthorized},
		{http.StatusNotFound, "liveChatNotFound", ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			srv := testutil.NewMockYouTubeServer(t)
			srv.MockError("/youtube/v3/liveChat/messages", tt.status, tt.reason)
			_, err := newTestClient(t, srv).ListChatMessages(context.Background(), "c", "")
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			var gerr *googleapi.Error
			if !errors.As(err, &gerr) || gerr.Code != tt.status {
				t.Errorf("googleapi.Error not preserved: %v", err)
			}
		})
	}

	srv := testutil.NewMockYouTubeServer(t)
	srv.MockError("/youtube/v3/liveBroadcasts", http.StatusInternalServerError, "backendError")
	_, err := newTestClient(t, srv).ListMyBroadcasts(context.Background())
	if err == nil || errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrNotFound) {
		t.Errorf("5xx err = %v, want unclassified error", err)
	}
	if chat.Classify(err) != chat.ErrorClassRetryable {
		t.Errorf("Classify(5xx) = %v, want retryable", chat.Classify(err))
	}
}

func TestMask(t *testing.T) {
	if got := Mask("ya29.abcdefgh"); got != "…efgh" {
		t.Errorf("Mask = %q", got)
	}
	if got := Mask("abc"); got != "****" {
		t.Errorf("Mask(short) = %q", got)
	}
}
