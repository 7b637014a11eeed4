package youtubeapi

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// assumedLifetime is how long a caller-supplied access token without an expiry is trusted before
// the refresh token is used. Google access tokens last one hour.
const assumedLifetime = 50 * time.Minute

// RefreshFunc is called with every newly minted token.
type RefreshFunc func(tok *oauth2.Token)

// Credential authorizes YouTube calls for one session, or for all sessions when Shared. It is an
// oauth2.TokenSource that refreshes itself when a refresh token is available.
type Credential struct {
	Shared bool
	src    oauth2.TokenSource
}

// Token implements oauth2.TokenSource.
func (c *Credential) Token() (*oauth2.Token, error) {
	if c == nil || c.src == nil {
		return nil, errors.New("youtube credential not configured")
	}
	return c.src.Token()
}

// NewCredential wraps tok. Without oc or a refresh token the access token is used as is.
func NewCredential(ctx context.Context, oc *oauth2.Config, tok *oauth2.Token, shared bool, onRefresh RefreshFunc) *Credential {
	var base oauth2.TokenSource
	if oc == nil || tok.RefreshToken == "" {
		base = oauth2.StaticTokenSource(tok)
	} else {
		base = oc.TokenSource(ctx, tok)
	}
	return &Credential{Shared: shared, src: &notifyingSource{base: base, last: tok.AccessToken, onRefresh: onRefresh}}
}

// NewStaticCredential returns a per-session credential for a fixed access token.
func NewStaticCredential(access string) *Credential {
	return NewCredential(context.Background(), nil, &oauth2.Token{AccessToken: access}, false, nil)
}

// SessionToken builds a token from bare strings. An access token is trusted for assumedLifetime;
// with only a refresh token the first use refreshes.
func SessionToken(access, refresh string) *oauth2.Token {
	tok := &oauth2.Token{AccessToken: access, RefreshToken: refresh}
	if access != "" && refresh != "" {
		tok.Expiry = time.Now().Add(assumedLifetime)
	}
	return tok
}

type notifyingSource struct {
	base      oauth2.TokenSource
	onRefresh RefreshFunc

	mu   sync.Mutex
	last string
}

func (s *notifyingSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if s.onRefresh != nil {
			s.onRefresh(tok)
		}
	}
	return tok, nil
}

// Mask returns the last four characters of a token for logs.
func Mask(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return "…" + token[len(token)-4:]
}
