// Package youtubeapi wraps Google OAuth2 and the YouTube Data API for reading the operator's live
// broadcasts and their chat. Tokens for the shared default credential are persisted through the
// TokenStore interface so they survive restarts and can be refreshed in the background.
package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/onnwee/streamrelay/config"
)

// Provider is the oauth_tokens key for the default credential.
const Provider = "youtube"

// ReadonlyScope is the only scope the relay needs.
const ReadonlyScope = "https://www.googleapis.com/auth/youtube.readonly"

// TokenStore persists OAuth tokens by provider.
type TokenStore interface {
	UpsertOAuthToken(ctx context.Context, provider, accessToken, refreshToken string, expiry time.Time, scope string) error
	GetOAuthToken(ctx context.Context, provider string) (accessToken, refreshToken string, expiry time.Time, scope string, err error)
}

// Service holds the OAuth client configuration and optional token persistence.
type Service struct {
	cfg    *config.Config
	store  TokenStore
	oauth  *oauth2.Config
	logger *slog.Logger
}

// New builds a Service from cfg. store may be nil, in which case exchanged and refreshed tokens
// are kept in memory only.
func New(cfg *config.Config, store TokenStore) *Service {
	scopes := []string{ReadonlyScope}
	if cfg.YTScopes != "" {
		// allow comma or space separated
		if fields := strings.Fields(strings.ReplaceAll(cfg.YTScopes, ",", " ")); len(fields) > 0 {
			scopes = fields
		}
	}
	return &Service{
		cfg:   cfg,
		store: store,
		oauth: &oauth2.Config{
			ClientID:     cfg.YTClientID,
			ClientSecret: cfg.YTClientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  cfg.YTRedirectURI,
			Scopes:       scopes,
		},
		logger: slog.Default().With(slog.String("component", "youtube_oauth")),
	}
}

// OAuthConfig exposes the client configuration, mainly so tests can point it at a mock endpoint.
func (s *Service) OAuthConfig() *oauth2.Config { return s.oauth }

// Configured reports whether a client id and secret are set.
func (s *Service) Configured() bool {
	return s.oauth.ClientID != "" && s.oauth.ClientSecret != ""
}

// AuthCodeURL returns the consent URL, requesting offline access so a refresh token is issued.
func (s *Service) AuthCodeURL(state string) string {
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token and stores it as the default credential.
func (s *Service) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	if err := s.persist(ctx, tok); err != nil {
		return tok, err
	}
	return tok, nil
}

// Refresh mints a new access token from refreshToken. It matches oauth.RefreshFunc.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
	tok, err := s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return "", "", time.Time{}, "", err
	}
	return tok.AccessToken, tok.RefreshToken, tok.Expiry, scopeOf(tok), nil
}

// DefaultCredential returns the shared credential used by sessions that bring none of their own.
// A stored token wins over YOUTUBE_ACCESS_TOKEN/YOUTUBE_REFRESH_TOKEN. It returns nil when neither
// exists, which disables chat for such sessions.
func (s *Service) DefaultCredential(ctx context.Context) (*Credential, error) {
	if s.store != nil {
		access, refresh, expiry, _, err := s.store.GetOAuthToken(ctx, Provider)
		if err != nil {
			return nil, fmt.Errorf("load stored youtube token: %w", err)
		}
		if access != "" || refresh != "" {
			s.logger.Info("using stored youtube token for default credential")
			return s.SharedCredential(ctx, &oauth2.Token{AccessToken: access, RefreshToken: refresh, Expiry: expiry}), nil
		}
	}
	if s.cfg.YTAccessToken == "" && s.cfg.YTRefreshToken == "" {
		return nil, nil
	}
	return s.SharedCredential(ctx, SessionToken(s.cfg.YTAccessToken, s.cfg.YTRefreshToken)), nil
}

// SharedCredential wraps tok as the default credential; refreshed tokens are persisted.
func (s *Service) SharedCredential(ctx context.Context, tok *oauth2.Token) *Credential {
	return NewCredential(ctx, s.oauth, tok, true, s.persistFunc())
}

// SessionCredential builds a per-session credential from caller-supplied tokens. onRefresh may
// be nil.
func (s *Service) SessionCredential(ctx context.Context, access, refresh string, onRefresh RefreshFunc) (*Credential, error) {
	if access == "" && refresh == "" {
		return nil, errors.New("credential requires an access or refresh token")
	}
	return NewCredential(ctx, s.oauth, SessionToken(access, refresh), false, onRefresh), nil
}

func (s *Service) persistFunc() RefreshFunc {
	return func(tok *oauth2.Token) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.persist(ctx, tok); err != nil {
			s.logger.Warn("persist refreshed token failed", slog.Any("err", err))
		}
	}
}

func (s *Service) persist(ctx context.Context, tok *oauth2.Token) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.UpsertOAuthToken(ctx, Provider, tok.AccessToken, tok.RefreshToken, tok.Expiry, scopeOf(tok)); err != nil {
		return fmt.Errorf("store youtube token: %w", err)
	}
	return nil
}

func scopeOf(tok *oauth2.Token) string {
	if s, ok := tok.Extra("scope").(string); ok {
		return s
	}
	return ""
}
