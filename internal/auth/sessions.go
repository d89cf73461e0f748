// Package auth talks to the host authentication provider and owns the one-way
// hashing of account identifiers. Everything outside this package sees only
// the hash.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/oclite/studio/internal/domain"
	"github.com/oclite/studio/internal/infra"
)

// ownerHashLen bounds the persisted hash to 64 bits of the digest, in line
// with the 10-character share-id risk posture.
const ownerHashLen = 16

// Session is an authenticated user session as reported by the provider.
type Session struct {
	AccountID    string
	AccountLabel string
	Token        string
}

type sessionResponse struct {
	AccountID    string `json:"accountId"`
	AccountLabel string `json:"accountLabel"`
	Token        string `json:"token"`
}

// Options configures the Sessions client.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Sessions is the HTTP client for the authentication provider. The current
// session is cached so pipeline stages can consult it without a network call
// per run.
type Sessions struct {
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger

	mu      sync.Mutex
	current *Session
}

// NewSessions constructs the client.
func NewSessions(opts Options) (*Sessions, error) {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("auth: base url is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Sessions{baseURL: baseURL, httpClient: httpClient, logger: logger}, nil
}

// Silent fetches the current session without prompting. No session is not an
// error: it returns (nil, nil) and callers degrade to local-only behavior.
func (s *Sessions) Silent(ctx context.Context) (*Session, error) {
	s.mu.Lock()
	if s.current != nil {
		cached := *s.current
		s.mu.Unlock()
		return &cached, nil
	}
	s.mu.Unlock()
	return s.fetch(ctx, http.MethodGet, false)
}

// Interactive fetches the current session, creating one if none exists (the
// provider drives its own sign-in flow).
func (s *Sessions) Interactive(ctx context.Context) (*Session, error) {
	sess, err := s.fetch(ctx, http.MethodPost, true)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, domain.ErrAuthRequired
	}
	return sess, nil
}

// SignOut clears the provider session and the local cache.
func (s *Sessions) SignOut(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.baseURL+"/session", nil)
	if err != nil {
		return fmt.Errorf("auth: build sign-out request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &domain.TransportError{Op: "auth: sign out", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("auth: sign out status %d", resp.StatusCode)
	}
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
	return nil
}

func (s *Sessions) fetch(ctx context.Context, method string, interactive bool) (*Session, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+"/session", nil)
	if err != nil {
		return nil, fmt.Errorf("auth: build session request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Op: "auth: fetch session", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent,
		resp.StatusCode == http.StatusUnauthorized && !interactive:
		return nil, nil
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("auth: session status %d", resp.StatusCode)
	}

	var decoded sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("auth: decode session: %w", err)
	}
	if decoded.AccountID == "" {
		return nil, nil
	}
	sess := &Session{
		AccountID:    decoded.AccountID,
		AccountLabel: decoded.AccountLabel,
		Token:        decoded.Token,
	}
	if sess.AccountLabel == "" && sess.Token != "" {
		// Fall back to the token subject for a display label.
		if sub, err := TokenSubject(sess.Token); err == nil {
			sess.AccountLabel = sub
		}
	}
	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()
	s.logger.Debug().Str("owner", HashOwner(sess.AccountID)).Msg("auth: session established")
	cached := *sess
	return &cached, nil
}

// TokenSubject reads the subject claim from a provider-issued token without
// verifying the signature. Verification is the provider's job; the claim is
// display-only here.
func TokenSubject(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("auth: parse token: %w", err)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("auth: token carries no subject")
	}
	return sub, nil
}

// HashOwner derives the one-way owner hash used for storage partitioning and
// logging. Same input, same hash; the raw account id never leaves callers.
func HashOwner(accountID string) string {
	sum := sha256.Sum256([]byte(accountID))
	return hex.EncodeToString(sum[:])[:ownerHashLen]
}
