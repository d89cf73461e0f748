package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashOwner(t *testing.T) {
	first := HashOwner("account-123")
	second := HashOwner("account-123")
	require.Equal(t, first, second, "hash must be stable")
	require.Len(t, first, ownerHashLen)
	require.Regexp(t, regexp.MustCompile(`^[0-9a-f]+$`), first)
	require.NotEqual(t, first, HashOwner("account-124"))
	require.NotContains(t, first, "account", "raw id must not survive hashing")
}

func TestSilentNoSession(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	s, err := NewSessions(Options{BaseURL: ts.URL})
	require.NoError(t, err)
	sess, err := s.Silent(context.Background())
	require.NoError(t, err)
	require.Nil(t, sess, "absence of a session is not an error")
}

func TestSilentCachesSession(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(sessionResponse{AccountID: "acct-1", AccountLabel: "Fox"})
	}))
	defer ts.Close()

	s, err := NewSessions(Options{BaseURL: ts.URL})
	require.NoError(t, err)

	first, err := s.Silent(context.Background())
	require.NoError(t, err)
	require.Equal(t, "acct-1", first.AccountID)

	second, err := s.Silent(context.Background())
	require.NoError(t, err)
	require.Equal(t, first.AccountID, second.AccountID)
	require.Equal(t, int32(1), calls.Load(), "second silent fetch should hit the cache")
}

func TestInteractiveCreatesSession(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		_ = json.NewEncoder(w).Encode(sessionResponse{AccountID: "acct-2", AccountLabel: "Badger"})
	}))
	defer ts.Close()

	s, err := NewSessions(Options{BaseURL: ts.URL})
	require.NoError(t, err)
	sess, err := s.Interactive(context.Background())
	require.NoError(t, err)
	require.Equal(t, "acct-2", sess.AccountID)
}

func TestSignOutClearsCache(t *testing.T) {
	signedIn := true
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodDelete:
			signedIn = false
			w.WriteHeader(http.StatusOK)
		default:
			if !signedIn {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			_ = json.NewEncoder(w).Encode(sessionResponse{AccountID: "acct-3"})
		}
	}))
	defer ts.Close()

	s, err := NewSessions(Options{BaseURL: ts.URL})
	require.NoError(t, err)

	sess, err := s.Silent(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sess)

	require.NoError(t, s.SignOut(context.Background()))

	sess, err = s.Silent(context.Background())
	require.NoError(t, err)
	require.Nil(t, sess, "cache must be dropped after sign-out")
}

func TestTokenSubject(t *testing.T) {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	claims := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"user@example.com"}`))
	token := header + "." + claims + "."

	sub, err := TokenSubject(token)
	require.NoError(t, err)
	require.Equal(t, "user@example.com", sub)

	_, err = TokenSubject("not-a-token")
	require.Error(t, err)
}
