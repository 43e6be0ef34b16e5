package oidcsession_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/nimbusadmin/console-sdk/oidcsession"
)

const (
	testClientID = "console"
	testKeyID    = "test-key"
)

// fakeIdP is a minimal OIDC provider: discovery document, JWKS, and a token
// endpoint that serves both the code exchange and refresh grants.
type fakeIdP struct {
	server *httptest.Server
	key    *rsa.PrivateKey

	exchangeExpiresIn int64 // expires_in for the initial code exchange
	failRefresh       atomic.Bool
	refreshCalls      atomic.Int32
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	idp := &fakeIdP{key: key, exchangeExpiresIn: 3600}
	mux := http.NewServeMux()
	idp.server = httptest.NewServer(mux)
	t.Cleanup(idp.server.Close)

	issuer := idp.server.URL
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 issuer,
			"authorization_endpoint": issuer + "/auth",
			"token_endpoint":         issuer + "/token",
			"jwks_uri":               issuer + "/keys",
			"end_session_endpoint":   issuer + "/logout",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]any{{
				"kty": "RSA",
				"alg": "RS256",
				"use": "sig",
				"kid": testKeyID,
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   "AQAB",
			}},
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")

		if r.Form.Get("grant_type") == "refresh_token" {
			idp.refreshCalls.Add(1)
			if idp.failRefresh.Load() {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "renewed-access",
				"token_type":    "Bearer",
				"refresh_token": "oidc-refresh",
				"expires_in":    3600,
			})
			return
		}

		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "oidc-access",
			"token_type":    "Bearer",
			"refresh_token": "oidc-refresh",
			"expires_in":    idp.exchangeExpiresIn,
			"id_token":      idp.mintIDToken(t),
		})
	})
	return idp
}

func (idp *fakeIdP) mintIDToken(t *testing.T) string {
	t.Helper()
	now := time.Now()
	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, jwtlib.MapClaims{
		"iss":   idp.server.URL,
		"aud":   testClientID,
		"sub":   "oidc-user",
		"email": "oidc-user@example.com",
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	})
	tok.Header["kid"] = testKeyID
	signed, err := tok.SignedString(idp.key)
	require.NoError(t, err)
	return signed
}

func newSession(t *testing.T, idp *fakeIdP) *oidcsession.Session {
	t.Helper()
	session, err := oidcsession.New(context.Background(), oidcsession.Config{
		IssuerURL:   idp.server.URL,
		ClientID:    testClientID,
		RedirectURL: "http://localhost:3000/auth/callback",
	})
	require.NoError(t, err)
	return session
}

func TestSigninRedirectURL(t *testing.T) {
	idp := newFakeIdP(t)
	session := newSession(t, idp)

	url := session.SigninRedirectURL("state-1")
	require.Contains(t, url, idp.server.URL+"/auth")
	require.Contains(t, url, "client_id="+testClientID)
	require.Contains(t, url, "state=state-1")
	require.Contains(t, url, "openid")
	require.Contains(t, url, "offline_access")
}

func TestHandleCallbackActivatesSession(t *testing.T) {
	idp := newFakeIdP(t)
	session := newSession(t, idp)

	var loaded int32
	session.OnUserLoaded(func(*oidcsession.User) { atomic.AddInt32(&loaded, 1) })

	user, err := session.HandleCallback(context.Background(), "code-1")
	require.NoError(t, err)
	require.Equal(t, "oidc-access", user.AccessToken)
	require.Equal(t, "oidc-user", user.Claims["sub"])
	require.Equal(t, "oidc-user@example.com", user.Claims["email"])
	require.EqualValues(t, 1, atomic.LoadInt32(&loaded))

	current, err := session.User(context.Background())
	require.NoError(t, err)
	require.Equal(t, "oidc-access", current.AccessToken)
	require.EqualValues(t, 0, idp.refreshCalls.Load(), "a valid token needs no renew")
}

func TestUserWithoutSession(t *testing.T) {
	idp := newFakeIdP(t)
	session := newSession(t, idp)

	user, err := session.User(context.Background())
	require.NoError(t, err)
	require.Nil(t, user)
}

func TestUserSilentRenew(t *testing.T) {
	idp := newFakeIdP(t)
	idp.exchangeExpiresIn = -60 // the exchanged access token is already expired
	session := newSession(t, idp)

	var expired, loaded int32
	session.OnAccessTokenExpired(func() { atomic.AddInt32(&expired, 1) })
	session.OnUserLoaded(func(*oidcsession.User) { atomic.AddInt32(&loaded, 1) })

	_, err := session.HandleCallback(context.Background(), "code-1")
	require.NoError(t, err)

	user, err := session.User(context.Background())
	require.NoError(t, err)
	require.Equal(t, "renewed-access", user.AccessToken)
	require.EqualValues(t, 1, idp.refreshCalls.Load())
	require.EqualValues(t, 1, atomic.LoadInt32(&expired))
	require.EqualValues(t, 2, atomic.LoadInt32(&loaded), "callback plus successful renew")
}

func TestUserSilentRenewFailureClearsSession(t *testing.T) {
	idp := newFakeIdP(t)
	idp.exchangeExpiresIn = -60
	session := newSession(t, idp)

	var renewErrs, unloaded int32
	session.OnSilentRenewError(func(error) { atomic.AddInt32(&renewErrs, 1) })
	session.OnUserUnloaded(func() { atomic.AddInt32(&unloaded, 1) })

	_, err := session.HandleCallback(context.Background(), "code-1")
	require.NoError(t, err)
	idp.failRefresh.Store(true)

	user, err := session.User(context.Background())
	require.Error(t, err)
	require.Nil(t, user)
	require.EqualValues(t, 1, atomic.LoadInt32(&renewErrs))
	require.EqualValues(t, 1, atomic.LoadInt32(&unloaded))

	user, err = session.User(context.Background())
	require.NoError(t, err)
	require.Nil(t, user, "the failed session stays cleared")
}

func TestSignoutRedirectURL(t *testing.T) {
	idp := newFakeIdP(t)
	session := newSession(t, idp)

	url := session.SignoutRedirectURL()
	require.Contains(t, url, idp.server.URL+"/logout")
	require.Contains(t, url, "client_id="+testClientID)
}

func TestClearIsIdempotent(t *testing.T) {
	idp := newFakeIdP(t)
	session := newSession(t, idp)

	var unloaded int32
	session.OnUserUnloaded(func() { atomic.AddInt32(&unloaded, 1) })

	_, err := session.HandleCallback(context.Background(), "code-1")
	require.NoError(t, err)

	session.Clear()
	session.Clear()
	require.EqualValues(t, 1, atomic.LoadInt32(&unloaded), "unloaded fires once per teardown")

	user, err := session.User(context.Background())
	require.NoError(t, err)
	require.Nil(t, user)
}
