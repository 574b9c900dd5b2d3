package actor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditlog/pkg/testutil"
)

func TestResolvers(t *testing.T) {
	ctx := context.Background()

	testutil.Given(t, "no resolver", func(t *testing.T) {
		var r Resolver
		testutil.Then(t, "the actor is empty", func(t *testing.T) {
			assert.Empty(t, r.Resolve(ctx))
		})
	})

	testutil.Given(t, "a principal in the context", func(t *testing.T) {
		ctx := WithPrincipal(ctx, "ann")
		testutil.Then(t, "FromContext returns it", func(t *testing.T) {
			assert.Equal(t, "ann", FromContext.Resolve(ctx))
		})
		testutil.Then(t, "Chain prefers the first non-empty resolver", func(t *testing.T) {
			assert.Equal(t, "ann", Chain(FromContext, Static("system")).Resolve(ctx))
			assert.Equal(t, "system", Chain(nil, FromContext, Static("system")).Resolve(context.Background()))
		})
	})

	testutil.Given(t, "a context without principal", func(t *testing.T) {
		testutil.Then(t, "Principal is empty", func(t *testing.T) {
			assert.Empty(t, Principal(ctx))
			assert.Empty(t, Chain().Resolve(ctx))
		})
	})
}

func TestHMACVerifier(t *testing.T) {
	v := NewHMACVerifier("test-signing-key", "auditlog")

	t.Run("round trip", func(t *testing.T) {
		token, err := v.IssueToken("ann", time.Minute)
		require.NoError(t, err)
		claims, err := v.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, "ann", claims.Subject)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := v.IssueToken("ann", -time.Minute)
		require.NoError(t, err)
		_, err = v.ValidateToken(token)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("wrong key", func(t *testing.T) {
		token, err := NewHMACVerifier("other-key", "auditlog").IssueToken("ann", time.Minute)
		require.NoError(t, err)
		_, err = v.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		token, err := NewHMACVerifier("test-signing-key", "someone-else").IssueToken("ann", time.Minute)
		require.NoError(t, err)
		_, err = v.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := v.ValidateToken("not-a-jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestMiddleware(t *testing.T) {
	v := NewHMACVerifier("test-signing-key", "")
	var seen string
	handler := Middleware(v, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	serve := func(authHeader string) int {
		seen = "unset"
		req := httptest.NewRequest(http.MethodPatch, "/users/1", nil)
		if authHeader != "" {
			req.Header.Set("Authorization", authHeader)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	token, err := v.IssueToken("ann", time.Minute)
	require.NoError(t, err)

	assert.Equal(t, http.StatusNoContent, serve("Bearer "+token))
	assert.Equal(t, "ann", seen)

	assert.Equal(t, http.StatusNoContent, serve("Bearer broken"))
	assert.Empty(t, seen)

	assert.Equal(t, http.StatusNoContent, serve(""))
	assert.Empty(t, seen)

	assert.Equal(t, http.StatusNoContent, serve("Basic YW5uOnB3"))
	assert.Empty(t, seen)
}
