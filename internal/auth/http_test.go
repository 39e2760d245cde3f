// ABOUTME: Tests for the admin API bearer middleware
// ABOUTME: Covers header parsing, rejection bodies, operator context and disabled mode

package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveWithAuth(t *testing.T, verifier TokenVerifier, header string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	var operator string
	handler := Middleware(verifier, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		operator = OperatorFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/calls", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, operator
}

func TestMiddleware_ValidToken(t *testing.T) {
	verifier := NewJWTVerifier(testSecret)
	token, err := verifier.Generate("ops@example.com", time.Hour)
	require.NoError(t, err)

	rec, operator := serveWithAuth(t, verifier, "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ops@example.com", operator)
}

func TestMiddleware_Rejections(t *testing.T) {
	verifier := NewJWTVerifier(testSecret)
	expired, err := verifier.Generate("ops", -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name    string
		header  string
		wantMsg string
	}{
		{"missing header", "", "missing authorization header"},
		{"basic scheme", "Basic b3BzOnB3", "invalid authorization header format"},
		{"empty bearer", "Bearer  ", "empty token"},
		{"garbage", "Bearer nope", "invalid token"},
		{"expired", "Bearer " + expired, "token expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, operator := serveWithAuth(t, verifier, tt.header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Empty(t, operator)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantMsg, body["error"])
		})
	}
}

func TestMiddleware_Disabled(t *testing.T) {
	verifier := VerifierFromSecret("")
	assert.Nil(t, verifier)

	rec, operator := serveWithAuth(t, verifier, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, operator)
}

func TestVerifierFromSecret(t *testing.T) {
	verifier := VerifierFromSecret("s3cret")
	require.NotNil(t, verifier)

	token, err := verifier.(*JWTVerifier).Generate("ops", time.Hour)
	require.NoError(t, err)
	sub, err := verifier.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "ops", sub)
}
