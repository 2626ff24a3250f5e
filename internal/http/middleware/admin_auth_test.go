package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signAdminToken(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func reviewerClaims() jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   "reviewer-1",
		Audience:  jwt.ClaimStrings{AdminAudience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
	}
}

func TestAdminJWTRejects(t *testing.T) {
	expired := reviewerClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	wrongAudience := reviewerClaims()
	wrongAudience.Audience = jwt.ClaimStrings{"someone-else"}
	noExpiry := reviewerClaims()
	noExpiry.ExpiresAt = nil

	tests := []struct {
		name   string
		secret string
		header string
	}{
		{"secret not configured", "", "Bearer " + signAdminToken(t, "secret", reviewerClaims())},
		{"missing header", "secret", ""},
		{"not a bearer token", "secret", "Basic abc"},
		{"wrong signing key", "secret", "Bearer " + signAdminToken(t, "wrong", reviewerClaims())},
		{"expired", "secret", "Bearer " + signAdminToken(t, "secret", expired)},
		{"wrong audience", "secret", "Bearer " + signAdminToken(t, "secret", wrongAudience)},
		{"no expiry", "secret", "Bearer " + signAdminToken(t, "secret", noExpiry)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			called := false
			req := httptest.NewRequest(http.MethodGet, "/admin/emergency-logs", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			AdminJWT(tc.secret)(okHandler(&called)).ServeHTTP(rec, req)

			assert.False(t, called)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestAdminJWTAcceptsReviewerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/admin/emergency-logs", nil)
	req.Header.Set("Authorization", "Bearer "+signAdminToken(t, "secret", reviewerClaims()))
	rec := httptest.NewRecorder()

	var subject string
	AdminJWT("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, _ = AdminSubject(r.Context())
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "reviewer-1", subject)
}
