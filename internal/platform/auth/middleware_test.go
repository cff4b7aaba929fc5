package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, method jwt.SigningMethod, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(method, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func validClaims(subject string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(1 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func runJWT(t *testing.T, cfg JWTConfig, header string) (string, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var subject string
	handler := func(c echo.Context) error {
		subject = SubjectFromContext(c.Request().Context())
		return c.String(http.StatusOK, "ok")
	}
	err := JWTMiddleware(cfg)(handler)(c)
	return subject, err
}

func expectUnauthorized(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	_, err := runJWT(t, JWTConfig{SigningKey: testSigningKey}, "")
	expectUnauthorized(t, err)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runJWT(t, JWTConfig{SigningKey: testSigningKey}, tt.header)
			expectUnauthorized(t, err)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	tokenStr := createTestToken(t, jwt.SigningMethodHS256, validClaims("user-123"), testSigningKey)

	subject, err := runJWT(t, JWTConfig{SigningKey: testSigningKey}, "Bearer "+tokenStr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "user-123" {
		t.Errorf("expected subject user-123, got %q", subject)
	}
}

func TestJWTMiddleware_ExpiredToken(t *testing.T) {
	claims := validClaims("user-123")
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-1 * time.Hour))
	tokenStr := createTestToken(t, jwt.SigningMethodHS256, claims, testSigningKey)

	_, err := runJWT(t, JWTConfig{SigningKey: testSigningKey}, "Bearer "+tokenStr)
	expectUnauthorized(t, err)
}

func TestJWTMiddleware_RejectsTokenWithoutExpiry(t *testing.T) {
	claims := validClaims("user-123")
	claims.ExpiresAt = nil
	tokenStr := createTestToken(t, jwt.SigningMethodHS256, claims, testSigningKey)

	_, err := runJWT(t, JWTConfig{SigningKey: testSigningKey}, "Bearer "+tokenStr)
	expectUnauthorized(t, err)
}

func TestJWTMiddleware_RejectsOtherAlgorithms(t *testing.T) {
	tokenStr := createTestToken(t, jwt.SigningMethodHS512, validClaims("user-123"), testSigningKey)

	_, err := runJWT(t, JWTConfig{SigningKey: testSigningKey}, "Bearer "+tokenStr)
	expectUnauthorized(t, err)
}

func TestJWTMiddleware_WrongKey(t *testing.T) {
	tokenStr := createTestToken(t, jwt.SigningMethodHS256, validClaims("user-123"), []byte("some-other-key-that-is-long-enough!"))

	_, err := runJWT(t, JWTConfig{SigningKey: testSigningKey}, "Bearer "+tokenStr)
	expectUnauthorized(t, err)
}

func TestJWTMiddleware_IssuerAndAudience(t *testing.T) {
	cfg := JWTConfig{SigningKey: testSigningKey, Issuer: "thyrotrack", Audience: "web"}

	good := validClaims("user-1")
	good.Issuer = "thyrotrack"
	good.Audience = jwt.ClaimStrings{"web"}
	if _, err := runJWT(t, cfg, "Bearer "+createTestToken(t, jwt.SigningMethodHS256, good, testSigningKey)); err != nil {
		t.Fatalf("unexpected error for matching issuer/audience: %v", err)
	}

	wrongIssuer := good
	wrongIssuer.Issuer = "elsewhere"
	_, err := runJWT(t, cfg, "Bearer "+createTestToken(t, jwt.SigningMethodHS256, wrongIssuer, testSigningKey))
	expectUnauthorized(t, err)

	wrongAudience := good
	wrongAudience.Audience = jwt.ClaimStrings{"mobile"}
	_, err = runJWT(t, cfg, "Bearer "+createTestToken(t, jwt.SigningMethodHS256, wrongAudience, testSigningKey))
	expectUnauthorized(t, err)
}

func TestJWTMiddleware_MissingSubject(t *testing.T) {
	tokenStr := createTestToken(t, jwt.SigningMethodHS256, validClaims(""), testSigningKey)

	_, err := runJWT(t, JWTConfig{SigningKey: testSigningKey}, "Bearer "+tokenStr)
	expectUnauthorized(t, err)
}

func TestIssueToken_RoundTrip(t *testing.T) {
	cfg := JWTConfig{SigningKey: testSigningKey, Issuer: "thyrotrack", Audience: "web"}

	tokenStr, err := IssueToken(cfg, "alice", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	claims, err := ParseToken(cfg, tokenStr)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Subject != "alice" {
		t.Errorf("expected subject alice, got %q", claims.Subject)
	}
	if claims.Issuer != "thyrotrack" {
		t.Errorf("expected issuer thyrotrack, got %q", claims.Issuer)
	}
}

func TestIssueToken_Errors(t *testing.T) {
	if _, err := IssueToken(JWTConfig{}, "alice", time.Hour, time.Now()); err == nil {
		t.Error("expected error for empty signing key")
	}
	if _, err := IssueToken(JWTConfig{SigningKey: testSigningKey}, "", time.Hour, time.Now()); err == nil {
		t.Error("expected error for empty subject")
	}
}

func TestIssueToken_Expired(t *testing.T) {
	cfg := JWTConfig{SigningKey: testSigningKey}
	tokenStr, err := IssueToken(cfg, "alice", time.Minute, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := ParseToken(cfg, tokenStr); err == nil {
		t.Error("expected expired token to be rejected")
	}
}

func TestNoAuthMiddleware_SetsLocalSubject(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var subject string
	handler := func(c echo.Context) error {
		subject = SubjectFromContext(c.Request().Context())
		return c.String(http.StatusOK, "ok")
	}

	if err := NoAuthMiddleware()(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != LocalSubject {
		t.Errorf("expected %q, got %q", LocalSubject, subject)
	}
}

func TestSubjectFromContext_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := SubjectFromContext(req.Context()); got != "" {
		t.Errorf("expected empty subject, got %q", got)
	}
}
