package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	testIssuer = "https://clerk.captify.test"
	testParty  = "https://app.captify.test"
)

func newProtectedRouter(verifier *Verifier, cfg MiddlewareConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Middleware(verifier, cfg))
	router.GET("/protected", func(c *gin.Context) {
		claims, ok := ClaimsFromContext(c.Request.Context())
		if !ok || claims.Subject == "" {
			c.Status(http.StatusUnauthorized)
			return
		}
		c.String(http.StatusOK, claims.Subject)
	})
	return router
}

func serve(router *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestMiddlewareMissingToken(t *testing.T) {
	verifier, _ := newTestVerifier(t, nil)
	resp := serve(newProtectedRouter(verifier, MiddlewareConfig{}), "")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestMiddlewareMalformedHeader(t *testing.T) {
	verifier, _ := newTestVerifier(t, nil)
	resp := serve(newProtectedRouter(verifier, MiddlewareConfig{}), "Token abc")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestMiddlewareInvalidToken(t *testing.T) {
	verifier, _ := newTestVerifier(t, nil)

	badKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to create key: %v", err)
	}
	tokenString := signToken(t, badKey, "test-key", jwt.MapClaims{"iss": testIssuer})

	resp := serve(newProtectedRouter(verifier, MiddlewareConfig{}), "Bearer "+tokenString)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestMiddlewareWrongIssuer(t *testing.T) {
	verifier, key := newTestVerifier(t, nil)
	tokenString := signToken(t, key, "test-key", jwt.MapClaims{"iss": "https://evil.test"})

	resp := serve(newProtectedRouter(verifier, MiddlewareConfig{}), "Bearer "+tokenString)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestMiddlewareExpiredToken(t *testing.T) {
	verifier, key := newTestVerifier(t, nil)
	tokenString := signToken(t, key, "test-key", jwt.MapClaims{
		"iss": testIssuer,
		"exp": time.Now().Add(-2 * time.Minute).Unix(),
	})

	resp := serve(newProtectedRouter(verifier, MiddlewareConfig{}), "Bearer "+tokenString)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestMiddlewareValidToken(t *testing.T) {
	verifier, key := newTestVerifier(t, nil)
	tokenString := signToken(t, key, "test-key", jwt.MapClaims{"iss": testIssuer})

	resp := serve(newProtectedRouter(verifier, MiddlewareConfig{}), "Bearer "+tokenString)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if resp.Body.String() != "user_123" {
		t.Fatalf("expected subject in context, got %q", resp.Body.String())
	}
}

func TestMiddlewareAuthorizedParty(t *testing.T) {
	verifier, key := newTestVerifier(t, []string{testParty + "/"})

	ok := signToken(t, key, "test-key", jwt.MapClaims{"iss": testIssuer, "azp": testParty})
	if resp := serve(newProtectedRouter(verifier, MiddlewareConfig{}), "Bearer "+ok); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for allowed azp, got %d", resp.Code)
	}

	other := signToken(t, key, "test-key", jwt.MapClaims{"iss": testIssuer, "azp": "https://phish.test"})
	if resp := serve(newProtectedRouter(verifier, MiddlewareConfig{}), "Bearer "+other); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for foreign azp, got %d", resp.Code)
	}
}

func TestMiddlewareOnAuthenticated(t *testing.T) {
	verifier, key := newTestVerifier(t, nil)
	tokenString := signToken(t, key, "test-key", jwt.MapClaims{"iss": testIssuer, "email": "u@example.com"})

	var seen *Claims
	router := newProtectedRouter(verifier, MiddlewareConfig{
		OnAuthenticated: func(_ context.Context, c *Claims) error {
			seen = c
			return nil
		},
	})
	if resp := serve(router, "Bearer "+tokenString); resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if seen == nil || seen.Email != "u@example.com" || seen.SessionID != "sess_1" {
		t.Fatalf("hook did not receive claims: %+v", seen)
	}

	failing := newProtectedRouter(verifier, MiddlewareConfig{
		OnAuthenticated: func(context.Context, *Claims) error { return errors.New("db down") },
	})
	if resp := serve(failing, "Bearer "+tokenString); resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 when hook fails, got %d", resp.Code)
	}
}

func TestMiddlewareDisabled(t *testing.T) {
	resp := serve(newProtectedRouter(nil, MiddlewareConfig{DisableAuth: true}), "")
	if resp.Code != http.StatusOK || resp.Body.String() != LocalSubject {
		t.Fatalf("expected local subject, got %d %q", resp.Code, resp.Body.String())
	}
}

func TestNewVerifierRequiresIssuer(t *testing.T) {
	if _, err := NewVerifier("  ", "", nil); err == nil {
		t.Fatalf("expected error for empty issuer")
	}
}

func newTestVerifier(t *testing.T, parties []string) (*Verifier, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to create key: %v", err)
	}

	jwks := newJWKS(key, "test-key")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	t.Cleanup(server.Close)

	verifier, err := NewVerifier(testIssuer+"/", server.URL, parties)
	if err != nil {
		t.Fatalf("failed to create verifier: %v", err)
	}
	return verifier, key
}

// signToken signs a session token; overrides replace the default claims.
func signToken(t *testing.T, key *rsa.PrivateKey, kid string, overrides jwt.MapClaims) string {
	t.Helper()
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": "user_123",
		"sid": "sess_1",
		"exp": now.Add(10 * time.Minute).Unix(),
		"iat": now.Unix(),
		"nbf": now.Unix(),
	}
	for k, v := range overrides {
		claims[k] = v
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	tokenString, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return tokenString
}

type jwksPayload struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func newJWKS(key *rsa.PrivateKey, kid string) jwksPayload {
	n := base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes())
	e := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes())
	return jwksPayload{
		Keys: []jwk{
			{
				Kty: "RSA",
				Kid: kid,
				Use: "sig",
				Alg: "RS256",
				N:   n,
				E:   e,
			},
		},
	}
}

func TestExtractBearerToken(t *testing.T) {
	token, ok := extractBearerToken("Bearer abc")
	if !ok || token != "abc" {
		t.Fatalf("expected token")
	}
	if _, ok := extractBearerToken("Bearer"); ok {
		t.Fatalf("expected invalid header")
	}
	if _, ok := extractBearerToken("Token abc"); ok {
		t.Fatalf("expected invalid scheme")
	}
	if _, ok := extractBearerToken(""); ok {
		t.Fatalf("expected empty header to be invalid")
	}
}

func TestClaimsFromContext(t *testing.T) {
	claims := &Claims{Subject: "user-1"}
	ctx := WithClaims(context.Background(), claims)
	got, ok := ClaimsFromContext(ctx)
	if !ok || got.Subject != "user-1" {
		t.Fatalf("expected claims from context")
	}
}
