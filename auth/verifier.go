// Package auth verifies Clerk session JWTs via JWKS and validates issuer and authorized party.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultLeeway = 30 * time.Second
)

// Verifier validates Clerk session tokens against a JWKS endpoint.
type Verifier struct {
	issuer            string
	authorizedParties map[string]struct{}
	keyfunc           jwt.Keyfunc
	parser            *jwt.Parser
}

// NewVerifier builds a verifier with an optional JWKS URL override. When
// authorizedParties is non-empty the token's azp claim must be one of them.
func NewVerifier(issuer, jwksURL string, authorizedParties []string) (*Verifier, error) {
	normalizedIssuer := normalizeIssuer(issuer)
	if normalizedIssuer == "" {
		return nil, errors.New("issuer must be set")
	}
	if jwksURL == "" {
		jwksURL = normalizedIssuer + "/.well-known/jwks.json"
	}

	keyProvider, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to init JWKS keyfunc: %w", err)
	}
	return newVerifier(normalizedIssuer, keyProvider.Keyfunc, authorizedParties), nil
}

func newVerifier(issuer string, kf jwt.Keyfunc, authorizedParties []string) *Verifier {
	parties := map[string]struct{}{}
	for _, p := range authorizedParties {
		if p = strings.TrimRight(strings.TrimSpace(p), "/"); p != "" {
			parties[p] = struct{}{}
		}
	}

	parser := jwt.NewParser(
		jwt.WithIssuer(issuer),
		jwt.WithLeeway(defaultLeeway),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Name}),
	)

	return &Verifier{
		issuer:            issuer,
		authorizedParties: parties,
		keyfunc:           kf,
		parser:            parser,
	}
}

// Verify parses and validates a JWT, returning extracted claims.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	token, err := v.parser.Parse(tokenString, v.keyfunc)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	claims := &Claims{
		Subject:         readString(mapClaims, "sub"),
		Issuer:          readString(mapClaims, "iss"),
		SessionID:       readString(mapClaims, "sid"),
		AuthorizedParty: readString(mapClaims, "azp"),
		Email:           readString(mapClaims, "email"),
		Name:            readString(mapClaims, "name"),
		ExpiresAt:       readExpiry(mapClaims["exp"]),
		Raw:             mapClaims,
	}
	if claims.Subject == "" {
		return nil, errors.New("token missing sub")
	}
	if len(v.authorizedParties) > 0 {
		if _, ok := v.authorizedParties[strings.TrimRight(claims.AuthorizedParty, "/")]; !ok {
			return nil, fmt.Errorf("unauthorized party %q", claims.AuthorizedParty)
		}
	}
	return claims, nil
}

// Clerk issuers carry no trailing slash and the iss claim matches exactly.
func normalizeIssuer(issuer string) string {
	return strings.TrimRight(strings.TrimSpace(issuer), "/")
}

func readString(claims jwt.MapClaims, key string) string {
	if s, ok := claims[key].(string); ok {
		return s
	}
	return ""
}

func readExpiry(raw any) time.Time {
	switch v := raw.(type) {
	case float64:
		return time.Unix(int64(v), 0)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return time.Unix(i, 0)
		}
	case int64:
		return time.Unix(v, 0)
	}
	return time.Time{}
}
