package app

import (
	"context"
	"errors"

	"github.com/johnp2003/captify-ai/app/models"
	"github.com/johnp2003/captify-ai/auth"
)

// upsertUserFromClaims creates the user on first sign-in with the sign-up grant and
// refreshes email and name afterwards.
func (s *Server) upsertUserFromClaims(ctx context.Context, claims *auth.Claims) (models.User, error) {
	if claims == nil || claims.Subject == "" {
		return models.User{}, errors.New("missing subject")
	}
	if s.Users == nil {
		return models.User{ID: claims.Subject}, nil
	}
	return s.Users.UpsertUser(ctx, models.User{
		ID:    claims.Subject,
		Email: claims.Email,
		Name:  claims.Name,
	}, s.SignupPoints)
}
