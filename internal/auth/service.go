package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/sppi/sppi-po/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	tokens   *Tokens
	denylist *Denylist
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *Tokens, denylist *Denylist) *Service {
	return &Service{repo: repo, tokens: tokens, denylist: denylist}
}

// Login validates username/password credentials and issues a token.
func (s *Service) Login(ctx context.Context, username, password string) (LoginResult, error) {
	user, err := s.repo.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return LoginResult{}, shared.ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	if !user.IsActive {
		return LoginResult{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return LoginResult{}, shared.ErrInvalidCredentials
	}
	token, claims, err := s.tokens.Issue(*user)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: token, ExpiresAt: claims.ExpiresAt.Time, User: *user}, nil
}

// Authenticate resolves a raw bearer token into a principal.
func (s *Service) Authenticate(ctx context.Context, raw string) (shared.Principal, error) {
	claims, err := s.tokens.Parse(raw)
	if err != nil {
		return shared.Principal{}, err
	}
	revoked, err := s.denylist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return shared.Principal{}, fmt.Errorf("auth: denylist lookup: %w", err)
	}
	if revoked {
		return shared.Principal{}, fmt.Errorf("%w: token revoked", shared.ErrUnauthenticated)
	}
	return shared.Principal{
		UserID:      claims.UserID,
		Username:    claims.Username,
		Email:       claims.Email,
		Role:        claims.Role,
		NamaLengkap: claims.NamaLengkap,
		TokenID:     claims.ID,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

// Me returns the caller's current user record.
func (s *Service) Me(ctx context.Context, p shared.Principal) (User, error) {
	user, err := s.repo.FindByID(ctx, p.UserID)
	if err != nil {
		return User{}, err
	}
	if !user.IsActive {
		return User{}, fmt.Errorf("%w: account disabled", shared.ErrUnauthenticated)
	}
	return *user, nil
}

// Logout revokes the caller's token until it expires.
func (s *Service) Logout(ctx context.Context, p shared.Principal) error {
	if p.TokenID == "" {
		return shared.ErrUnauthenticated
	}
	return s.denylist.Revoke(ctx, p.TokenID, p.ExpiresAt)
}
