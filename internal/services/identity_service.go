package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"spendtrack/internal/auth"
	"spendtrack/internal/core"
	applog "spendtrack/internal/log"
	"spendtrack/internal/storage"
)

// IdentityService registers accounts and authenticates logins. Tokens it
// issues are stateless; nothing here holds session state.
type IdentityService struct {
	storage    *storage.SQLiteRepository
	tokens     *auth.TokenIssuer
	bcryptCost int
}

func NewIdentityService(storage *storage.SQLiteRepository, tokens *auth.TokenIssuer, bcryptCost int) *IdentityService {
	return &IdentityService{
		storage:    storage,
		tokens:     tokens,
		bcryptCost: bcryptCost,
	}
}

// Register creates a new account. Email uniqueness is case-insensitive: the
// lookup here is only a fast path for a clean error, the store's unique
// index settles concurrent registrations and surfaces the same
// core.ErrEmailExists.
func (s *IdentityService) Register(ctx context.Context, name, email, password string) error {
	if err := core.ValidateRegistration(name, email, password); err != nil {
		return err
	}

	existing, err := s.storage.GetUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("check existing email: %w", err)
	}
	if existing != nil {
		return core.ErrEmailExists
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if _, err := s.storage.CreateUser(ctx, name, email, hash); err != nil {
		if errors.Is(err, core.ErrEmailExists) {
			return core.ErrEmailExists
		}
		return fmt.Errorf("create user: %w", err)
	}

	slog.InfoContext(ctx, "Account registered", applog.FieldEmail, email)
	return nil
}

// LoginResult is what a successful login hands back to the boundary.
type LoginResult struct {
	Token string `json:"token"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Login verifies credentials and issues a bearer token. An unknown email and
// a wrong password both return core.ErrInvalidCredentials so callers cannot
// probe which accounts exist.
func (s *IdentityService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.storage.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("look up account: %w", err)
	}
	if user == nil || !auth.CheckPassword(password, user.PasswordHash) {
		return nil, core.ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	slog.InfoContext(ctx, "Login succeeded", applog.FieldUserID, user.ID)
	return &LoginResult{Token: token, Name: user.Name, Email: user.Email}, nil
}
