package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendtrack/internal/auth"
	"spendtrack/internal/core"
	"spendtrack/internal/storage"
)

func newIdentityService(t *testing.T) (*IdentityService, *auth.TokenIssuer) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	issuer := auth.NewTokenIssuer("test-secret", time.Hour)
	return NewIdentityService(repo, issuer, testBcryptCost), issuer
}

func TestRegisterThenLogin(t *testing.T) {
	svc, issuer := newIdentityService(t)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "Alice", "alice@example.com", "hunter22"))

	result, err := svc.Login(ctx, "alice@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "Alice", result.Name)
	assert.Equal(t, "alice@example.com", result.Email)
	require.NotEmpty(t, result.Token)

	userID, email, err := issuer.Verify(result.Token)
	require.NoError(t, err)
	assert.NotZero(t, userID)
	assert.Equal(t, "alice@example.com", email)
}

func TestRegisterRejectsDuplicateEmailCaseInsensitively(t *testing.T) {
	svc, _ := newIdentityService(t)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "Alice", "a@b.com", "hunter22"))

	err := svc.Register(ctx, "Mallory", "A@B.com", "hunter22")
	assert.ErrorIs(t, err, core.ErrEmailExists)
}

func TestConcurrentRegistrationsAdmitOneAccount(t *testing.T) {
	svc, _ := newIdentityService(t)
	ctx := context.Background()

	// Both goroutines can pass the fast-path lookup before either row
	// lands; the unique index has to settle the race.
	start := make(chan struct{})
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = svc.Register(ctx, "Alice", "alice@example.com", "hunter22")
		}(i)
	}
	close(start)
	wg.Wait()

	var created, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			created++
		case errors.Is(err, core.ErrEmailExists):
			rejected++
		default:
			t.Fatalf("unexpected registration error: %v", err)
		}
	}
	assert.Equal(t, 1, created, "exactly one registration should win")
	assert.Equal(t, 1, rejected, "the loser should see the duplicate-email error")
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newIdentityService(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		userName string
		email    string
		password string
		wantErr  error
	}{
		{"empty name", "", "a@b.com", "hunter22", core.ErrEmptyName},
		{"name too long", strings.Repeat("x", core.MaxNameLength+1), "a@b.com", "hunter22", core.ErrNameTooLong},
		{"malformed email", "Alice", "not-an-email", "hunter22", core.ErrInvalidEmail},
		{"email too long", "Alice", strings.Repeat("x", core.MaxEmailLength) + "@b.com", "hunter22", core.ErrInvalidEmail},
		{"password too short", "Alice", "a@b.com", "12345", core.ErrPasswordTooShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Register(ctx, tt.userName, tt.email, tt.password)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	svc, _ := newIdentityService(t)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "Alice", "alice@example.com", "hunter22"))

	_, errUnknown := svc.Login(ctx, "nobody@example.com", "hunter22")
	_, errWrongPassword := svc.Login(ctx, "alice@example.com", "wrong-password")

	assert.ErrorIs(t, errUnknown, core.ErrInvalidCredentials)
	assert.ErrorIs(t, errWrongPassword, core.ErrInvalidCredentials)
	// An attacker guessing at accounts sees the same error either way.
	assert.Equal(t, errUnknown, errWrongPassword)
}

func TestRegisterDoesNotStorePlaintextPassword(t *testing.T) {
	repo, err := storage.NewSQLiteRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	svc := NewIdentityService(repo, auth.NewTokenIssuer("test-secret", time.Hour), testBcryptCost)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "Alice", "alice@example.com", "hunter22"))

	u, err := repo.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.NotEqual(t, "hunter22", u.PasswordHash)
	assert.True(t, auth.CheckPassword("hunter22", u.PasswordHash))
}
