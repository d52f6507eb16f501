package engagement

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"example.com/engagefeed/internal/models"
	"example.com/engagefeed/internal/store"
	"golang.org/x/crypto/bcrypt"
)

const (
	maxUsernameLen = 50
	minPasswordLen = 8
	// bcrypt ignores bytes past 72.
	maxPasswordLen = 72
)

// Register creates an account with a bcrypt-hashed password.
func (e *Engine) Register(ctx context.Context, username, password string) (models.Account, error) {
	if n := utf8.RuneCountInString(username); n == 0 || n > maxUsernameLen {
		return models.Account{}, fmt.Errorf("%w: username must be 1-%d characters", ErrInvalidInput, maxUsernameLen)
	}
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return models.Account{}, fmt.Errorf("%w: password must be %d-%d bytes", ErrInvalidInput, minPasswordLen, maxPasswordLen)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.Account{}, fmt.Errorf("hash password: %w", err)
	}

	acc, err := e.store.CreateAccount(ctx, username, string(hash))
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return models.Account{}, ErrUsernameTaken
		}
		return models.Account{}, fmt.Errorf("create account: %w", err)
	}
	logg.Info("engagement", "Account registered with user_id="+acc.ID)
	return acc, nil
}

// Authenticate checks a username/password pair. Unknown usernames and wrong
// passwords return the same error.
func (e *Engine) Authenticate(ctx context.Context, username, password string) (models.Account, error) {
	acc, err := e.store.GetAccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Account{}, ErrInvalidCredentials
		}
		return models.Account{}, fmt.Errorf("load account: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return models.Account{}, ErrInvalidCredentials
	}
	return acc, nil
}

func (e *Engine) Account(ctx context.Context, id string) (models.Account, error) {
	acc, err := e.store.GetAccount(ctx, id)
	if err != nil {
		return models.Account{}, notFound("account", err)
	}
	return acc, nil
}
