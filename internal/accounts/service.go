// internal/accounts/service.go
package accounts

import (
	"context"
	"errors"
	"time"

	"gamerent/internal/money"

	"github.com/google/uuid"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrWalletLimit        = errors.New("wallet balance limit exceeded")
	ErrInvalidRole        = errors.New("unknown role")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrConflict           = errors.New("user was modified concurrently")
)

// Session is the result of a successful login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}

// Service defines the interface for the accounts service.
type Service interface {
	Register(ctx context.Context, email, name, password string) (*User, error)
	Authenticate(ctx context.Context, email, password string) (*Session, error)
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	Deposit(ctx context.Context, id uuid.UUID, amount money.Money) (*User, error)
	WalletHistory(ctx context.Context, id uuid.UUID, limit int) ([]WalletEntry, error)
	SetRole(ctx context.Context, id uuid.UUID, role string) (*User, error)
}
