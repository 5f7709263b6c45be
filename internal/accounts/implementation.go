// internal/accounts/implementation.go
package accounts

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"gamerent/internal/auth"
	"gamerent/internal/money"
	"gamerent/pkg/eventstore"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const aggregateType = "user"

const userColumns = `id, email, name, role, wallet, version, created_at, updated_at`

// service implements the Service interface.
type service struct {
	eventStore  *eventstore.EventStore
	db          *sqlx.DB
	issuer      *auth.Issuer
	rateLimiter *rate.Limiter
	logger      *zap.Logger
	now         func() time.Time
}

// NewService creates a new accounts service instance. The limiter guards
// register and login.
func NewService(es *eventstore.EventStore, db *sqlx.DB, issuer *auth.Issuer, limiter *rate.Limiter, logger *zap.Logger) Service {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Every(time.Minute/5), 5)
	}
	return &service{
		eventStore:  es,
		db:          db,
		issuer:      issuer,
		rateLimiter: limiter,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Register creates a client account with an empty wallet.
func (s *service) Register(ctx context.Context, email, name, password string) (*User, error) {
	if !s.rateLimiter.Allow() {
		return nil, ErrRateLimited
	}

	email = normalizeEmail(email)
	passwordHash, salt, err := hashPassword(password)
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash password")
	}

	now := s.now()
	user := &User{
		ID:        uuid.New(),
		Email:     email,
		Name:      strings.TrimSpace(name),
		Role:      RoleClient,
		Wallet:    money.Zero,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	event, err := eventstore.NewEvent("UserRegistered", UserRegisteredEvent{ID: user.ID, Email: user.Email, Name: user.Name})
	if err != nil {
		return nil, err
	}

	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.eventStore.Append(ctx, tx.Tx, user.ID, aggregateType, 0, []eventstore.Event{event}); err != nil {
			return errors.Wrap(err, "failed to append event")
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO users (id, email, name, role, wallet, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, user.ID, user.Email, user.Name, user.Role, user.Wallet, user.Version, user.CreatedAt, user.UpdatedAt)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				return ErrEmailTaken
			}
			return errors.Wrap(err, "failed to insert user")
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO credentials (user_id, password_hash, salt)
			VALUES ($1, $2, $3)
		`, user.ID, passwordHash, salt)
		if err != nil {
			return errors.Wrap(err, "failed to insert credentials")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID.String()))
	return user, nil
}

// Authenticate verifies credentials and issues an access token.
func (s *service) Authenticate(ctx context.Context, email, password string) (*Session, error) {
	if !s.rateLimiter.Allow() {
		return nil, ErrRateLimited
	}

	user := &User{}
	err := s.db.GetContext(ctx, user, `SELECT `+userColumns+` FROM users WHERE email = $1`, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, "authentication failed")
	}

	var cred Credential
	if err := s.db.GetContext(ctx, &cred, `SELECT user_id, password_hash, salt FROM credentials WHERE user_id = $1`, user.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, "authentication failed")
	}

	ok, err := verifyPassword(password, cred.Salt, cred.PasswordHash)
	if err != nil {
		return nil, errors.Wrap(err, "authentication failed")
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	token, exp, err := s.issuer.Issue(user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: exp, User: user}, nil
}

// GetUser retrieves a user by their ID.
func (s *service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	user := &User{}
	if err := s.db.GetContext(ctx, user, `SELECT `+userColumns+` FROM users WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get user from read model")
	}
	return user, nil
}

// Deposit credits the wallet and records the movement in the wallet ledger.
func (s *service) Deposit(ctx context.Context, id uuid.UUID, amount money.Money) (*User, error) {
	if amount <= 0 || amount > money.MaxStored {
		return nil, ErrInvalidAmount
	}

	var user *User
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		user, err = lockUser(ctx, tx, id)
		if err != nil {
			return err
		}

		balance, err := user.Wallet.Add(amount)
		if err != nil || balance > money.MaxStored {
			return ErrWalletLimit
		}
		user.Wallet = balance
		user.UpdatedAt = s.now()

		event, err := eventstore.NewEvent("WalletDeposited", WalletDepositedEvent{ID: id, Amount: amount, BalanceAfter: user.Wallet})
		if err != nil {
			return err
		}
		if err := s.appendEvent(ctx, tx, user, event); err != nil {
			return err
		}

		if err := bumpVersion(ctx, tx, user, `wallet = $1`, user.Wallet); err != nil {
			return err
		}
		return InsertWalletEntry(ctx, tx, &WalletEntry{
			UserID:       id,
			EntryType:    EntryDeposit,
			Amount:       amount,
			BalanceAfter: user.Wallet,
			CreatedAt:    user.UpdatedAt,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("wallet deposit",
		zap.String("user_id", id.String()),
		zap.String("amount", amount.String()),
		zap.String("balance", user.Wallet.String()),
	)
	return user, nil
}

// WalletHistory lists the most recent wallet movements first.
func (s *service) WalletHistory(ctx context.Context, id uuid.UUID, limit int) ([]WalletEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	entries := []WalletEntry{}
	err := s.db.SelectContext(ctx, &entries, `
		SELECT id, user_id, entry_type, ref_id, amount, balance_after, created_at
		FROM wallet_ledger
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, id, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load wallet history")
	}
	return entries, nil
}

// SetRole changes a user's role. Admins rent without being charged.
func (s *service) SetRole(ctx context.Context, id uuid.UUID, role string) (*User, error) {
	if role != RoleClient && role != RoleAdmin {
		return nil, ErrInvalidRole
	}

	var user *User
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		user, err = lockUser(ctx, tx, id)
		if err != nil {
			return err
		}
		if user.Role == role {
			return nil
		}

		event, err := eventstore.NewEvent("UserRoleChanged", UserRoleChangedEvent{ID: id, OldRole: user.Role, NewRole: role})
		if err != nil {
			return err
		}
		if err := s.appendEvent(ctx, tx, user, event); err != nil {
			return err
		}
		user.Role = role
		user.UpdatedAt = s.now()
		return bumpVersion(ctx, tx, user, `role = $1`, user.Role)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user role changed", zap.String("user_id", id.String()), zap.String("role", role))
	return user, nil
}

func (s *service) appendEvent(ctx context.Context, tx *sqlx.Tx, user *User, event eventstore.Event) error {
	err := s.eventStore.Append(ctx, tx.Tx, user.ID, aggregateType, user.Version, []eventstore.Event{event})
	if errors.Is(err, eventstore.ErrConcurrencyConflict) {
		return ErrConflict
	}
	if err != nil {
		return errors.Wrap(err, "failed to append event")
	}
	return nil
}

func (s *service) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

func lockUser(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*User, error) {
	user := &User{}
	if err := tx.GetContext(ctx, user, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to lock user")
	}
	return user, nil
}

func bumpVersion(ctx context.Context, tx *sqlx.Tx, user *User, set string, args ...interface{}) error {
	n := len(args)
	query := fmt.Sprintf(`
		UPDATE users
		SET %s, version = version + 1, updated_at = $%d
		WHERE id = $%d AND version = $%d
	`, set, n+1, n+2, n+3)
	args = append(args, user.UpdatedAt, user.ID, user.Version)

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "failed to update read model")
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read updated row count")
	}
	if rows == 0 {
		return ErrConflict
	}
	user.Version++
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
