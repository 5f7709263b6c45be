// internal/rentals/store.go
package rentals

import (
	"context"
	"time"

	"gamerent/internal/accounts"
	"gamerent/internal/catalog"
	"gamerent/internal/entitlement"
	"gamerent/internal/ledger"
	"gamerent/internal/money"
	"gamerent/pkg/eventstore"

	"github.com/google/uuid"
)

// Store reads rental state and opens transactions. Lock methods on Tx hold
// row locks until the transaction ends; callers lock user, window, then
// rental, then game.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error

	GetGame(ctx context.Context, gameUUID uuid.UUID) (*catalog.Game, error)
	GetWindow(ctx context.Context, userID uuid.UUID) (*entitlement.Window, error)
	GetRental(ctx context.Context, rentalID uuid.UUID) (*ledger.Record, error)
	ListRentals(ctx context.Context, userID uuid.UUID, activeOnly bool, limit int) ([]*ledger.Record, error)
	CountOverdue(ctx context.Context, now time.Time) (int, error)
	LoadEvents(ctx context.Context, aggregateID uuid.UUID) ([]eventstore.Event, error)
}

// Tx is the write side, scoped to one transaction.
type Tx interface {
	LockUser(ctx context.Context, userID uuid.UUID) (*accounts.User, error)
	LockWindow(ctx context.Context, userID uuid.UUID) (*entitlement.Window, error)
	LockGame(ctx context.Context, gameUUID uuid.UUID) (*catalog.Game, error)
	LockGameByID(ctx context.Context, gameID int64) (*catalog.Game, error)
	LockRental(ctx context.Context, rentalID uuid.UUID) (*ledger.Record, error)

	UpdateWallet(ctx context.Context, userID uuid.UUID, balance money.Money) error
	SetAvailableUnits(ctx context.Context, gameID int64, available int) error
	SaveWindow(ctx context.Context, w *entitlement.Window) error
	InsertRental(ctx context.Context, r *ledger.Record) error
	UpdateRental(ctx context.Context, r *ledger.Record) error
	InsertWalletEntry(ctx context.Context, e *accounts.WalletEntry) error
	AppendEvent(ctx context.Context, aggregateID uuid.UUID, aggregateType string, expectedVersion int, event eventstore.Event) error
}
