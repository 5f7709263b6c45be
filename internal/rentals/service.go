// internal/rentals/service.go
package rentals

import (
	"context"

	"gamerent/internal/entitlement"
	"gamerent/internal/ledger"
	"gamerent/pkg/eventstore"

	"github.com/google/uuid"
)

// Service defines the interface for the rentals service.
type Service interface {
	CreateRental(ctx context.Context, userID, gameUUID uuid.UUID) (*Receipt, error)
	ReturnRental(ctx context.Context, userID, rentalID uuid.UUID) (*ReturnReceipt, error)
	StartSubscription(ctx context.Context, userID uuid.UUID) (*SubscriptionReceipt, error)
	Quote(ctx context.Context, userID, gameUUID uuid.UUID) (*QuoteView, error)
	GetRental(ctx context.Context, userID, rentalID uuid.UUID) (*RentalView, error)
	ActiveRentals(ctx context.Context, userID uuid.UUID) ([]*RentalView, error)
	History(ctx context.Context, userID uuid.UUID, limit int) ([]*ledger.Record, error)
	Timeline(ctx context.Context, userID, rentalID uuid.UUID) ([]eventstore.Event, error)
	Entitlement(ctx context.Context, userID uuid.UUID) (*entitlement.Summary, error)
	CountOverdue(ctx context.Context) (int, error)
}
