// internal/rentals/domain.go
package rentals

import (
	"errors"
	"time"

	"gamerent/internal/entitlement"
	"gamerent/internal/ledger"
	"gamerent/internal/money"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrGameNotFound   = errors.New("game not found")
	ErrRentalNotFound = errors.New("rental not found")
	ErrConflict       = errors.New("concurrent modification, retry")
)

// Aggregate types written to the event store.
const (
	aggregateRental       = "rental"
	aggregateSubscription = "subscription"
)

// subscriptionNamespace derives a stable subscription stream id per user so
// subscription events never collide with the user's own stream.
var subscriptionNamespace = uuid.MustParse("5b0e9c3e-7c1d-4f5e-9a57-2d1c7f0b6a10")

func subscriptionStreamID(userID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(subscriptionNamespace, userID[:])
}

// Receipt is returned by CreateRental.
type Receipt struct {
	Rental      *ledger.Record      `json:"rental"`
	Wallet      money.Money         `json:"wallet"`
	Entitlement entitlement.Summary `json:"entitlement"`
}

// ReturnReceipt is returned by ReturnRental. The fine is informational; it is
// not taken from the wallet.
type ReturnReceipt struct {
	Rental *ledger.Record `json:"rental"`
	ledger.Return
}

// SubscriptionReceipt is returned by StartSubscription.
type SubscriptionReceipt struct {
	Charged     money.Money         `json:"charged"`
	Wallet      money.Money         `json:"wallet"`
	Entitlement entitlement.Summary `json:"entitlement"`
}

// QuoteView is a side-effect free price preview.
type QuoteView struct {
	GameUUID  uuid.UUID `json:"game_uuid"`
	Available bool      `json:"available"`
	ledger.Quote
}

// RentalView adds the fine a rental would incur if returned now.
type RentalView struct {
	*ledger.Record
	DaysOverdue int         `json:"days_overdue"`
	AccruedFine money.Money `json:"accrued_fine"`
}

// RentalCreatedEvent is published when a rental starts.
type RentalCreatedEvent struct {
	RentalID           uuid.UUID   `json:"rental_id"`
	UserID             uuid.UUID   `json:"user_id"`
	GameUUID           uuid.UUID   `json:"game_uuid"`
	Kind               ledger.Kind `json:"rental_kind"`
	ListPrice          money.Money `json:"list_price"`
	AmountCharged      money.Money `json:"amount_charged"`
	ExpectedReturnDate *time.Time  `json:"expected_return_date,omitempty"`
}

// RentalReturnedEvent is published when a rental is closed.
type RentalReturnedEvent struct {
	RentalID    uuid.UUID   `json:"rental_id"`
	ReturnDate  time.Time   `json:"return_date"`
	DaysOverdue int         `json:"days_overdue"`
	FineAmount  money.Money `json:"fine_amount"`
}

// SubscriptionStartedEvent is published when a user opens a new window.
// Forfeited counts redemptions left unused in the replaced window.
type SubscriptionStartedEvent struct {
	UserID      uuid.UUID   `json:"user_id"`
	WindowStart time.Time   `json:"window_start"`
	WindowEnd   time.Time   `json:"window_end"`
	Charged     money.Money `json:"charged"`
	Forfeited   int         `json:"forfeited"`
}
