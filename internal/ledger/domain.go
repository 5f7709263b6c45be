// internal/ledger/domain.go
package ledger

import (
	"errors"
	"time"

	"gamerent/internal/entitlement"
	"gamerent/internal/money"

	"github.com/google/uuid"
)

var (
	ErrInvalidGame       = errors.New("game has no available units")
	ErrInsufficientFunds = errors.New("insufficient wallet balance")
	ErrAlreadyReturned   = errors.New("rental already returned")
)

// Kind distinguishes paid rentals from subscription redemptions.
type Kind string

const (
	KindUnit       Kind = "unit"
	KindRedemption Kind = "subscription-redemption"
)

// Status is the rental lifecycle: active -> returned.
type Status string

const (
	StatusActive   Status = "active"
	StatusReturned Status = "returned"
)

// Record is a single rental. ExpectedReturnDate is nil for redemptions, which
// are bounded by the subscription window instead.
type Record struct {
	ID                 uuid.UUID    `json:"id" db:"id"`
	UserID             uuid.UUID    `json:"user_id" db:"user_id"`
	GameID             int64        `json:"game_id" db:"game_id"`
	GameUUID           uuid.UUID    `json:"game_uuid" db:"game_uuid"`
	Kind               Kind         `json:"rental_kind" db:"kind"`
	Status             Status       `json:"status" db:"status"`
	StartDate          time.Time    `json:"start_date" db:"start_date"`
	ExpectedReturnDate *time.Time   `json:"expected_return_date,omitempty" db:"expected_return_date"`
	ListPrice          money.Money  `json:"list_price" db:"list_price"`
	AmountCharged      money.Money  `json:"amount_charged" db:"amount_charged"`
	ReturnDate         *time.Time   `json:"return_date,omitempty" db:"return_date"`
	FineAmount         *money.Money `json:"fine_amount,omitempty" db:"fine_amount"`
	Version            int          `json:"version" db:"version"`
}

// Returned reports whether the record reached its terminal state.
func (r *Record) Returned() bool {
	return r.Status == StatusReturned || r.ReturnDate != nil
}

// Quote is the price a rental would cost right now, without side effects.
type Quote struct {
	Kind     Kind                 `json:"rental_kind"`
	Price    money.Money          `json:"price"`
	Decision entitlement.Decision `json:"entitlement"`
}

// Return is the outcome of closing a rental. The fine is exposed for the caller
// to settle; the ledger never debits it.
type Return struct {
	RentalID    uuid.UUID   `json:"rental_id"`
	FineAmount  money.Money `json:"fine_amount"`
	DaysOverdue int         `json:"days_overdue"`
	HasFine     bool        `json:"has_fine"`
}

// Config holds the rental term and fine policy.
type Config struct {
	RentalTerm    time.Duration
	DailyFineRate money.Money
}

// DefaultConfig is a 30 day term with a 5.00 daily fine.
func DefaultConfig() Config {
	return Config{
		RentalTerm:    30 * 24 * time.Hour,
		DailyFineRate: money.Cents(500),
	}
}
