// internal/ledger/ledger.go
package ledger

import (
	"fmt"
	"time"

	"gamerent/internal/accounts"
	"gamerent/internal/catalog"
	"gamerent/internal/entitlement"
	"gamerent/internal/money"
	"gamerent/internal/pricing"

	"github.com/google/uuid"
)

const day = 24 * time.Hour

// Authorizer decides how much of a price is debited from the user's wallet.
type Authorizer interface {
	Authorize(user *accounts.User, amount money.Money) (money.Money, error)
}

// WalletAuthorizer debits the full amount when the balance covers it.
type WalletAuthorizer struct{}

func (WalletAuthorizer) Authorize(user *accounts.User, amount money.Money) (money.Money, error) {
	if user.Wallet < amount {
		return 0, fmt.Errorf("%w: balance %s, price %s", ErrInsufficientFunds, user.Wallet, amount)
	}
	return amount, nil
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithAuthorizer replaces the default wallet authorizer.
func WithAuthorizer(a Authorizer) Option {
	return func(l *Ledger) { l.authorizer = a }
}

// WithIDGenerator overrides rental id generation.
func WithIDGenerator(f func() uuid.UUID) Option {
	return func(l *Ledger) { l.newID = f }
}

// Ledger orchestrates rental creation and return over caller-owned state. It
// validates everything before mutating, so a failed call leaves user, window and
// game untouched. Callers serialize calls per user and per game.
type Ledger struct {
	prices     *pricing.Calculator
	tracker    *entitlement.Tracker
	authorizer Authorizer
	cfg        Config
	newID      func() uuid.UUID
}

// New builds a Ledger; zero Config fields take the defaults.
func New(prices *pricing.Calculator, tracker *entitlement.Tracker, cfg Config, opts ...Option) *Ledger {
	def := DefaultConfig()
	if cfg.RentalTerm <= 0 {
		cfg.RentalTerm = def.RentalTerm
	}
	if cfg.DailyFineRate <= 0 {
		cfg.DailyFineRate = def.DailyFineRate
	}
	l := &Ledger{
		prices:     prices,
		tracker:    tracker,
		authorizer: WalletAuthorizer{},
		cfg:        cfg,
		newID:      uuid.New,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Quote prices a rental of game for the holder of window without side effects.
func (l *Ledger) Quote(game *catalog.Game, window *entitlement.Window, now time.Time) (Quote, error) {
	decision := l.tracker.Decide(window, now)
	price, err := l.prices.PriceForGame(game, decision)
	if err != nil {
		return Quote{}, err
	}
	kind := KindUnit
	if decision.IsFree {
		kind = KindRedemption
	}
	return Quote{Kind: kind, Price: price, Decision: decision}, nil
}

// CreateRental charges the user and consumes a free redemption when covered.
// The game's unit count is not touched; the returned record tells the caller to
// take one unit out of stock.
func (l *Ledger) CreateRental(user *accounts.User, game *catalog.Game, window *entitlement.Window, now time.Time) (*Record, error) {
	if game == nil || game.AvailableUnits <= 0 || game.Status == catalog.StatusRetired {
		return nil, ErrInvalidGame
	}

	q, err := l.Quote(game, window, now)
	if err != nil {
		return nil, err
	}

	var debit money.Money
	if q.Price > 0 {
		debit, err = l.authorizer.Authorize(user, q.Price)
		if err != nil {
			return nil, err
		}
	}

	var consumed entitlement.Window
	if q.Decision.IsFree {
		consumed = *window
		if err := l.tracker.Consume(&consumed, now); err != nil {
			return nil, err
		}
	}

	// All checks passed; apply.
	user.Wallet -= debit
	if q.Decision.IsFree {
		*window = consumed
	}

	rec := &Record{
		ID:            l.newID(),
		UserID:        user.ID,
		GameID:        game.ID,
		GameUUID:      game.UUID,
		Kind:          q.Kind,
		Status:        StatusActive,
		StartDate:     now,
		ListPrice:     q.Price,
		AmountCharged: debit,
		Version:       1,
	}
	if q.Kind == KindUnit {
		due := now.Add(l.cfg.RentalTerm)
		rec.ExpectedReturnDate = &due
	}
	return rec, nil
}

// ReturnRental closes record at now and computes the overdue fine. Subscription
// redemptions have no due date and never accrue a fine.
func (l *Ledger) ReturnRental(record *Record, now time.Time) (Return, error) {
	if record.Returned() {
		return Return{}, ErrAlreadyReturned
	}

	days := DaysOverdue(record.ExpectedReturnDate, now)
	fine := l.cfg.DailyFineRate.Mul(days)

	returned := now
	record.ReturnDate = &returned
	record.FineAmount = &fine
	record.Status = StatusReturned
	record.Version++

	return Return{
		RentalID:    record.ID,
		FineAmount:  fine,
		DaysOverdue: days,
		HasFine:     days > 0,
	}, nil
}

// DaysOverdue counts started days past due, or 0 when not late or without a due date.
func DaysOverdue(due *time.Time, now time.Time) int {
	if due == nil {
		return 0
	}
	late := now.Sub(*due)
	if late <= 0 {
		return 0
	}
	return int((late + day - 1) / day)
}

// AccruedFine is what returning record at now would cost in fines. For a
// returned record it is the settled fine.
func (l *Ledger) AccruedFine(record *Record, now time.Time) (int, money.Money) {
	if record.Returned() {
		days := 0
		if record.ReturnDate != nil {
			days = DaysOverdue(record.ExpectedReturnDate, *record.ReturnDate)
		}
		if record.FineAmount != nil {
			return days, *record.FineAmount
		}
		return days, money.Zero
	}
	days := DaysOverdue(record.ExpectedReturnDate, now)
	return days, l.cfg.DailyFineRate.Mul(days)
}

// Term returns the fixed unit-rental term.
func (l *Ledger) Term() time.Duration { return l.cfg.RentalTerm }

// Prices exposes the calculator for callers pricing subscriptions.
func (l *Ledger) Prices() *pricing.Calculator { return l.prices }

// Tracker exposes the entitlement tracker.
func (l *Ledger) Tracker() *entitlement.Tracker { return l.tracker }

// Authorizer exposes the funds policy so subscription charges follow it too.
func (l *Ledger) Authorizer() Authorizer { return l.authorizer }
