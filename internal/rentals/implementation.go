// internal/rentals/implementation.go
package rentals

import (
	"context"
	"errors"
	"strconv"
	"time"

	"gamerent/internal/accounts"
	"gamerent/internal/entitlement"
	"gamerent/internal/ledger"
	"gamerent/internal/platform/metrics"
	"gamerent/pkg/eventstore"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
	maxActiveRentals    = 100
)

// service implements the Service interface.
type service struct {
	store  Store
	ledger *ledger.Ledger
	cache  SummaryCache
	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewService creates a new rentals service instance. A nil cache disables
// entitlement caching.
func NewService(store Store, l *ledger.Ledger, cache SummaryCache, logger *zap.Logger) Service {
	if cache == nil {
		cache = NoopCache()
	}
	return &service{
		store:  store,
		ledger: l,
		cache:  cache,
		logger: logger,
		tracer: otel.Tracer("gamerent/rentals"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateRental prices, charges and records a rental. Wallet, window, stock,
// rental row, wallet ledger and event commit together or not at all.
func (s *service) CreateRental(ctx context.Context, userID, gameUUID uuid.UUID) (*Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "rentals.create", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
		attribute.String("game.uuid", gameUUID.String()),
	))
	defer span.End()

	now := s.now()
	var receipt *Receipt
	err := s.store.InTx(ctx, func(tx Tx) error {
		user, err := tx.LockUser(ctx, userID)
		if err != nil {
			return err
		}
		window, err := tx.LockWindow(ctx, userID)
		if err != nil {
			return err
		}
		game, err := tx.LockGame(ctx, gameUUID)
		if err != nil {
			return err
		}

		rec, err := s.ledger.CreateRental(user, game, window, now)
		if err != nil {
			return err
		}

		if err := tx.SetAvailableUnits(ctx, game.ID, game.AvailableUnits-1); err != nil {
			return err
		}
		if rec.Kind == ledger.KindRedemption {
			if err := tx.SaveWindow(ctx, window); err != nil {
				return err
			}
		}
		if err := tx.InsertRental(ctx, rec); err != nil {
			return err
		}
		if rec.AmountCharged > 0 {
			if err := tx.UpdateWallet(ctx, user.ID, user.Wallet); err != nil {
				return err
			}
			ref := rec.ID
			if err := tx.InsertWalletEntry(ctx, &accounts.WalletEntry{
				UserID:       user.ID,
				EntryType:    accounts.EntryRentalCharge,
				RefID:        &ref,
				Amount:       -rec.AmountCharged,
				BalanceAfter: user.Wallet,
				CreatedAt:    now,
			}); err != nil {
				return err
			}
		}

		event, err := eventstore.NewEvent("RentalCreated", RentalCreatedEvent{
			RentalID:           rec.ID,
			UserID:             user.ID,
			GameUUID:           game.UUID,
			Kind:               rec.Kind,
			ListPrice:          rec.ListPrice,
			AmountCharged:      rec.AmountCharged,
			ExpectedReturnDate: rec.ExpectedReturnDate,
		})
		if err != nil {
			return err
		}
		event.Metadata = map[string]interface{}{"actor": userID.String()}
		if err := tx.AppendEvent(ctx, rec.ID, aggregateRental, 0, event); err != nil {
			return err
		}

		receipt = &Receipt{
			Rental:      rec,
			Wallet:      user.Wallet,
			Entitlement: s.ledger.Tracker().Summarize(window, now),
		}
		return nil
	})
	if err != nil {
		s.fail(span, "create", err)
		return nil, err
	}

	s.cache.Invalidate(ctx, userID)
	metrics.RentalsCreated.WithLabelValues(string(receipt.Rental.Kind)).Inc()
	if charged := receipt.Rental.AmountCharged; charged > 0 {
		metrics.RevenueCents.WithLabelValues("rental").Add(float64(charged.Cents()))
	}
	span.SetAttributes(attribute.String("rental.id", receipt.Rental.ID.String()))
	s.logger.Info("rental created",
		zap.String("rental_id", receipt.Rental.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("game_uuid", gameUUID.String()),
		zap.String("kind", string(receipt.Rental.Kind)),
		zap.Stringer("charged", receipt.Rental.AmountCharged),
	)
	return receipt, nil
}

// ReturnRental closes one of the caller's rentals and puts the unit back in
// stock. The fine is reported, not debited.
func (s *service) ReturnRental(ctx context.Context, userID, rentalID uuid.UUID) (*ReturnReceipt, error) {
	ctx, span := s.tracer.Start(ctx, "rentals.return", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
		attribute.String("rental.id", rentalID.String()),
	))
	defer span.End()

	now := s.now()
	var receipt *ReturnReceipt
	err := s.store.InTx(ctx, func(tx Tx) error {
		if _, err := tx.LockUser(ctx, userID); err != nil {
			return err
		}
		rec, err := tx.LockRental(ctx, rentalID)
		if err != nil {
			return err
		}
		if rec.UserID != userID {
			return ErrRentalNotFound
		}

		prev := rec.Version
		ret, err := s.ledger.ReturnRental(rec, now)
		if err != nil {
			return err
		}
		if err := tx.UpdateRental(ctx, rec); err != nil {
			return err
		}

		game, err := tx.LockGameByID(ctx, rec.GameID)
		if err != nil {
			return err
		}
		available := game.AvailableUnits + 1
		if available > game.TotalUnits {
			available = game.TotalUnits
		}
		if err := tx.SetAvailableUnits(ctx, game.ID, available); err != nil {
			return err
		}

		event, err := eventstore.NewEvent("RentalReturned", RentalReturnedEvent{
			RentalID:    rec.ID,
			ReturnDate:  now,
			DaysOverdue: ret.DaysOverdue,
			FineAmount:  ret.FineAmount,
		})
		if err != nil {
			return err
		}
		event.Metadata = map[string]interface{}{"actor": userID.String()}
		if err := tx.AppendEvent(ctx, rec.ID, aggregateRental, prev, event); err != nil {
			return err
		}

		receipt = &ReturnReceipt{Rental: rec, Return: ret}
		return nil
	})
	if err != nil {
		s.fail(span, "return", err)
		return nil, err
	}

	metrics.RentalsReturned.WithLabelValues(strconv.FormatBool(receipt.HasFine)).Inc()
	if receipt.HasFine {
		metrics.FinesCents.Add(float64(receipt.FineAmount.Cents()))
	}
	s.logger.Info("rental returned",
		zap.String("rental_id", rentalID.String()),
		zap.String("user_id", userID.String()),
		zap.Int("days_overdue", receipt.DaysOverdue),
		zap.Stringer("fine", receipt.FineAmount),
	)
	return receipt, nil
}

// StartSubscription charges the period fee and opens a fresh window. Any
// redemptions left in a running window are forfeited.
func (s *service) StartSubscription(ctx context.Context, userID uuid.UUID) (*SubscriptionReceipt, error) {
	ctx, span := s.tracer.Start(ctx, "rentals.subscribe", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
	))
	defer span.End()

	now := s.now()
	tracker := s.ledger.Tracker()
	var (
		receipt   *SubscriptionReceipt
		forfeited int
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		user, err := tx.LockUser(ctx, userID)
		if err != nil {
			return err
		}
		window, err := tx.LockWindow(ctx, userID)
		if err != nil {
			return err
		}

		fee := s.ledger.Prices().PriceForSubscriptionPeriod(0)
		debit, err := s.ledger.Authorizer().Authorize(user, fee)
		if err != nil {
			return err
		}

		forfeited = tracker.RemainingFreeRedemptions(window, now)
		prev := window.Version
		tracker.StartWindow(window, now)
		window.Version = prev + 1
		if err := tx.SaveWindow(ctx, window); err != nil {
			return err
		}

		stream := subscriptionStreamID(userID)
		if debit > 0 {
			user.Wallet -= debit
			if err := tx.UpdateWallet(ctx, user.ID, user.Wallet); err != nil {
				return err
			}
			if err := tx.InsertWalletEntry(ctx, &accounts.WalletEntry{
				UserID:       user.ID,
				EntryType:    accounts.EntrySubscriptionCharge,
				RefID:        &stream,
				Amount:       -debit,
				BalanceAfter: user.Wallet,
				CreatedAt:    now,
			}); err != nil {
				return err
			}
		}

		event, err := eventstore.NewEvent("SubscriptionStarted", SubscriptionStartedEvent{
			UserID:      userID,
			WindowStart: now,
			WindowEnd:   *tracker.WindowEnd(window),
			Charged:     debit,
			Forfeited:   forfeited,
		})
		if err != nil {
			return err
		}
		event.Metadata = map[string]interface{}{"actor": userID.String()}
		if err := tx.AppendEvent(ctx, stream, aggregateSubscription, prev, event); err != nil {
			return err
		}

		receipt = &SubscriptionReceipt{
			Charged:     debit,
			Wallet:      user.Wallet,
			Entitlement: tracker.Summarize(window, now),
		}
		return nil
	})
	if err != nil {
		s.fail(span, "subscribe", err)
		return nil, err
	}

	s.cache.Invalidate(ctx, userID)
	if receipt.Charged > 0 {
		metrics.RevenueCents.WithLabelValues("subscription").Add(float64(receipt.Charged.Cents()))
	}
	s.logger.Info("subscription started",
		zap.String("user_id", userID.String()),
		zap.Stringer("charged", receipt.Charged),
		zap.Int("forfeited", forfeited),
	)
	return receipt, nil
}

// Quote previews what renting gameUUID would cost the user right now.
func (s *service) Quote(ctx context.Context, userID, gameUUID uuid.UUID) (*QuoteView, error) {
	game, err := s.store.GetGame(ctx, gameUUID)
	if err != nil {
		return nil, err
	}
	window, err := s.store.GetWindow(ctx, userID)
	if err != nil {
		return nil, err
	}
	q, err := s.ledger.Quote(game, window, s.now())
	if err != nil {
		return nil, err
	}
	return &QuoteView{
		GameUUID:  game.UUID,
		Available: game.Rentable(),
		Quote:     q,
	}, nil
}

// GetRental returns one of the caller's rentals. Rentals of other users are
// reported as missing.
func (s *service) GetRental(ctx context.Context, userID, rentalID uuid.UUID) (*RentalView, error) {
	rec, err := s.ownedRental(ctx, userID, rentalID)
	if err != nil {
		return nil, err
	}
	return s.view(rec, s.now()), nil
}

func (s *service) ActiveRentals(ctx context.Context, userID uuid.UUID) ([]*RentalView, error) {
	recs, err := s.store.ListRentals(ctx, userID, true, maxActiveRentals)
	if err != nil {
		return nil, err
	}
	now := s.now()
	views := make([]*RentalView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, s.view(rec, now))
	}
	return views, nil
}

func (s *service) History(ctx context.Context, userID uuid.UUID, limit int) ([]*ledger.Record, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.store.ListRentals(ctx, userID, false, limit)
}

// Timeline replays the event stream of one of the caller's rentals.
func (s *service) Timeline(ctx context.Context, userID, rentalID uuid.UUID) ([]eventstore.Event, error) {
	if _, err := s.ownedRental(ctx, userID, rentalID); err != nil {
		return nil, err
	}
	return s.store.LoadEvents(ctx, rentalID)
}

// Entitlement summarizes the caller's subscription window, served from cache
// when possible.
func (s *service) Entitlement(ctx context.Context, userID uuid.UUID) (*entitlement.Summary, error) {
	cached, gen, ok := s.cache.Get(ctx, userID)
	if ok {
		return cached, nil
	}
	window, err := s.store.GetWindow(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	summary := s.ledger.Tracker().Summarize(window, now)
	s.cache.Set(ctx, userID, summary, gen, now)
	return &summary, nil
}

// CountOverdue counts active unit rentals past their due date.
func (s *service) CountOverdue(ctx context.Context) (int, error) {
	return s.store.CountOverdue(ctx, s.now())
}

func (s *service) ownedRental(ctx context.Context, userID, rentalID uuid.UUID) (*ledger.Record, error) {
	rec, err := s.store.GetRental(ctx, rentalID)
	if err != nil {
		return nil, err
	}
	if rec.UserID != userID {
		return nil, ErrRentalNotFound
	}
	return rec, nil
}

func (s *service) view(rec *ledger.Record, now time.Time) *RentalView {
	days, fine := s.ledger.AccruedFine(rec, now)
	return &RentalView{Record: rec, DaysOverdue: days, AccruedFine: fine}
}

func (s *service) fail(span trace.Span, op string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	reason := rejectReason(err)
	if op == "create" {
		metrics.RentalsRejected.WithLabelValues(reason).Inc()
	}
	s.logger.Warn("rental operation rejected",
		zap.String("op", op),
		zap.String("reason", reason),
		zap.Error(err),
	)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ledger.ErrInvalidGame):
		return "unavailable"
	case errors.Is(err, ledger.ErrAlreadyReturned):
		return "already_returned"
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrGameNotFound), errors.Is(err, ErrRentalNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
