// internal/rentals/postgres.go
package rentals

import (
	"context"
	"database/sql"
	"time"

	"gamerent/internal/accounts"
	"gamerent/internal/catalog"
	"gamerent/internal/entitlement"
	"gamerent/internal/ledger"
	"gamerent/internal/money"
	"gamerent/pkg/eventstore"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

const (
	userColumns   = `id, email, name, role, wallet, version, created_at, updated_at`
	gameColumns   = `id, uuid, title, description, platform, price, total_units, available_units, status, version, created_at, updated_at`
	windowColumns = `user_id, window_start, redemptions_consumed, version`
	rentalColumns = `id, user_id, game_id, game_uuid, kind, status, start_date, expected_return_date, list_price, amount_charged, return_date, fine_amount, version`
)

type pgStore struct {
	db *sqlx.DB
	es *eventstore.EventStore
}

// NewPostgresStore persists rentals in Postgres next to the catalog and
// accounts read models.
func NewPostgresStore(db *sqlx.DB, es *eventstore.EventStore) Store {
	return &pgStore{db: db, es: es}
}

func (s *pgStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	if err := fn(&pgTx{tx: tx, es: s.es}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "failed to commit transaction")
}

func (s *pgStore) GetGame(ctx context.Context, gameUUID uuid.UUID) (*catalog.Game, error) {
	game := &catalog.Game{}
	err := s.db.GetContext(ctx, game, `SELECT `+gameColumns+` FROM games WHERE uuid = $1`, gameUUID)
	return game, notFound(err, ErrGameNotFound, "get game")
}

func (s *pgStore) GetWindow(ctx context.Context, userID uuid.UUID) (*entitlement.Window, error) {
	w := &entitlement.Window{}
	err := s.db.GetContext(ctx, w, `SELECT `+windowColumns+` FROM entitlement_windows WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return &entitlement.Window{UserID: userID}, nil
	}
	return w, errors.Wrap(err, "failed to get window")
}

func (s *pgStore) GetRental(ctx context.Context, rentalID uuid.UUID) (*ledger.Record, error) {
	r := &ledger.Record{}
	err := s.db.GetContext(ctx, r, `SELECT `+rentalColumns+` FROM rentals WHERE id = $1`, rentalID)
	return r, notFound(err, ErrRentalNotFound, "get rental")
}

func (s *pgStore) ListRentals(ctx context.Context, userID uuid.UUID, activeOnly bool, limit int) ([]*ledger.Record, error) {
	query := `SELECT ` + rentalColumns + ` FROM rentals WHERE user_id = $1`
	if activeOnly {
		query += ` AND status = 'active'`
	}
	query += ` ORDER BY start_date DESC, id LIMIT $2`

	out := []*ledger.Record{}
	if err := s.db.SelectContext(ctx, &out, query, userID, limit); err != nil {
		return nil, errors.Wrap(err, "failed to list rentals")
	}
	return out, nil
}

func (s *pgStore) CountOverdue(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM rentals
		WHERE status = 'active' AND kind = 'unit' AND expected_return_date < $1
	`, now)
	return n, errors.Wrap(err, "failed to count overdue rentals")
}

func (s *pgStore) LoadEvents(ctx context.Context, aggregateID uuid.UUID) ([]eventstore.Event, error) {
	events, err := s.es.LoadEvents(ctx, aggregateID, 0, 0)
	return events, errors.Wrap(err, "failed to load events")
}

type pgTx struct {
	tx *sqlx.Tx
	es *eventstore.EventStore
}

func (t *pgTx) LockUser(ctx context.Context, userID uuid.UUID) (*accounts.User, error) {
	u := &accounts.User{}
	err := t.tx.GetContext(ctx, u, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, userID)
	return u, notFound(err, ErrUserNotFound, "lock user")
}

// LockWindow returns an empty window for users who never subscribed; the row
// is created on first save.
func (t *pgTx) LockWindow(ctx context.Context, userID uuid.UUID) (*entitlement.Window, error) {
	w := &entitlement.Window{}
	err := t.tx.GetContext(ctx, w, `SELECT `+windowColumns+` FROM entitlement_windows WHERE user_id = $1 FOR UPDATE`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return &entitlement.Window{UserID: userID}, nil
	}
	return w, errors.Wrap(err, "failed to lock window")
}

func (t *pgTx) LockGame(ctx context.Context, gameUUID uuid.UUID) (*catalog.Game, error) {
	g := &catalog.Game{}
	err := t.tx.GetContext(ctx, g, `SELECT `+gameColumns+` FROM games WHERE uuid = $1 FOR UPDATE`, gameUUID)
	return g, notFound(err, ErrGameNotFound, "lock game")
}

func (t *pgTx) LockGameByID(ctx context.Context, gameID int64) (*catalog.Game, error) {
	g := &catalog.Game{}
	err := t.tx.GetContext(ctx, g, `SELECT `+gameColumns+` FROM games WHERE id = $1 FOR UPDATE`, gameID)
	return g, notFound(err, ErrGameNotFound, "lock game")
}

func (t *pgTx) LockRental(ctx context.Context, rentalID uuid.UUID) (*ledger.Record, error) {
	r := &ledger.Record{}
	err := t.tx.GetContext(ctx, r, `SELECT `+rentalColumns+` FROM rentals WHERE id = $1 FOR UPDATE`, rentalID)
	return r, notFound(err, ErrRentalNotFound, "lock rental")
}

func (t *pgTx) UpdateWallet(ctx context.Context, userID uuid.UUID, balance money.Money) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE users SET wallet = $1, updated_at = NOW() WHERE id = $2`, balance, userID)
	return errors.Wrap(err, "failed to update wallet")
}

func (t *pgTx) SetAvailableUnits(ctx context.Context, gameID int64, available int) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE games SET available_units = $1, updated_at = NOW() WHERE id = $2`, available, gameID)
	return errors.Wrap(err, "failed to update game units")
}

func (t *pgTx) SaveWindow(ctx context.Context, w *entitlement.Window) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO entitlement_windows (user_id, window_start, redemptions_consumed, version)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET window_start = EXCLUDED.window_start,
			redemptions_consumed = EXCLUDED.redemptions_consumed,
			version = EXCLUDED.version
	`, w.UserID, w.Start, w.Consumed, w.Version)
	return errors.Wrap(err, "failed to save window")
}

func (t *pgTx) InsertRental(ctx context.Context, r *ledger.Record) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO rentals (`+rentalColumns+`)
		VALUES (:id, :user_id, :game_id, :game_uuid, :kind, :status, :start_date, :expected_return_date,
			:list_price, :amount_charged, :return_date, :fine_amount, :version)
	`, r)
	return errors.Wrap(err, "failed to insert rental")
}

func (t *pgTx) UpdateRental(ctx context.Context, r *ledger.Record) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE rentals
		SET status = $1, return_date = $2, fine_amount = $3, version = $4
		WHERE id = $5 AND version = $6
	`, r.Status, r.ReturnDate, r.FineAmount, r.Version, r.ID, r.Version-1)
	if err != nil {
		return errors.Wrap(err, "failed to update rental")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read updated rental count")
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

func (t *pgTx) InsertWalletEntry(ctx context.Context, e *accounts.WalletEntry) error {
	return accounts.InsertWalletEntry(ctx, t.tx, e)
}

func (t *pgTx) AppendEvent(ctx context.Context, aggregateID uuid.UUID, aggregateType string, expectedVersion int, event eventstore.Event) error {
	err := t.es.Append(ctx, t.tx.Tx, aggregateID, aggregateType, expectedVersion, []eventstore.Event{event})
	if errors.Is(err, eventstore.ErrConcurrencyConflict) {
		return ErrConflict
	}
	return errors.Wrap(err, "failed to append event")
}

func notFound(err, sentinel error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel
	}
	return errors.Wrap(err, "failed to "+op)
}
