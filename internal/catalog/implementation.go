// internal/catalog/implementation.go
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"gamerent/pkg/eventstore"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const aggregateType = "game"

const gameColumns = `id, uuid, title, description, platform, price, total_units, available_units, status, version, created_at, updated_at`

// service implements the Service interface.
type service struct {
	eventStore *eventstore.EventStore
	db         *sqlx.DB
	logger     *zap.Logger
	now        func() time.Time
}

// NewService creates a new catalog service instance.
func NewService(es *eventstore.EventStore, db *sqlx.DB, logger *zap.Logger) Service {
	return &service{
		eventStore: es,
		db:         db,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// AddGame appends GameAdded and inserts the read model row in one transaction.
func (s *service) AddGame(ctx context.Context, in NewGame) (*Game, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" || in.Price < 0 || in.TotalUnits < 0 {
		return nil, ErrInvalidInput
	}

	now := s.now()
	game := &Game{
		UUID:           uuid.New(),
		Title:          in.Title,
		Description:    in.Description,
		Platform:       in.Platform,
		Price:          in.Price,
		TotalUnits:     in.TotalUnits,
		AvailableUnits: in.TotalUnits,
		Status:         StatusActive,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	event, err := eventstore.NewEvent("GameAdded", GameAddedEvent{
		UUID:       game.UUID,
		Title:      game.Title,
		Price:      game.Price,
		TotalUnits: game.TotalUnits,
	})
	if err != nil {
		return nil, err
	}

	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.eventStore.Append(ctx, tx.Tx, game.UUID, aggregateType, 0, []eventstore.Event{event}); err != nil {
			return errors.Wrap(err, "failed to append event")
		}
		query := `
			INSERT INTO games (uuid, title, description, platform, price, total_units, available_units, status, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING id
		`
		if err := tx.QueryRowxContext(ctx, query,
			game.UUID, game.Title, game.Description, game.Platform, game.Price,
			game.TotalUnits, game.AvailableUnits, game.Status, game.Version, game.CreatedAt, game.UpdatedAt,
		).Scan(&game.ID); err != nil {
			return errors.Wrap(err, "failed to insert game")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("game added", zap.String("game_uuid", game.UUID.String()), zap.String("title", game.Title))
	return game, nil
}

// GetGame retrieves a game from the read model by its public id.
func (s *service) GetGame(ctx context.Context, id uuid.UUID) (*Game, error) {
	game := &Game{}
	err := s.db.GetContext(ctx, game, `SELECT `+gameColumns+` FROM games WHERE uuid = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get game from read model")
	}
	return game, nil
}

// ListGames returns games ordered by title, optionally filtered by a case
// insensitive title match.
func (s *service) ListGames(ctx context.Context, filter ListFilter) ([]*Game, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var (
		conds []string
		args  []interface{}
	)
	if !filter.IncludeRetired {
		conds = append(conds, "status = 'active'")
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		conds = append(conds, fmt.Sprintf("title ILIKE $%d", len(args)))
	}

	query := `SELECT ` + gameColumns + ` FROM games`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY title ASC, id ASC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	games := []*Game{}
	if err := s.db.SelectContext(ctx, &games, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to list games")
	}
	return games, nil
}

// UpdateGame changes price and stock. The row is locked so concurrent rentals
// adjusting stock serialize behind it.
func (s *service) UpdateGame(ctx context.Context, id uuid.UUID, in GameUpdate) (*Game, error) {
	if in.Price < 0 || in.TotalUnits < 0 || in.AvailableUnits < 0 || in.AvailableUnits > in.TotalUnits {
		return nil, ErrInvalidInput
	}

	var updated *Game
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		game, err := lockGame(ctx, tx, id)
		if err != nil {
			return err
		}
		if game.Status == StatusRetired {
			return fmt.Errorf("%w: game is retired", ErrInvalidInput)
		}

		event, err := eventstore.NewEvent("GameUpdated", GameUpdatedEvent{
			UUID:           id,
			Price:          in.Price,
			TotalUnits:     in.TotalUnits,
			AvailableUnits: in.AvailableUnits,
		})
		if err != nil {
			return err
		}
		if err := s.appendEvent(ctx, tx, game, event); err != nil {
			return err
		}

		game.Price = in.Price
		game.TotalUnits = in.TotalUnits
		game.AvailableUnits = in.AvailableUnits
		game.UpdatedAt = s.now()
		if err := bumpVersion(ctx, tx, game, `price = $1, total_units = $2, available_units = $3`,
			game.Price, game.TotalUnits, game.AvailableUnits); err != nil {
			return err
		}
		updated = game
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("game updated",
		zap.String("game_uuid", id.String()),
		zap.String("price", updated.Price.String()),
		zap.Int("available_units", updated.AvailableUnits),
	)
	return updated, nil
}

// RemoveGame marks a game as retired. Active rentals keep their units until
// they are returned.
func (s *service) RemoveGame(ctx context.Context, id uuid.UUID) error {
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		game, err := lockGame(ctx, tx, id)
		if err != nil {
			return err
		}
		if game.Status == StatusRetired {
			return nil
		}

		event, err := eventstore.NewEvent("GameRetired", GameRetiredEvent{UUID: id, Status: StatusRetired})
		if err != nil {
			return err
		}
		if err := s.appendEvent(ctx, tx, game, event); err != nil {
			return err
		}
		game.Status = StatusRetired
		game.UpdatedAt = s.now()
		return bumpVersion(ctx, tx, game, `status = $1`, game.Status)
	})
	if err != nil {
		return err
	}

	s.logger.Info("game retired", zap.String("game_uuid", id.String()))
	return nil
}

func (s *service) appendEvent(ctx context.Context, tx *sqlx.Tx, game *Game, event eventstore.Event) error {
	err := s.eventStore.Append(ctx, tx.Tx, game.UUID, aggregateType, game.Version, []eventstore.Event{event})
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

func lockGame(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*Game, error) {
	game := &Game{}
	err := tx.GetContext(ctx, game, `SELECT `+gameColumns+` FROM games WHERE uuid = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to lock game")
	}
	return game, nil
}

// bumpVersion writes set (whose placeholders start at $1) and advances the
// version guarded by the previous one.
func bumpVersion(ctx context.Context, tx *sqlx.Tx, game *Game, set string, args ...interface{}) error {
	n := len(args)
	query := fmt.Sprintf(`
		UPDATE games
		SET %s, version = version + 1, updated_at = $%d
		WHERE id = $%d AND version = $%d
	`, set, n+1, n+2, n+3)
	args = append(args, game.UpdatedAt, game.ID, game.Version)

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
	game.Version++
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
