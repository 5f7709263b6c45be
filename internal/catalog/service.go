// internal/catalog/service.go
package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("game not found")
	ErrInvalidInput = errors.New("invalid game data")
	ErrConflict     = errors.New("game was modified concurrently")
)

// ListFilter narrows ListGames. An empty Query lists everything.
type ListFilter struct {
	Query          string
	IncludeRetired bool
	Limit          int
	Offset         int
}

// Service defines the interface for the catalog service.
type Service interface {
	AddGame(ctx context.Context, in NewGame) (*Game, error)
	GetGame(ctx context.Context, id uuid.UUID) (*Game, error)
	ListGames(ctx context.Context, filter ListFilter) ([]*Game, error)
	UpdateGame(ctx context.Context, id uuid.UUID, in GameUpdate) (*Game, error)
	RemoveGame(ctx context.Context, id uuid.UUID) error
}
