// internal/catalog/domain.go
package catalog

import (
	"time"

	"gamerent/internal/money"

	"github.com/google/uuid"
)

const (
	StatusActive  = "active"
	StatusRetired = "retired"
)

// Game is a rentable title. A zero Price marks a subscription-eligible catalog
// title; a positive Price is always charged once free redemptions run out.
type Game struct {
	ID             int64       `json:"id" db:"id"`
	UUID           uuid.UUID   `json:"uuid" db:"uuid"`
	Title          string      `json:"title" db:"title"`
	Description    string      `json:"description,omitempty" db:"description"`
	Platform       string      `json:"platform,omitempty" db:"platform"`
	Price          money.Money `json:"price" db:"price"`
	TotalUnits     int         `json:"total_units" db:"total_units"`
	AvailableUnits int         `json:"available_units" db:"available_units"`
	Status         string      `json:"status" db:"status"`
	Version        int         `json:"version" db:"version"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at" db:"updated_at"`
}

// Rentable reports whether at least one unit can be handed out.
func (g *Game) Rentable() bool {
	return g.Status == StatusActive && g.AvailableUnits > 0
}

// NewGame carries the fields accepted when adding a title.
type NewGame struct {
	Title       string      `json:"title" validate:"required,max=200"`
	Description string      `json:"description" validate:"max=4000"`
	Platform    string      `json:"platform" validate:"max=50"`
	Price       money.Money `json:"price" validate:"gte=0"`
	TotalUnits  int         `json:"total_units" validate:"gte=0"`
}

// GameUpdate carries the mutable commercial fields of a title.
type GameUpdate struct {
	Price          money.Money `json:"price" validate:"gte=0"`
	TotalUnits     int         `json:"total_units" validate:"gte=0"`
	AvailableUnits int         `json:"available_units" validate:"gte=0,ltefield=TotalUnits"`
}

// GameAddedEvent is published when a new title is added.
type GameAddedEvent struct {
	UUID       uuid.UUID   `json:"uuid"`
	Title      string      `json:"title"`
	Price      money.Money `json:"price"`
	TotalUnits int         `json:"total_units"`
}

// GameUpdatedEvent is published when price or stock changes.
type GameUpdatedEvent struct {
	UUID           uuid.UUID   `json:"uuid"`
	Price          money.Money `json:"price"`
	TotalUnits     int         `json:"total_units"`
	AvailableUnits int         `json:"available_units"`
}

// GameRetiredEvent is published when a title leaves the catalog.
type GameRetiredEvent struct {
	UUID   uuid.UUID `json:"uuid"`
	Status string    `json:"status"`
}
