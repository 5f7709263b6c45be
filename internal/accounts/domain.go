// internal/accounts/domain.go
package accounts

import (
	"time"

	"gamerent/internal/money"

	"github.com/google/uuid"
)

const (
	RoleClient = "client"
	RoleAdmin  = "admin"
)

// User is a storefront account together with its wallet balance.
type User struct {
	ID        uuid.UUID   `json:"id" db:"id"`
	Email     string      `json:"email" db:"email"`
	Name      string      `json:"name" db:"name"`
	Role      string      `json:"role" db:"role"`
	Wallet    money.Money `json:"wallet" db:"wallet"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"`
	Version   int         `json:"version" db:"version"`
}

// IsAdmin reports whether the account carries the admin capability.
func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

// Credential holds a user's password hash.
type Credential struct {
	UserID       uuid.UUID `db:"user_id"`
	PasswordHash string    `db:"password_hash"`
	Salt         string    `db:"salt"`
}

// WalletEntry is one row of the wallet ledger.
type WalletEntry struct {
	ID           int64       `json:"id" db:"id"`
	UserID       uuid.UUID   `json:"user_id" db:"user_id"`
	EntryType    string      `json:"entry_type" db:"entry_type"`
	RefID        *uuid.UUID  `json:"ref_id,omitempty" db:"ref_id"`
	Amount       money.Money `json:"amount" db:"amount"`
	BalanceAfter money.Money `json:"balance_after" db:"balance_after"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
}

// Wallet ledger entry types.
const (
	EntryDeposit            = "DEPOSIT"
	EntryRentalCharge       = "RENTAL_CHARGE"
	EntrySubscriptionCharge = "SUBSCRIPTION_CHARGE"
)

// UserRegisteredEvent is published when a new account registers.
type UserRegisteredEvent struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
}

// WalletDepositedEvent is published when funds are added to a wallet.
type WalletDepositedEvent struct {
	ID           uuid.UUID   `json:"id"`
	Amount       money.Money `json:"amount"`
	BalanceAfter money.Money `json:"balance_after"`
}

// UserRoleChangedEvent is published when an admin grants or revokes a role.
type UserRoleChangedEvent struct {
	ID      uuid.UUID `json:"id"`
	OldRole string    `json:"old_role"`
	NewRole string    `json:"new_role"`
}
