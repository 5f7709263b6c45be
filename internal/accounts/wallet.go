// internal/accounts/wallet.go
package accounts

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// InsertWalletEntry appends a wallet ledger row inside the caller's transaction.
// Rentals use it so charges land in the same history as deposits.
func InsertWalletEntry(ctx context.Context, q sqlx.QueryerContext, e *WalletEntry) error {
	query := `
		INSERT INTO wallet_ledger (user_id, entry_type, ref_id, amount, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	if err := q.QueryRowxContext(ctx, query, e.UserID, e.EntryType, e.RefID, e.Amount, e.BalanceAfter, e.CreatedAt).Scan(&e.ID); err != nil {
		return errors.Wrap(err, "failed to insert wallet entry")
	}
	return nil
}
