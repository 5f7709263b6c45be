package accounts

import (
	"context"
	"testing"
	"time"

	"gamerent/internal/auth"
	"gamerent/internal/money"
	"gamerent/pkg/eventstore"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/time/rate"
)

var fixedNow = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

func newMockService(t *testing.T, limiter *rate.Limiter) (*service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	issuer := auth.NewIssuer("accounts-test-secret", "gamerent", time.Hour)
	svc := NewService(eventstore.NewEventStore(db), sqlx.NewDb(db, "postgres"), issuer, limiter, zaptest.NewLogger(t)).(*service)
	svc.now = func() time.Time { return fixedNow }
	return svc, mock
}

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "email", "name", "role", "wallet", "version", "created_at", "updated_at"})
}

func expectAppend(mock sqlmock.Sqlmock, current int) {
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(version\), 0\)`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(current))
	mock.ExpectPrepare(`INSERT INTO events`)
	mock.ExpectQuery(`INSERT INTO events`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
}

func TestRegister(t *testing.T) {
	svc, mock := newMockService(t, nil)

	mock.ExpectBegin()
	expectAppend(mock, 0)
	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(sqlmock.AnyArg(), "ada@example.com", "Ada", RoleClient, "0.00", 1, fixedNow, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO credentials`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	user, err := svc.Register(context.Background(), " Ada@Example.com ", "Ada", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, RoleClient, user.Role)
	assert.Equal(t, money.Zero, user.Wallet)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc, mock := newMockService(t, nil)

	mock.ExpectBegin()
	expectAppend(mock, 0)
	mock.ExpectExec(`INSERT INTO users`).WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	_, err := svc.Register(context.Background(), "ada@example.com", "Ada", "s3cret-pass")
	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegister_RateLimited(t *testing.T) {
	svc, _ := newMockService(t, rate.NewLimiter(0, 0))

	_, err := svc.Register(context.Background(), "ada@example.com", "Ada", "s3cret-pass")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestAuthenticate(t *testing.T) {
	svc, mock := newMockService(t, nil)
	id := uuid.New()
	hash, salt, err := hashPassword("s3cret-pass")
	require.NoError(t, err)

	expectLogin := func() {
		mock.ExpectQuery(`FROM users WHERE email = \$1`).
			WithArgs("ada@example.com").
			WillReturnRows(userRows().AddRow(id.String(), "ada@example.com", "Ada", RoleAdmin, "12.00", 2, fixedNow, fixedNow))
		mock.ExpectQuery(`FROM credentials WHERE user_id = \$1`).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "password_hash", "salt"}).AddRow(id.String(), hash, salt))
	}

	expectLogin()
	session, err := svc.Authenticate(context.Background(), "ADA@example.com", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, id, session.User.ID)
	assert.Equal(t, money.Cents(1200), session.User.Wallet)

	p, err := svc.issuer.Parse(session.Token)
	require.NoError(t, err)
	assert.Equal(t, id, p.UserID)
	assert.Equal(t, RoleAdmin, p.Role)

	expectLogin()
	_, err = svc.Authenticate(context.Background(), "ada@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticate_UnknownEmail(t *testing.T) {
	svc, mock := newMockService(t, nil)
	mock.ExpectQuery(`FROM users WHERE email`).WillReturnRows(userRows())

	_, err := svc.Authenticate(context.Background(), "nobody@example.com", "x")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestDeposit(t *testing.T) {
	svc, mock := newMockService(t, nil)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM users WHERE id = \$1 FOR UPDATE`).
		WithArgs(id).
		WillReturnRows(userRows().AddRow(id.String(), "ada@example.com", "Ada", RoleClient, "10.00", 1, fixedNow, fixedNow))
	expectAppend(mock, 1)
	mock.ExpectExec(`UPDATE users`).
		WithArgs("22.50", fixedNow, id, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO wallet_ledger`).
		WithArgs(id, EntryDeposit, nil, "12.50", "22.50", fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))
	mock.ExpectCommit()

	user, err := svc.Deposit(context.Background(), id, money.Cents(1250))
	require.NoError(t, err)
	assert.Equal(t, money.Cents(2250), user.Wallet)
	assert.Equal(t, 2, user.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeposit_RejectsOutOfRange(t *testing.T) {
	svc, _ := newMockService(t, nil)
	for _, amount := range []money.Money{0, -100, money.MaxStored + 1} {
		_, err := svc.Deposit(context.Background(), uuid.New(), amount)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	}
}

func TestDeposit_BalanceBeyondColumnLimit(t *testing.T) {
	svc, mock := newMockService(t, nil)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM users WHERE id = \$1 FOR UPDATE`).
		WithArgs(id).
		WillReturnRows(userRows().AddRow(id.String(), "ada@example.com", "Ada", RoleClient, "9999999999.00", 1, fixedNow, fixedNow))
	mock.ExpectRollback()

	_, err := svc.Deposit(context.Background(), id, money.Cents(100))
	assert.ErrorIs(t, err, ErrWalletLimit)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeposit_UnknownUser(t *testing.T) {
	svc, mock := newMockService(t, nil)
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WillReturnRows(userRows())
	mock.ExpectRollback()

	_, err := svc.Deposit(context.Background(), uuid.New(), money.Cents(100))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletHistory(t *testing.T) {
	svc, mock := newMockService(t, nil)
	id := uuid.New()
	ref := uuid.New()

	mock.ExpectQuery(`FROM wallet_ledger`).
		WithArgs(id, 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "entry_type", "ref_id", "amount", "balance_after", "created_at"}).
			AddRow(2, id.String(), EntryRentalCharge, ref.String(), "-210.00", "290.00", fixedNow).
			AddRow(1, id.String(), EntryDeposit, nil, "500.00", "500.00", fixedNow))

	entries, err := svc.WalletHistory(context.Background(), id, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, money.Cents(-21000), entries[0].Amount)
	require.NotNil(t, entries[0].RefID)
	assert.Equal(t, ref, *entries[0].RefID)
	assert.Nil(t, entries[1].RefID)
}

func TestSetRole(t *testing.T) {
	svc, mock := newMockService(t, nil)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WillReturnRows(userRows().AddRow(id.String(), "ada@example.com", "Ada", RoleClient, "0", 3, fixedNow, fixedNow))
	expectAppend(mock, 3)
	mock.ExpectExec(`UPDATE users`).
		WithArgs(RoleAdmin, fixedNow, id, 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	user, err := svc.SetRole(context.Background(), id, RoleAdmin)
	require.NoError(t, err)
	assert.True(t, user.IsAdmin())

	_, err = svc.SetRole(context.Background(), id, "superuser")
	assert.ErrorIs(t, err, ErrInvalidRole)
	assert.NoError(t, mock.ExpectationsWereMet())
}
