package rentals

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gamerent/internal/auth"
	"gamerent/internal/entitlement"
	"gamerent/internal/ledger"
	"gamerent/internal/money"
	"gamerent/internal/platform/httpx"
	"gamerent/pkg/eventstore"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeService struct {
	err          error
	lastUser     uuid.UUID
	lastGame     uuid.UUID
	historyLimit int
}

func (f *fakeService) CreateRental(_ context.Context, userID, gameUUID uuid.UUID) (*Receipt, error) {
	f.lastUser, f.lastGame = userID, gameUUID
	if f.err != nil {
		return nil, f.err
	}
	return &Receipt{
		Rental: &ledger.Record{ID: uuid.New(), UserID: userID, GameUUID: gameUUID, Kind: ledger.KindUnit, AmountCharged: money.Cents(21000)},
		Wallet: money.Cents(29000),
	}, nil
}

func (f *fakeService) ReturnRental(_ context.Context, userID, rentalID uuid.UUID) (*ReturnReceipt, error) {
	f.lastUser = userID
	if f.err != nil {
		return nil, f.err
	}
	return &ReturnReceipt{
		Rental: &ledger.Record{ID: rentalID, Status: ledger.StatusReturned},
		Return: ledger.Return{RentalID: rentalID, FineAmount: money.Cents(1500), DaysOverdue: 3, HasFine: true},
	}, nil
}

func (f *fakeService) StartSubscription(_ context.Context, userID uuid.UUID) (*SubscriptionReceipt, error) {
	f.lastUser = userID
	if f.err != nil {
		return nil, f.err
	}
	return &SubscriptionReceipt{Charged: money.Cents(5000), Entitlement: entitlement.Summary{Active: true, Allowance: 3, Remaining: 3}}, nil
}

func (f *fakeService) Quote(_ context.Context, userID, gameUUID uuid.UUID) (*QuoteView, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &QuoteView{GameUUID: gameUUID, Available: true, Quote: ledger.Quote{Kind: ledger.KindUnit, Price: money.Cents(21000)}}, nil
}

func (f *fakeService) GetRental(_ context.Context, userID, rentalID uuid.UUID) (*RentalView, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &RentalView{Record: &ledger.Record{ID: rentalID, UserID: userID}}, nil
}

func (f *fakeService) ActiveRentals(_ context.Context, userID uuid.UUID) ([]*RentalView, error) {
	f.lastUser = userID
	return []*RentalView{}, f.err
}

func (f *fakeService) History(_ context.Context, userID uuid.UUID, limit int) ([]*ledger.Record, error) {
	f.historyLimit = limit
	return []*ledger.Record{}, f.err
}

func (f *fakeService) Timeline(_ context.Context, userID, rentalID uuid.UUID) ([]eventstore.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []eventstore.Event{{AggregateID: rentalID, EventType: "RentalCreated", Version: 1}}, nil
}

func (f *fakeService) Entitlement(_ context.Context, userID uuid.UUID) (*entitlement.Summary, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &entitlement.Summary{Allowance: 3}, nil
}

func (f *fakeService) CountOverdue(context.Context) (int, error) { return 0, f.err }

func setup(t *testing.T) (*fakeService, http.Handler, uuid.UUID, string) {
	t.Helper()
	fake := &fakeService{}
	issuer := auth.NewIssuer("rentals-test-secret", "gamerent", time.Hour)
	userID := uuid.New()
	token, _, err := issuer.Issue(userID, "client")
	require.NoError(t, err)
	return fake, NewHandler(fake, zaptest.NewLogger(t)).Routes(issuer), userID, token
}

func do(h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_RequiresToken(t *testing.T) {
	_, h, _, _ := setup(t)
	for _, path := range []string{"/rentals", "/entitlement", "/quotes/" + uuid.NewString()} {
		assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, path, "", "").Code, path)
	}
}

func TestHandler_CreateRental(t *testing.T) {
	fake, h, userID, token := setup(t)
	gameUUID := uuid.New()

	rec := do(h, http.MethodPost, "/rentals", token, fmt.Sprintf(`{"game_uuid":%q}`, gameUUID))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, userID, fake.lastUser)
	assert.Equal(t, gameUUID, fake.lastGame)

	var receipt Receipt
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&receipt))
	assert.Equal(t, money.Cents(21000), receipt.Rental.AmountCharged)
	assert.Equal(t, money.Cents(29000), receipt.Wallet)

	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/rentals", token, `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/rentals", token, `{"game_uuid":"nope"}`).Code)
}

func TestHandler_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{ledger.ErrInsufficientFunds, http.StatusPaymentRequired, "insufficient_funds"},
		{ledger.ErrInvalidGame, http.StatusConflict, "conflict"},
		{ledger.ErrAlreadyReturned, http.StatusConflict, "conflict"},
		{ErrConflict, http.StatusConflict, "conflict"},
		{ErrGameNotFound, http.StatusNotFound, "not_found"},
		{ErrUserNotFound, http.StatusNotFound, "not_found"},
		{fmt.Errorf("db down"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.code+"/"+tc.err.Error(), func(t *testing.T) {
			fake, h, _, token := setup(t)
			fake.err = tc.err

			rec := do(h, http.MethodPost, "/rentals", token, fmt.Sprintf(`{"game_uuid":%q}`, uuid.New()))
			assert.Equal(t, tc.status, rec.Code)
			var body httpx.ErrorBody
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tc.code, body.Code)
		})
	}
}

func TestHandler_ReturnAndReads(t *testing.T) {
	fake, h, userID, token := setup(t)
	rentalID := uuid.New()

	rec := do(h, http.MethodPost, "/rentals/"+rentalID.String()+"/return", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var ret ReturnReceipt
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ret))
	assert.Equal(t, 3, ret.DaysOverdue)
	assert.Equal(t, money.Cents(1500), ret.FineAmount)
	assert.Equal(t, userID, fake.lastUser)

	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/rentals/bad/return", token, "").Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/rentals/"+rentalID.String(), token, "").Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/rentals", token, "").Code)

	rec = do(h, http.MethodGet, "/rentals/history?limit=7", token, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 7, fake.historyLimit)

	rec = do(h, http.MethodGet, "/rentals/"+rentalID.String()+"/events", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "RentalCreated")

	fake.err = ErrRentalNotFound
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/rentals/"+rentalID.String(), token, "").Code)
}

func TestHandler_SubscriptionQuoteEntitlement(t *testing.T) {
	_, h, _, token := setup(t)

	rec := do(h, http.MethodPost, "/subscriptions", token, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"charged":50`)

	rec = do(h, http.MethodGet, "/quotes/"+uuid.NewString(), token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"rental_kind":"unit"`)

	rec = do(h, http.MethodGet, "/entitlement", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"allowance":3`)
}
