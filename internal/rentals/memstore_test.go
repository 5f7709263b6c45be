package rentals

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"gamerent/internal/accounts"
	"gamerent/internal/catalog"
	"gamerent/internal/entitlement"
	"gamerent/internal/ledger"
	"gamerent/internal/money"
	"gamerent/pkg/eventstore"

	"github.com/google/uuid"
)

var errInjected = errors.New("injected failure")

type memState struct {
	users   map[uuid.UUID]accounts.User
	windows map[uuid.UUID]entitlement.Window
	games   map[int64]catalog.Game
	rentals map[uuid.UUID]ledger.Record
	wallet  []accounts.WalletEntry
	events  map[uuid.UUID][]eventstore.Event
}

func (s *memState) clone() *memState {
	c := &memState{
		users:   make(map[uuid.UUID]accounts.User, len(s.users)),
		windows: make(map[uuid.UUID]entitlement.Window, len(s.windows)),
		games:   make(map[int64]catalog.Game, len(s.games)),
		rentals: make(map[uuid.UUID]ledger.Record, len(s.rentals)),
		wallet:  append([]accounts.WalletEntry(nil), s.wallet...),
		events:  make(map[uuid.UUID][]eventstore.Event, len(s.events)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.windows {
		c.windows[k] = v
	}
	for k, v := range s.games {
		c.games[k] = v
	}
	for k, v := range s.rentals {
		c.rentals[k] = v
	}
	for k, v := range s.events {
		c.events[k] = append([]eventstore.Event(nil), v...)
	}
	return c
}

// memStore keeps everything in maps. Transactions run one at a time on a copy
// that only replaces the committed state when fn succeeds.
type memStore struct {
	mu          sync.Mutex
	state       *memState
	failOn      string
	windowReads int
}

func newMemStore() *memStore {
	return &memStore{state: &memState{
		users:   map[uuid.UUID]accounts.User{},
		windows: map[uuid.UUID]entitlement.Window{},
		games:   map[int64]catalog.Game{},
		rentals: map[uuid.UUID]ledger.Record{},
		events:  map[uuid.UUID][]eventstore.Event{},
	}}
}

func (m *memStore) addUser(role string, wallet money.Money) uuid.UUID {
	id := uuid.New()
	m.state.users[id] = accounts.User{ID: id, Email: id.String() + "@example.com", Role: role, Wallet: wallet, Version: 1}
	return id
}

func (m *memStore) addGame(price money.Money, units int) catalog.Game {
	g := catalog.Game{
		ID:             int64(len(m.state.games) + 1),
		UUID:           uuid.New(),
		Title:          "Celeste",
		Price:          price,
		TotalUnits:     units,
		AvailableUnits: units,
		Status:         catalog.StatusActive,
		Version:        1,
	}
	m.state.games[g.ID] = g
	return g
}

func (m *memStore) game(id int64) catalog.Game             { return m.state.games[id] }
func (m *memStore) user(id uuid.UUID) accounts.User        { return m.state.users[id] }
func (m *memStore) rental(id uuid.UUID) ledger.Record      { return m.state.rentals[id] }
func (m *memStore) stream(id uuid.UUID) []eventstore.Event { return m.state.events[id] }

func (m *memStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.state.clone()
	if err := fn(&memTx{s: work, failOn: m.failOn}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *memStore) GetGame(_ context.Context, gameUUID uuid.UUID) (*catalog.Game, error) {
	for _, g := range m.state.games {
		if g.UUID == gameUUID {
			return &g, nil
		}
	}
	return nil, ErrGameNotFound
}

func (m *memStore) GetWindow(_ context.Context, userID uuid.UUID) (*entitlement.Window, error) {
	m.windowReads++
	if w, ok := m.state.windows[userID]; ok {
		return &w, nil
	}
	return &entitlement.Window{UserID: userID}, nil
}

func (m *memStore) GetRental(_ context.Context, rentalID uuid.UUID) (*ledger.Record, error) {
	r, ok := m.state.rentals[rentalID]
	if !ok {
		return nil, ErrRentalNotFound
	}
	return &r, nil
}

func (m *memStore) ListRentals(_ context.Context, userID uuid.UUID, activeOnly bool, limit int) ([]*ledger.Record, error) {
	out := []*ledger.Record{}
	for _, r := range m.state.rentals {
		r := r
		if r.UserID != userID || (activeOnly && r.Status != ledger.StatusActive) {
			continue
		}
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.After(out[j].StartDate) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) CountOverdue(_ context.Context, now time.Time) (int, error) {
	n := 0
	for _, r := range m.state.rentals {
		if r.Status == ledger.StatusActive && r.ExpectedReturnDate != nil && r.ExpectedReturnDate.Before(now) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) LoadEvents(_ context.Context, aggregateID uuid.UUID) ([]eventstore.Event, error) {
	return m.state.events[aggregateID], nil
}

type memTx struct {
	s      *memState
	failOn string
}

func (t *memTx) fail(op string) error {
	if t.failOn == op {
		return errInjected
	}
	return nil
}

func (t *memTx) LockUser(_ context.Context, userID uuid.UUID) (*accounts.User, error) {
	u, ok := t.s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (t *memTx) LockWindow(_ context.Context, userID uuid.UUID) (*entitlement.Window, error) {
	if w, ok := t.s.windows[userID]; ok {
		return &w, nil
	}
	return &entitlement.Window{UserID: userID}, nil
}

func (t *memTx) LockGame(_ context.Context, gameUUID uuid.UUID) (*catalog.Game, error) {
	for _, g := range t.s.games {
		if g.UUID == gameUUID {
			return &g, nil
		}
	}
	return nil, ErrGameNotFound
}

func (t *memTx) LockGameByID(_ context.Context, gameID int64) (*catalog.Game, error) {
	g, ok := t.s.games[gameID]
	if !ok {
		return nil, ErrGameNotFound
	}
	return &g, nil
}

func (t *memTx) LockRental(_ context.Context, rentalID uuid.UUID) (*ledger.Record, error) {
	r, ok := t.s.rentals[rentalID]
	if !ok {
		return nil, ErrRentalNotFound
	}
	return &r, nil
}

func (t *memTx) UpdateWallet(_ context.Context, userID uuid.UUID, balance money.Money) error {
	if err := t.fail("UpdateWallet"); err != nil {
		return err
	}
	u := t.s.users[userID]
	u.Wallet = balance
	t.s.users[userID] = u
	return nil
}

func (t *memTx) SetAvailableUnits(_ context.Context, gameID int64, available int) error {
	if err := t.fail("SetAvailableUnits"); err != nil {
		return err
	}
	g := t.s.games[gameID]
	g.AvailableUnits = available
	t.s.games[gameID] = g
	return nil
}

func (t *memTx) SaveWindow(_ context.Context, w *entitlement.Window) error {
	if err := t.fail("SaveWindow"); err != nil {
		return err
	}
	t.s.windows[w.UserID] = *w
	return nil
}

func (t *memTx) InsertRental(_ context.Context, r *ledger.Record) error {
	if err := t.fail("InsertRental"); err != nil {
		return err
	}
	t.s.rentals[r.ID] = *r
	return nil
}

func (t *memTx) UpdateRental(_ context.Context, r *ledger.Record) error {
	if err := t.fail("UpdateRental"); err != nil {
		return err
	}
	cur, ok := t.s.rentals[r.ID]
	if !ok || cur.Version != r.Version-1 {
		return ErrConflict
	}
	t.s.rentals[r.ID] = *r
	return nil
}

func (t *memTx) InsertWalletEntry(_ context.Context, e *accounts.WalletEntry) error {
	if err := t.fail("InsertWalletEntry"); err != nil {
		return err
	}
	e.ID = int64(len(t.s.wallet) + 1)
	t.s.wallet = append(t.s.wallet, *e)
	return nil
}

func (t *memTx) AppendEvent(_ context.Context, aggregateID uuid.UUID, aggregateType string, expectedVersion int, event eventstore.Event) error {
	if err := t.fail("AppendEvent"); err != nil {
		return err
	}
	if len(t.s.events[aggregateID]) != expectedVersion {
		return ErrConflict
	}
	event.AggregateID = aggregateID
	event.AggregateType = aggregateType
	event.Version = expectedVersion + 1
	t.s.events[aggregateID] = append(t.s.events[aggregateID], event)
	return nil
}
