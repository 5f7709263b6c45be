package eventstore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct {
	Message string `json:"message"`
}

func newMockStore(t *testing.T) (*EventStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	es := NewEventStore(db)
	es.clock = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return es, mock
}

func TestAppendEvents(t *testing.T) {
	es, mock := newMockStore(t)
	id := uuid.New()

	ev, err := NewEvent("GameAdded", testEvent{Message: "hello"})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(version\), 0\)`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(2))
	mock.ExpectPrepare(`INSERT INTO events`)
	mock.ExpectQuery(`INSERT INTO events`).
		WithArgs(id, "game", "GameAdded", sqlmock.AnyArg(), sqlmock.AnyArg(), 3, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(41))
	mock.ExpectCommit()

	require.NoError(t, es.AppendEvents(context.Background(), id, "game", 2, []Event{ev}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendEvents_VersionMismatch(t *testing.T) {
	es, mock := newMockStore(t)
	id := uuid.New()
	ev, _ := NewEvent("GameAdded", testEvent{})

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(version\), 0\)`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(5))
	mock.ExpectRollback()

	err := es.AppendEvents(context.Background(), id, "game", 4, []Event{ev})
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendEvents_UniqueViolation(t *testing.T) {
	es, mock := newMockStore(t)
	id := uuid.New()
	ev, _ := NewEvent("GameAdded", testEvent{})

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(version\), 0\)`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(0))
	mock.ExpectPrepare(`INSERT INTO events`)
	mock.ExpectQuery(`INSERT INTO events`).WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := es.AppendEvents(context.Background(), id, "game", 0, []Event{ev})
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendEvents_Empty(t *testing.T) {
	es, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := es.AppendEvents(context.Background(), uuid.New(), "game", 0, nil)
	assert.ErrorIs(t, err, ErrNoEvents)
}

func TestLoadEvents(t *testing.T) {
	es, mock := newMockStore(t)
	id := uuid.New()
	at := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "aggregate_id", "aggregate_type", "event_type", "event_data", "metadata", "version", "created_at"}).
		AddRow(1, id.String(), "rental", "RentalCreated", []byte(`{"message":"a"}`), []byte(`{"actor":"u1"}`), 1, at).
		AddRow(2, id.String(), "rental", "RentalReturned", []byte(`{"message":"b"}`), nil, 2, at)
	mock.ExpectQuery(`SELECT id, aggregate_id`).
		WithArgs(id, 1, 2).
		WillReturnRows(rows)

	events, err := es.LoadEvents(context.Background(), id, 1, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "RentalCreated", events[0].EventType)
	assert.Equal(t, "u1", events[0].Metadata["actor"])
	assert.JSONEq(t, `{"message":"b"}`, string(events[1].EventData))
	assert.Nil(t, events[1].Metadata)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCurrentVersion(t *testing.T) {
	es, mock := newMockStore(t)
	id := uuid.New()
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(version\), 0\)`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(7))

	v, err := es.GetCurrentVersion(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}
