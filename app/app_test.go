package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rent-ledger/app"
	"github.com/warp/rent-ledger/billing"
	"github.com/warp/rent-ledger/config"
	"github.com/warp/rent-ledger/reconcile"
	"github.com/warp/rent-ledger/store/memory"
)

type fakeRemote struct {
	mu   sync.Mutex
	row  *reconcile.Row
	puts []reconcile.Row
}

func (f *fakeRemote) Fetch(_ context.Context, _ string) (*reconcile.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.row, nil
}

func (f *fakeRemote) Upsert(_ context.Context, row reconcile.Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, row)
	return nil
}

func testConfig(kind string) *config.Config {
	return &config.Config{
		ServiceName: "rent-ledger",
		Local:       config.LocalConfig{Kind: kind, SQLitePath: ":memory:"},
		Remote:      config.RemoteConfig{Backend: config.RemoteNone},
		Defaults:    billing.Defaults{DefaultRent: "900"},
	}
}

func TestNew_LoadsAndPersists(t *testing.T) {
	// GIVEN: a store that already holds one room
	store := memory.New()
	require.NoError(t, store.Put(context.Background(), billing.KeyData, []byte(`[{"id":"r1","roomNo":"A101"}]`)))

	// WHEN: the app starts over it
	a, err := app.New(context.Background(), testConfig(config.StoreMemory), nil, app.WithStore(store))
	require.NoError(t, err)
	defer a.Close()

	// THEN: the room is present with a single initial archive
	require.Len(t, a.Book.Present(), 1)
	require.Len(t, a.Book.Archives(), 1)
	assert.Equal(t, billing.InitialDesc, a.Book.Archives()[0].Desc)

	// AND: new commits are written through to the store
	_, err = a.Book.AddRoom(billing.RoomDraft{RoomNo: "A102"})
	require.NoError(t, err)
	raw, err := store.Get(context.Background(), billing.KeyData)
	require.NoError(t, err)
	assert.Len(t, billing.DecodeRooms(raw), 2)
	assert.Equal(t, billing.Numeric("900"), a.Book.Present()[1].Rent)
}

func TestNew_WithBookOptions(t *testing.T) {
	// GIVEN: book options fixing the clock and id generator
	now := time.Date(2024, time.March, 10, 9, 30, 0, 0, time.UTC)
	a, err := app.New(context.Background(), testConfig(config.StoreMemory), nil,
		app.WithBookOptions(
			billing.WithScheduler(&billing.Scheduler{Now: func() time.Time { return now }}),
			billing.WithIDGenerator(func() string { return "fixed-id" }),
		))
	require.NoError(t, err)
	defer a.Close()

	// WHEN: adding a room
	room, err := a.Book.AddRoom(billing.RoomDraft{RoomNo: "A101", PayDay: 15})
	require.NoError(t, err)

	// THEN: the book used both options
	assert.Equal(t, "fixed-id", room.ID)
	assert.Equal(t, "2024-02-15", room.BillStartDate.String())
	assert.Equal(t, "2024-03-10T09:30:00Z", room.LastUpdated)
}

func TestNew_SQLiteJournal(t *testing.T) {
	a, err := app.New(context.Background(), testConfig(config.StoreSQLite), nil)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Book.AddRoom(billing.RoomDraft{RoomNo: "A101"})
	require.NoError(t, err)
	require.NoError(t, a.Book.DeleteRoom(a.Book.Present()[0].ID))

	entries, err := a.Journal(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "delete room", entries[0].Description)
	assert.Equal(t, "add A101", entries[1].Description)
}

func TestJournal_DisabledWithoutSQLite(t *testing.T) {
	a, err := app.New(context.Background(), testConfig(config.StoreMemory), nil)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Journal(context.Background(), 10)
	assert.ErrorIs(t, err, app.ErrJournalDisabled)
}

func TestSession_DisabledWithoutRemote(t *testing.T) {
	a, err := app.New(context.Background(), testConfig(config.StoreMemory), nil)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.EstablishSession(context.Background(), "u1", "")
	assert.ErrorIs(t, err, app.ErrSyncDisabled)
	assert.ErrorIs(t, a.EndSession(), app.ErrSyncDisabled)
	assert.False(t, a.Session().Enabled)
}

func TestSession_PullsAndPushes(t *testing.T) {
	// GIVEN: a remote row holding one room
	remote := &fakeRemote{row: &reconcile.Row{UserID: "u1", Data: []billing.Room{{ID: "x", RoomNo: "B201"}}}}
	a, err := app.New(context.Background(), testConfig(config.StoreMemory), nil, app.WithRemote(remote))
	require.NoError(t, err)
	defer a.Close()

	// WHEN: the session is established
	res, err := a.EstablishSession(context.Background(), "u1", "")
	require.NoError(t, err)

	// THEN: local is overwritten without pushing back
	assert.Equal(t, reconcile.ActionPulled, res.Action)
	assert.Equal(t, []string{"B201"}, []string{a.Book.Present()[0].RoomNo})
	assert.Equal(t, reconcile.CloudSyncDesc, a.Book.Archives()[0].Desc)
	assert.Equal(t, app.SessionStatus{Enabled: true, UserID: "u1"}, a.Session())

	// AND: a local commit is pushed
	_, err = a.Book.AddRoom(billing.RoomDraft{RoomNo: "B202"})
	require.NoError(t, err)
	a.Reconciler.Wait()
	remote.mu.Lock()
	require.Len(t, remote.puts, 1)
	assert.Len(t, remote.puts[0].Data, 2)
	remote.mu.Unlock()

	require.NoError(t, a.EndSession())
	assert.Equal(t, "", a.Session().UserID)
}

func TestStartClose(t *testing.T) {
	cfg := testConfig(config.StoreMemory)
	cfg.Remote.ResyncInterval = time.Hour
	a, err := app.New(context.Background(), cfg, nil, app.WithRemote(&fakeRemote{}))
	require.NoError(t, err)

	a.Start()
	assert.NoError(t, a.Close())
	assert.NoError(t, a.Close())
}
