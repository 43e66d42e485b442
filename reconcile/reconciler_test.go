package reconcile_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rent-ledger/billing"
	"github.com/warp/rent-ledger/reconcile"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type fakeRemote struct {
	mu        sync.Mutex
	rows      map[string]*reconcile.Row
	fetchErr  error
	upsertErr error
	upserts   []reconcile.Row
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{rows: map[string]*reconcile.Row{}}
}

func (f *fakeRemote) Fetch(_ context.Context, userID string) (*reconcile.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	row, ok := f.rows[userID]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (f *fakeRemote) Upsert(_ context.Context, row reconcile.Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts = append(f.upserts, row)
	f.rows[row.UserID] = &row
	return nil
}

func (f *fakeRemote) setUpsertErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertErr = err
}

func (f *fakeRemote) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserts)
}

func (f *fakeRemote) lastUpsert() reconcile.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upserts[len(f.upserts)-1]
}

func localRoom(id, no string) billing.Room {
	return billing.Room{ID: id, RoomNo: no, Rent: "1000", PayDay: 1, Status: billing.StatusUnpaid}
}

func newTestBook(rooms ...billing.Room) *billing.Book {
	sched := &billing.Scheduler{Now: func() time.Time {
		return time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)
	}}
	state := billing.AppState{History: billing.NewHistory(rooms, billing.InitialDesc, sched.Now())}
	return billing.NewBook(state, billing.WithScheduler(sched))
}

func newTestReconciler(remote reconcile.Remote, book *billing.Book) *reconcile.Reconciler {
	r := reconcile.New(remote, book, nil)
	r.Attach()
	return r
}

// =============================================================================
// SESSION ESTABLISHMENT TESTS
// =============================================================================

func TestSession_RemoteRowOverwritesLocal(t *testing.T) {
	// GIVEN: Local has A101, the remote row holds an empty (non-null) list
	// WHEN: A session is established
	// THEN: Local becomes empty, archived as "cloud sync", and nothing is pushed back

	remote := newFakeRemote()
	remote.rows["u1"] = &reconcile.Row{UserID: "u1", Data: []billing.Room{}}
	book := newTestBook(localRoom("r1", "A101"))
	r := newTestReconciler(remote, book)

	res, err := r.OnSessionEstablished(context.Background(), "u1")
	require.NoError(t, err)
	r.Wait()

	assert.Equal(t, reconcile.ActionPulled, res.Action)
	assert.Empty(t, book.Present())
	assert.Equal(t, reconcile.CloudSyncDesc, book.Archives()[0].Desc)
	assert.Zero(t, remote.upsertCount())
}

func TestSession_RemoteRowWithRooms(t *testing.T) {
	remote := newFakeRemote()
	remote.rows["u1"] = &reconcile.Row{UserID: "u1", Data: []billing.Room{localRoom("c1", "C301"), localRoom("c2", "C302")}}
	book := newTestBook()
	r := newTestReconciler(remote, book)

	res, err := r.OnSessionEstablished(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, 2, res.Rooms)
	assert.Len(t, book.Present(), 2)
	assert.Len(t, book.Archives(), 2)
}

func TestSession_NoRowSeedsRemote(t *testing.T) {
	remote := newFakeRemote()
	book := newTestBook(localRoom("r1", "A101"))
	r := newTestReconciler(remote, book)

	res, err := r.OnSessionEstablished(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, reconcile.ActionSeeded, res.Action)
	require.Equal(t, 1, remote.upsertCount())
	row := remote.lastUpsert()
	assert.Equal(t, "u1", row.UserID)
	require.Len(t, row.Data, 1)
	assert.Equal(t, "A101", row.Data[0].RoomNo)
	assert.Len(t, book.Archives(), 1, "seeding does not commit locally")
}

func TestSession_NullDataDoesNothing(t *testing.T) {
	remote := newFakeRemote()
	remote.rows["u1"] = &reconcile.Row{UserID: "u1", Data: nil}
	book := newTestBook(localRoom("r1", "A101"))
	r := newTestReconciler(remote, book)

	res, err := r.OnSessionEstablished(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, reconcile.ActionNone, res.Action)
	assert.Len(t, book.Present(), 1)
	assert.Zero(t, remote.upsertCount())
}

func TestSession_FetchErrorLeavesLocalAlone(t *testing.T) {
	remote := newFakeRemote()
	remote.fetchErr = errors.New("network down")
	book := newTestBook(localRoom("r1", "A101"))
	r := newTestReconciler(remote, book)

	res, err := r.OnSessionEstablished(context.Background(), "u1")

	assert.Error(t, err)
	assert.Equal(t, reconcile.ActionFailed, res.Action)
	assert.Len(t, book.Present(), 1)
	assert.Len(t, book.Archives(), 1)
	assert.Zero(t, remote.upsertCount())
	assert.Equal(t, "u1", r.UserID(), "session stays active")
}

// =============================================================================
// PUSH TESTS
// =============================================================================

func TestAfterCommit_PushesWhileSessionActive(t *testing.T) {
	remote := newFakeRemote()
	remote.rows["u1"] = &reconcile.Row{UserID: "u1", Data: []billing.Room{}}
	book := newTestBook()
	r := newTestReconciler(remote, book)
	_, err := r.OnSessionEstablished(context.Background(), "u1")
	require.NoError(t, err)

	_, err = book.AddRoom(billing.RoomDraft{RoomNo: "A101"})
	require.NoError(t, err)
	r.Wait()

	require.Equal(t, 1, remote.upsertCount())
	assert.Equal(t, "A101", remote.lastUpsert().Data[0].RoomNo)
	assert.Equal(t, time.UTC, remote.lastUpsert().UpdatedAt.Location())
}

func TestAfterCommit_NoSessionNoPush(t *testing.T) {
	remote := newFakeRemote()
	book := newTestBook()
	r := newTestReconciler(remote, book)

	_, err := book.AddRoom(billing.RoomDraft{RoomNo: "A101"})
	require.NoError(t, err)
	r.Wait()

	assert.Zero(t, remote.upsertCount())
}

func TestAfterCommit_SessionEndedStopsPushing(t *testing.T) {
	remote := newFakeRemote()
	remote.rows["u1"] = &reconcile.Row{UserID: "u1"}
	book := newTestBook()
	r := newTestReconciler(remote, book)
	_, err := r.OnSessionEstablished(context.Background(), "u1")
	require.NoError(t, err)

	r.OnSessionEnded()
	_, err = book.AddRoom(billing.RoomDraft{RoomNo: "A101"})
	require.NoError(t, err)
	r.Wait()

	assert.Zero(t, remote.upsertCount())
	assert.Empty(t, r.UserID())
}

func TestAfterCommit_PushFailureIsSwallowedThenResynced(t *testing.T) {
	// GIVEN: An active session whose remote starts rejecting writes
	remote := newFakeRemote()
	remote.rows["u1"] = &reconcile.Row{UserID: "u1"}
	book := newTestBook()
	r := newTestReconciler(remote, book)
	_, err := r.OnSessionEstablished(context.Background(), "u1")
	require.NoError(t, err)
	remote.setUpsertErr(errors.New("503"))

	// WHEN: Committing locally
	_, err = book.AddRoom(billing.RoomDraft{RoomNo: "A101"})
	r.Wait()

	// THEN: The local commit stands and a resync is pending
	require.NoError(t, err)
	assert.Len(t, book.Present(), 1)
	assert.True(t, r.Pending())

	// AND: A resync tick after recovery pushes the present collection
	remote.setUpsertErr(nil)
	resync := reconcile.NewResync(r, time.Hour, nil)
	assert.True(t, resync.Tick())
	assert.False(t, r.Pending())
	assert.Equal(t, "A101", remote.lastUpsert().Data[0].RoomNo)

	assert.False(t, resync.Tick(), "nothing pending")
}

func TestResync_StartStop(t *testing.T) {
	r := newTestReconciler(newFakeRemote(), newTestBook())
	resync := reconcile.NewResync(r, 10*time.Millisecond, nil)

	resync.Start()
	resync.Start()
	time.Sleep(30 * time.Millisecond)
	resync.Stop()
	resync.Stop()

	disabled := reconcile.NewResync(r, 0, nil)
	disabled.Start()
	disabled.Stop()
}

// =============================================================================
// ROW DECODING TESTS
// =============================================================================

func TestDecodeData(t *testing.T) {
	rooms, err := reconcile.DecodeData(json.RawMessage(`null`))
	require.NoError(t, err)
	assert.Nil(t, rooms)

	rooms, err = reconcile.DecodeData(nil)
	require.NoError(t, err)
	assert.Nil(t, rooms)

	rooms, err = reconcile.DecodeData(json.RawMessage(`[]`))
	require.NoError(t, err)
	assert.NotNil(t, rooms)
	assert.Empty(t, rooms)

	rooms, err = reconcile.DecodeData(json.RawMessage(`[{"roomNo":"A1","payDay":"5"}]`))
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, billing.Day(5), rooms[0].PayDay)

	_, err = reconcile.DecodeData(json.RawMessage(`{"roomNo":"A1"}`))
	assert.ErrorIs(t, err, reconcile.ErrMalformedRow)

	_, err = reconcile.DecodeData(json.RawMessage(`[{"roomNo":"A1"},`))
	assert.ErrorIs(t, err, reconcile.ErrMalformedRow)

	// A mistyped field costs only that field.
	rooms, err = reconcile.DecodeData(json.RawMessage(`[{"id":"x","roomNo":7},{"id":"y","roomNo":"B2"}]`))
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, "7", rooms[0].RoomNo)
	assert.Equal(t, "B2", rooms[1].RoomNo)
}
