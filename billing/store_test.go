package billing_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/rent-ledger/billing"
	"github.com/warp/rent-ledger/store/memory"
)

// =============================================================================
// LOCAL STATE TESTS
// =============================================================================

func TestLoadState_Empty(t *testing.T) {
	state, err := billing.LoadState(context.Background(), memory.New(), defaults(), t0)
	require.NoError(t, err)

	assert.Empty(t, state.History.Present)
	require.Len(t, state.History.Archives, 1)
	assert.Equal(t, billing.InitialDesc, state.History.Archives[0].Desc)
	assert.Equal(t, defaults(), state.Config)
}

func TestLoadState_CorruptDataDegradesToEmpty(t *testing.T) {
	ctx := context.Background()
	for _, raw := range []string{`{"id":"x"}`, `not json`, `null`, `"rooms"`, `[1,2]`} {
		store := memory.New()
		require.NoError(t, store.Put(ctx, billing.KeyData, []byte(raw)))
		require.NoError(t, store.Put(ctx, billing.KeyConfig, []byte(`{broken`)))

		state, err := billing.LoadState(ctx, store, defaults(), t0)

		require.NoError(t, err, raw)
		assert.NotNil(t, state.History.Present, raw)
		assert.Empty(t, state.History.Present, raw)
		assert.Equal(t, defaults(), state.Config, raw)
	}
}

func TestLoadState_MistypedFieldKeepsCollection(t *testing.T) {
	// GIVEN: Stored data where one room has a numeric roomNo and phone, a
	// non-list extraFees, and a stray non-object element
	ctx := context.Background()
	store := memory.New()
	raw := `[
		{"id":"a","roomNo":"A101","rent":"1000","payDay":15},
		{"id":"b","roomNo":202,"tenantPhone":13800138000,"rent":"900","extraFees":"oops"},
		5
	]`
	require.NoError(t, store.Put(ctx, billing.KeyData, []byte(raw)))

	// WHEN: Loading state
	state, err := billing.LoadState(ctx, store, defaults(), t0)
	require.NoError(t, err)

	// THEN: Both rooms survive and the mistyped one keeps what it can
	require.Len(t, state.History.Present, 2)
	assert.Equal(t, "A101", state.History.Present[0].RoomNo)
	b := state.History.Present[1]
	assert.Equal(t, "b", b.ID)
	assert.Equal(t, "202", b.RoomNo)
	assert.Equal(t, "13800138000", b.TenantPhone)
	assert.Equal(t, billing.Numeric("900"), b.Rent)
	assert.NotNil(t, b.ExtraFees)
	assert.Empty(t, b.ExtraFees)
}

func TestLoadState_RoundTripThroughPersister(t *testing.T) {
	// GIVEN: A book persisting to a store
	ctx := context.Background()
	store := memory.New()
	book := newTestBook(t)
	billing.NewPersister(store, zap.NewNop()).Attach(book)

	// WHEN: Adding a room and changing defaults
	_, err := book.AddRoom(billing.RoomDraft{RoomNo: "A101", Rent: "1500", PayDay: 15})
	require.NoError(t, err)
	book.SetDefaults(billing.Defaults{ElecPrice: "1", WaterPrice: "3", DefaultRent: "800"})

	// THEN: A fresh load sees both
	state, err := billing.LoadState(ctx, store, defaults(), t0)
	require.NoError(t, err)
	require.Len(t, state.History.Present, 1)
	room := state.History.Present[0]
	assert.Equal(t, "A101", room.RoomNo)
	assert.Equal(t, billing.Numeric("1500"), room.Rent)
	assert.Equal(t, billing.Day(15), room.PayDay)
	assert.Equal(t, "2024-02-15", room.BillStartDate.String())
	assert.Equal(t, billing.Numeric("800"), state.Config.DefaultRent)

	raw, err := store.Get(ctx, billing.KeyData)
	require.NoError(t, err)
	var generic []map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	assert.Equal(t, "A101", generic[0]["roomNo"])
}

type failingStore struct{ err error }

func (f failingStore) Get(context.Context, string) ([]byte, error) { return nil, f.err }
func (f failingStore) Put(context.Context, string, []byte) error   { return f.err }

func TestLoadState_StoreErrorIsReturned(t *testing.T) {
	boom := errors.New("disk on fire")
	_, err := billing.LoadState(context.Background(), failingStore{err: boom}, defaults(), t0)
	assert.ErrorIs(t, err, boom)
}

func TestPersister_WriteFailureKeepsCommit(t *testing.T) {
	book := newTestBook(t)
	billing.NewPersister(failingStore{err: errors.New("read-only")}, zap.NewNop()).Attach(book)

	_, err := book.AddRoom(billing.RoomDraft{RoomNo: "A101"})

	require.NoError(t, err)
	assert.Len(t, book.Present(), 1)
}
