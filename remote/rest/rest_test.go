package rest_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rent-ledger/billing"
	"github.com/warp/rent-ledger/reconcile"
	"github.com/warp/rent-ledger/remote/rest"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *rest.Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return rest.New(rest.Config{BaseURL: srv.URL, APIKey: "anon-key"}, nil)
}

func TestFetch_NoRow(t *testing.T) {
	var gotQuery, gotKey, gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/landlord_backup", r.URL.Path)
		gotQuery = r.URL.Query().Get("user_id")
		gotKey = r.Header.Get("apikey")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[]`)
	})

	row, err := c.Fetch(context.Background(), "u1")

	require.NoError(t, err)
	assert.Nil(t, row)
	assert.Equal(t, "eq.u1", gotQuery)
	assert.Equal(t, "anon-key", gotKey)
	assert.Equal(t, "Bearer anon-key", gotAuth)
}

func TestFetch_DistinguishesNullFromEmpty(t *testing.T) {
	body := `[{"user_id":"u1","data":null,"updated_at":"2024-03-10T08:00:00Z"}]`
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body)
	})

	row, err := c.Fetch(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Nil(t, row.Data)
	assert.Equal(t, time.Date(2024, time.March, 10, 8, 0, 0, 0, time.UTC), row.UpdatedAt)

	body = `[{"user_id":"u1","data":[]}]`
	row, err = c.Fetch(context.Background(), "u1")
	require.NoError(t, err)
	assert.NotNil(t, row.Data)
	assert.Empty(t, row.Data)

	body = `[{"user_id":"u1","data":[{"id":"r1","roomNo":"A101","rent":"900","payDay":5}]}]`
	row, err = c.Fetch(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, row.Data, 1)
	assert.Equal(t, billing.Numeric("900"), row.Data[0].Rent)
}

func TestFetch_ErrorStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"JWT expired"}`, http.StatusUnauthorized)
	})

	_, err := c.Fetch(context.Background(), "u1")

	assert.ErrorContains(t, err, "401")
}

func TestFetch_MalformedData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[{"user_id":"u1","data":"oops"}]`)
	})

	_, err := c.Fetch(context.Background(), "u1")

	assert.ErrorIs(t, err, reconcile.ErrMalformedRow)
}

func TestUpsert(t *testing.T) {
	var got map[string]json.RawMessage
	var prefer, onConflict, auth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		prefer = r.Header.Get("Prefer")
		onConflict = r.URL.Query().Get("on_conflict")
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	})
	c.SetAccessToken("user-jwt")

	err := c.Upsert(context.Background(), reconcile.Row{
		UserID:    "u1",
		Data:      nil,
		UpdatedAt: time.Date(2024, time.March, 10, 8, 0, 0, 0, time.UTC),
	})

	require.NoError(t, err)
	assert.Contains(t, prefer, "resolution=merge-duplicates")
	assert.Equal(t, "user_id", onConflict)
	assert.Equal(t, "Bearer user-jwt", auth)
	assert.JSONEq(t, `"u1"`, string(got["user_id"]))
	assert.JSONEq(t, `[]`, string(got["data"]))
	assert.JSONEq(t, `"2024-03-10T08:00:00Z"`, string(got["updated_at"]))
}

func TestUpsert_ErrorStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	err := c.Upsert(context.Background(), reconcile.Row{UserID: "u1"})

	assert.ErrorContains(t, err, "503")
}
