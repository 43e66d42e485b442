package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rent-ledger/billing"
	"github.com/warp/rent-ledger/events"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	mu     sync.Mutex
	sent   []published
	err    error
	closed bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func commit(desc string, rooms int) billing.CommitEvent {
	return billing.CommitEvent{
		Rooms:  make([]billing.Room, rooms),
		Desc:   desc,
		Origin: billing.OriginLocal,
		At:     time.Date(2024, time.March, 10, 8, 0, 0, 0, time.UTC),
	}
}

func TestPublisher_PublishesInCommitOrder(t *testing.T) {
	ch := &fakeChannel{}
	p := events.NewPublisher(ch, "rent-ledger", "ledger.commit", func() string { return "u1" }, nil)

	p.AfterCommit(commit("add A101", 1))
	p.AfterCommit(commit("add A102", 2))
	require.NoError(t, p.Close())

	require.Len(t, ch.sent, 2)
	assert.True(t, ch.closed)
	assert.Equal(t, "rent-ledger", ch.sent[0].exchange)
	assert.Equal(t, "ledger.commit", ch.sent[0].key)
	assert.Equal(t, "application/json", ch.sent[0].msg.ContentType)
	assert.Equal(t, amqp.Persistent, ch.sent[0].msg.DeliveryMode)

	var msg events.CommitMessage
	require.NoError(t, json.Unmarshal(ch.sent[1].msg.Body, &msg))
	assert.Equal(t, events.CommitMessage{
		UserID:      "u1",
		Desc:        "add A102",
		RoomCount:   2,
		Origin:      "local",
		CommittedAt: "2024-03-10T08:00:00Z",
	}, msg)
}

func TestPublisher_FailuresAreSwallowed(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	p := events.NewPublisher(ch, "x", "y", nil, nil)

	assert.NotPanics(t, func() { p.AfterCommit(commit("add", 1)) })
	require.NoError(t, p.Close())
	assert.Empty(t, ch.sent)
}

func TestPublisher_WiredToBook(t *testing.T) {
	ch := &fakeChannel{}
	p := events.NewPublisher(ch, "x", "y", nil, nil)
	book := billing.NewBook(billing.AppState{})
	book.OnCommit(p.AfterCommit)

	_, err := book.AddRoom(billing.RoomDraft{RoomNo: "A101"})
	require.NoError(t, err)
	require.NoError(t, p.Close())

	require.Len(t, ch.sent, 1)
	assert.Contains(t, string(ch.sent[0].msg.Body), `"desc":"add A101"`)
	assert.NotContains(t, string(ch.sent[0].msg.Body), "user_id")
}
