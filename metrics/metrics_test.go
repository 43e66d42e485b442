package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/warp/rent-ledger/billing"
)

func TestObserveCommit(t *testing.T) {
	before := testutil.ToFloat64(commitsTotal.WithLabelValues("remote"))

	ObserveCommit(billing.CommitEvent{Rooms: make([]billing.Room, 3), Origin: billing.OriginRemote})

	assert.Equal(t, before+1, testutil.ToFloat64(commitsTotal.WithLabelValues("remote")))
	assert.Equal(t, float64(3), testutil.ToFloat64(roomsGauge))
}

func TestRemoteOpAndEvents(t *testing.T) {
	fetchErrs := testutil.ToFloat64(remoteOps.WithLabelValues("fetch", "error"))
	okEvents := testutil.ToFloat64(eventsPublished.WithLabelValues("ok"))
	badEvents := testutil.ToFloat64(eventsPublished.WithLabelValues("error"))

	RemoteOp("fetch", "error", 20*time.Millisecond)
	EventPublished(nil)
	EventPublished(errors.New("closed"))

	assert.Equal(t, fetchErrs+1, testutil.ToFloat64(remoteOps.WithLabelValues("fetch", "error")))
	assert.Equal(t, okEvents+1, testutil.ToFloat64(eventsPublished.WithLabelValues("ok")))
	assert.Equal(t, badEvents+1, testutil.ToFloat64(eventsPublished.WithLabelValues("error")))

	SetRooms(7)
	assert.Equal(t, float64(7), testutil.ToFloat64(roomsGauge))
}
