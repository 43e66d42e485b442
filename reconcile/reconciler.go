/*
Package reconcile keeps the local room collection in step with a remote
per-user store.

POLICY (whole-collection last-writer-wins):
  - Session established: fetch the user's row.
      row with data (even an empty list) -> overwrite local, archived as
                                            "cloud sync", not pushed back
      no row, no error                   -> push local to seed the remote
      row with null data                 -> nothing
      fetch error                        -> logged, local untouched
  - Every local commit while a session is active is pushed in the
    background. The local commit never waits on it.
  - Push failures are logged and flagged; Resync retries the latest
    present collection on a ticker.

LOST UPDATES:
  Pushes from rapid successive commits run concurrently and may land out
  of order. Because each push carries the whole collection, an earlier
  push that lands after a later one overwrites it remotely. The next
  successful push (or resync) repairs it. There is no merge.

SEE ALSO:
  - retry.go: Resync ticker
  - remote/rest, remote/postgres: Remote implementations
*/
package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/rent-ledger/billing"
	"github.com/warp/rent-ledger/metrics"
)

// CloudSyncDesc labels archive entries created by a remote overwrite.
const CloudSyncDesc = "cloud sync"

// ErrMalformedRow is returned when a remote row's data is neither null nor
// a list of rooms.
var ErrMalformedRow = errors.New("remote row data is not a room list")

// Row is one user's remote backup. A nil Data means the row exists but
// holds null; an empty non-nil Data is a real, empty collection.
type Row struct {
	UserID    string         `json:"user_id"`
	Data      []billing.Room `json:"data"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Remote is the per-user remote store.
type Remote interface {
	// Fetch returns the user's row, or (nil, nil) if there is none.
	Fetch(ctx context.Context, userID string) (*Row, error)
	// Upsert replaces the user's row.
	Upsert(ctx context.Context, row Row) error
}

// DecodeData decodes a row's data column: null (or absent) is nil, a JSON
// list is a collection, anything else is ErrMalformedRow.
func DecodeData(raw json.RawMessage) ([]billing.Room, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] != '[' || !json.Valid(raw) {
		return nil, ErrMalformedRow
	}
	return billing.DecodeRooms(raw), nil
}

// =============================================================================
// RECONCILER
// =============================================================================

// Action is what establishing a session did.
type Action string

const (
	ActionPulled Action = "pulled" // remote overwrote local
	ActionSeeded Action = "seeded" // local pushed to an empty remote
	ActionNone   Action = "none"   // row with null data, nothing to do
	ActionFailed Action = "failed" // fetch failed, local untouched
)

// SyncResult reports a session establishment.
type SyncResult struct {
	Action Action `json:"action"`
	Rooms  int    `json:"rooms"`
}

// Reconciler applies the sync policy between a Book and a Remote.
type Reconciler struct {
	Remote  Remote
	Book    *billing.Book
	Logger  *zap.Logger
	Now     func() time.Time
	Timeout time.Duration

	mu      sync.Mutex
	userID  string
	seq     uint64 // last push started
	lastOK  uint64 // newest push that succeeded
	pending bool   // a push newer than lastOK failed

	inflight sync.WaitGroup
}

// New creates a Reconciler with a 10s push timeout.
func New(remote Remote, book *billing.Book, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		Remote:  remote,
		Book:    book,
		Logger:  logger,
		Now:     time.Now,
		Timeout: 10 * time.Second,
	}
}

// Attach registers the push hook on the book.
func (r *Reconciler) Attach() {
	r.Book.OnCommit(r.AfterCommit)
}

// UserID returns the active session's user, or "".
func (r *Reconciler) UserID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.userID
}

// Pending reports whether the latest push failed and a resync is due.
func (r *Reconciler) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

// OnSessionEstablished activates syncing for userID and reconciles once.
// A fetch error is returned, but the session stays active.
func (r *Reconciler) OnSessionEstablished(ctx context.Context, userID string) (SyncResult, error) {
	r.mu.Lock()
	r.userID = userID
	r.pending = false
	r.mu.Unlock()

	log := r.Logger.With(zap.String("user_id", userID))

	start := time.Now()
	row, err := r.Remote.Fetch(ctx, userID)
	if err != nil {
		metrics.RemoteOp("fetch", "error", time.Since(start))
		log.Warn("remote fetch failed, keeping local state", zap.Error(err))
		return SyncResult{Action: ActionFailed}, err
	}

	if r.UserID() != userID {
		log.Info("session changed during fetch, discarding result")
		return SyncResult{Action: ActionNone}, nil
	}

	switch {
	case row == nil:
		metrics.RemoteOp("fetch", "empty", time.Since(start))
		rooms := r.Book.Present()
		log.Info("no remote row, seeding from local", zap.Int("rooms", len(rooms)))
		r.push(ctx, userID, rooms)
		return SyncResult{Action: ActionSeeded, Rooms: len(rooms)}, nil

	case row.Data != nil:
		metrics.RemoteOp("fetch", "overwrite", time.Since(start))
		rooms := r.Book.Replace(row.Data, CloudSyncDesc, billing.OriginRemote)
		log.Info("remote row overwrote local state", zap.Int("rooms", len(rooms)))
		return SyncResult{Action: ActionPulled, Rooms: len(rooms)}, nil

	default:
		metrics.RemoteOp("fetch", "ok", time.Since(start))
		log.Info("remote row has no data")
		return SyncResult{Action: ActionNone}, nil
	}
}

// OnSessionEnded stops syncing. In-flight pushes are not cancelled.
func (r *Reconciler) OnSessionEnded() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userID = ""
	r.pending = false
}

// AfterCommit is a billing.CommitHook: it pushes local commits in the
// background while a session is active.
func (r *Reconciler) AfterCommit(ev billing.CommitEvent) {
	if ev.Origin == billing.OriginRemote {
		return
	}
	userID := r.UserID()
	if userID == "" {
		return
	}

	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.Timeout)
		defer cancel()
		r.push(ctx, userID, ev.Rooms)
	}()
}

// Wait blocks until in-flight background pushes finish.
func (r *Reconciler) Wait() {
	r.inflight.Wait()
}

// PushNow pushes the present collection synchronously.
func (r *Reconciler) PushNow(ctx context.Context) error {
	userID := r.UserID()
	if userID == "" {
		return nil
	}
	return r.push(ctx, userID, r.Book.Present())
}

func (r *Reconciler) push(ctx context.Context, userID string, rooms []billing.Room) error {
	r.mu.Lock()
	r.seq++
	seq := r.seq
	r.mu.Unlock()

	if rooms == nil {
		rooms = []billing.Room{}
	}
	start := time.Now()
	err := r.Remote.Upsert(ctx, Row{UserID: userID, Data: rooms, UpdatedAt: r.Now().UTC()})

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		metrics.RemoteOp("push", "error", time.Since(start))
		if seq > r.lastOK {
			r.pending = true
		}
		r.Logger.Warn("remote push failed",
			zap.String("user_id", userID),
			zap.Uint64("seq", seq),
			zap.Error(err),
		)
		return err
	}
	metrics.RemoteOp("push", "ok", time.Since(start))
	if seq > r.lastOK {
		r.lastOK = seq
		r.pending = false
	}
	return nil
}
