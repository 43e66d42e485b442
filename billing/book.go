/*
book.go - Single owner of the present room collection

PURPOSE:
  Every accepted change to the room collection goes through Book.Apply.
  Apply evaluates the change against the latest present state under a
  lock, records it in the undo history, and fans the result out to commit
  hooks (local persistence, remote push, event publishing, metrics).

ORDERING:
  Commits are strictly ordered by the order Apply calls acquire the lock.
  Hooks run synchronously under that lock, in registration order, so every
  hook observes commits in the same order. A hook that does I/O it must not
  wait on (a network push) starts its own goroutine.

  Hooks must not call back into the Book.

FAILURE:
  If the change function returns an error nothing is committed and no hook
  runs. Hook failures never undo a commit: the local commit is authoritative.

SEE ALSO:
  - history.go: The pure commit/restore rules
  - actions.go: Named collection operations built on Apply
  - store.go: Persistence hook and startup loading
*/
package billing

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Origin says where a commit came from.
type Origin string

const (
	OriginLocal  Origin = "local"  // user action on this instance
	OriginRemote Origin = "remote" // overwrite pulled from the remote store
)

// CommitEvent describes one accepted commit. Rooms is a private copy.
type CommitEvent struct {
	Rooms  []Room
	Desc   string
	Origin Origin
	At     time.Time
}

// CommitHook observes commits.
type CommitHook func(CommitEvent)

// ConfigHook observes changes to the global defaults.
type ConfigHook func(Defaults)

// Book owns the history state and the global defaults.
type Book struct {
	mu       sync.Mutex
	state    HistoryState
	defaults Defaults

	scheduler *Scheduler
	newID     func() string
	logger    *zap.Logger

	commitHooks []CommitHook
	configHooks []ConfigHook
}

// BookOption configures a Book.
type BookOption func(*Book)

// WithScheduler sets the scheduler (and through it the clock).
func WithScheduler(s *Scheduler) BookOption {
	return func(b *Book) { b.scheduler = s }
}

// WithIDGenerator sets the generator for room and bill record ids.
func WithIDGenerator(fn func() string) BookOption {
	return func(b *Book) { b.newID = fn }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) BookOption {
	return func(b *Book) { b.logger = l }
}

// NewBook wraps a loaded state.
func NewBook(state AppState, opts ...BookOption) *Book {
	b := &Book{
		state:     state.History,
		defaults:  state.Config,
		scheduler: NewScheduler(),
		newID:     uuid.NewString,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.state.Archives == nil {
		b.state = NewHistory(b.state.Present, InitialDesc, b.now())
	}
	return b
}

// OnCommit registers a commit hook.
func (b *Book) OnCommit(hook CommitHook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commitHooks = append(b.commitHooks, hook)
}

// OnConfig registers a defaults hook.
func (b *Book) OnConfig(hook ConfigHook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.configHooks = append(b.configHooks, hook)
}

func (b *Book) now() time.Time {
	if b.scheduler == nil || b.scheduler.Now == nil {
		return time.Now()
	}
	return b.scheduler.Now()
}

// ===== WRITES =====

// ChangeFunc derives the next collection from the present one. It receives
// a private copy and may modify it.
type ChangeFunc func(present []Room) ([]Room, error)

// Apply commits the collection produced by fn, labelled desc.
// It returns a copy of the new present collection.
func (b *Book) Apply(desc string, fn ChangeFunc) ([]Room, error) {
	return b.apply(desc, OriginLocal, fn)
}

// Replace commits rooms wholesale. Remote overwrites use OriginRemote.
func (b *Book) Replace(rooms []Room, desc string, origin Origin) []Room {
	out, _ := b.apply(desc, origin, func([]Room) ([]Room, error) {
		return rooms, nil
	})
	return out
}

func (b *Book) apply(desc string, origin Origin, fn ChangeFunc) ([]Room, error) {
	return b.applyDesc(origin, func(present []Room) ([]Room, string, error) {
		next, err := fn(present)
		return next, desc, err
	})
}

// applyDesc is apply for changes whose description depends on the state
// they are applied to.
func (b *Book) applyDesc(origin Origin, fn func(present []Room) ([]Room, string, error)) ([]Room, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	next, desc, err := fn(CloneRooms(b.state.Present))
	if err != nil {
		return nil, err
	}
	return b.commitLocked(desc, origin, func(now time.Time) HistoryState {
		return b.state.Commit(next, desc, now)
	}), nil
}

// Restore commits a copy of archive entry index as the new present.
func (b *Book) Restore(index int) ([]Room, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.state.Item(index); !ok {
		return nil, ErrArchiveNotFound
	}
	desc := RestoreDesc(b.state.Archives[index].Desc)
	return b.commitLocked(desc, OriginLocal, func(now time.Time) HistoryState {
		next, _ := b.state.Restore(index, now)
		return next
	}), nil
}

func (b *Book) commitLocked(desc string, origin Origin, step func(time.Time) HistoryState) []Room {
	now := b.now()
	b.state = step(now)

	for _, hook := range b.commitHooks {
		hook(CommitEvent{
			Rooms:  CloneRooms(b.state.Present),
			Desc:   desc,
			Origin: origin,
			At:     now,
		})
	}
	b.logger.Debug("committed",
		zap.String("desc", desc),
		zap.String("origin", string(origin)),
		zap.Int("rooms", len(b.state.Present)),
		zap.Int("archives", len(b.state.Archives)),
	)
	return CloneRooms(b.state.Present)
}

// SetDefaults replaces the global defaults. Defaults are not part of the
// undo history.
func (b *Book) SetDefaults(d Defaults) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.defaults = d
	for _, hook := range b.configHooks {
		hook(d)
	}
}

// ===== READS =====

// Present returns a copy of the present collection.
func (b *Book) Present() []Room {
	b.mu.Lock()
	defer b.mu.Unlock()
	return CloneRooms(b.state.Present)
}

// Room returns a copy of the room with id.
func (b *Book) Room(id string) (Room, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := FindRoom(b.state.Present, id)
	if i < 0 {
		return Room{}, ErrRoomNotFound
	}
	return b.state.Present[i].Clone(), nil
}

// Archives returns a copy of the undo archive, newest first.
func (b *Book) Archives() []HistoryItem {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]HistoryItem, len(b.state.Archives))
	for i := range b.state.Archives {
		out[i], _ = b.state.Item(i)
	}
	return out
}

// Defaults returns the global defaults.
func (b *Book) Defaults() Defaults {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.defaults
}

// Scheduler returns the book's scheduler.
func (b *Book) Scheduler() *Scheduler {
	return b.scheduler
}

// settler builds a Settler bound to the current defaults. Callers hold mu.
func (b *Book) settlerLocked() *Settler {
	return &Settler{Scheduler: b.scheduler, Defaults: b.defaults, NewID: b.newID}
}
