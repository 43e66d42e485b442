/*
Package app assembles the rent ledger from configuration.

PURPOSE:
  Both binaries need the same object graph: a local store, the Book loaded
  from it, and the commit hooks around the Book. App builds that graph once
  and owns the resources it opened.

HOOK ORDER:
  1. Persister (local store, synchronous)
  2. Journal   (sqlite only, synchronous)
  3. Metrics
  4. Reconciler push (background)
  5. Event publisher (queued)

SEE ALSO:
  - config: Settings consumed here
  - cmd/server, cmd/rentctl: Callers
*/
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/warp/rent-ledger/billing"
	"github.com/warp/rent-ledger/config"
	"github.com/warp/rent-ledger/events"
	"github.com/warp/rent-ledger/logging"
	"github.com/warp/rent-ledger/metrics"
	"github.com/warp/rent-ledger/reconcile"
	"github.com/warp/rent-ledger/remote/postgres"
	"github.com/warp/rent-ledger/remote/rest"
	"github.com/warp/rent-ledger/store/badger"
	"github.com/warp/rent-ledger/store/memory"
	"github.com/warp/rent-ledger/store/sqlite"
)

var (
	// ErrSyncDisabled is returned by session calls when no remote backend
	// is configured.
	ErrSyncDisabled = errors.New("remote sync is not configured")

	// ErrJournalDisabled is returned when the local store keeps no journal.
	ErrJournalDisabled = errors.New("commit journal requires the sqlite store")
)

// App is the assembled ledger.
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Store      billing.LocalStore
	Book       *billing.Book
	Reconciler *reconcile.Reconciler // nil when REMOTE_BACKEND=none
	Resync     *reconcile.Resync     // nil when REMOTE_BACKEND=none
	Events     *events.Publisher     // nil when AMQP_URL is empty

	journal *sqlite.Store
	token   func(string)
	closers []func() error
}

// Option customizes New.
type Option func(*options)

type options struct {
	remote   reconcile.Remote
	store    billing.LocalStore
	bookOpts []billing.BookOption
}

// WithRemote uses remote instead of the configured backend.
func WithRemote(remote reconcile.Remote) Option {
	return func(o *options) { o.remote = remote }
}

// WithStore uses store instead of the configured local store.
func WithStore(store billing.LocalStore) Option {
	return func(o *options) { o.store = store }
}

// WithBookOptions passes options through to billing.NewBook.
func WithBookOptions(opts ...billing.BookOption) Option {
	return func(o *options) { o.bookOpts = append(o.bookOpts, opts...) }
}

// New opens the configured resources and loads the Book. On error every
// resource opened so far is closed.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (a *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a = &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	if o.store != nil {
		a.Store = o.store
	} else if err = a.openStore(); err != nil {
		return nil, err
	}

	state, err := billing.LoadState(ctx, a.Store, cfg.Defaults, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to load local state: %w", err)
	}
	bookOpts := append([]billing.BookOption{billing.WithLogger(logger.Named("book"))}, o.bookOpts...)
	a.Book = billing.NewBook(state, bookOpts...)
	metrics.SetRooms(len(state.History.Present))

	billing.NewPersister(a.Store, logger.Named("persist")).Attach(a.Book)
	if a.journal != nil {
		a.Book.OnCommit(a.appendJournal)
	}
	a.Book.OnCommit(metrics.ObserveCommit)

	remote := o.remote
	if remote == nil {
		if remote, err = a.openRemote(ctx); err != nil {
			return nil, err
		}
	}
	if remote != nil {
		a.Reconciler = reconcile.New(remote, a.Book, logger.Named("reconcile"))
		a.Reconciler.Attach()
		a.Resync = reconcile.NewResync(a.Reconciler, cfg.Remote.ResyncInterval, logger.Named("resync"))
	}

	if cfg.AMQP.URL != "" {
		conn, ch, err := events.Dial(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, conn.Close)
		a.Events = events.NewPublisher(ch, cfg.AMQP.Exchange, cfg.AMQP.RoutingKey, a.userID, logger.Named("events"))
		a.Book.OnCommit(a.Events.AfterCommit)
	}

	logger.Info("ledger loaded",
		zap.String("local_store", cfg.Local.Kind),
		zap.String("remote_backend", cfg.Remote.Backend),
		zap.Int("rooms", len(state.History.Present)),
		zap.Bool("events", a.Events != nil),
	)
	return a, nil
}

func (a *App) openStore() error {
	switch a.Config.Local.Kind {
	case config.StoreBadger:
		s, err := badger.Open(badger.Config{Path: a.Config.Local.BadgerPath, SyncWrites: true}, a.Logger.Named("badger"))
		if err != nil {
			return err
		}
		a.Store = s
		a.closers = append(a.closers, s.Close)
	case config.StoreMemory:
		a.Store = memory.New()
	default:
		s, err := sqlite.New(a.Config.Local.SQLitePath)
		if err != nil {
			return err
		}
		a.Store = s
		a.journal = s
		a.closers = append(a.closers, s.Close)
	}
	return nil
}

func (a *App) openRemote(ctx context.Context) (reconcile.Remote, error) {
	rc := a.Config.Remote
	switch rc.Backend {
	case config.RemoteREST:
		c := rest.New(rest.Config{BaseURL: rc.URL, APIKey: rc.APIKey, Table: rc.Table}, a.Logger.Named("rest"))
		a.token = c.SetAccessToken
		return c, nil
	case config.RemotePostgres:
		pool, err := postgres.NewPool(ctx, rc.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		s := postgres.New(pool, rc.Table, a.Logger.Named("postgres"))
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, nil
	}
}

func (a *App) appendJournal(ev billing.CommitEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.journal.AppendJournal(ctx, ev); err != nil {
		a.Logger.Error("failed to append commit journal", zap.String("desc", ev.Desc), zap.Error(err))
	}
}

func (a *App) userID() string {
	if a.Reconciler == nil {
		return ""
	}
	return a.Reconciler.UserID()
}

// =============================================================================
// SESSION
// =============================================================================

// EstablishSession activates remote sync for userID. token, when the REST
// backend is in use, replaces the bearer credential.
func (a *App) EstablishSession(ctx context.Context, userID, token string) (reconcile.SyncResult, error) {
	if a.Reconciler == nil {
		return reconcile.SyncResult{}, ErrSyncDisabled
	}
	if token != "" && a.token != nil {
		a.token(token)
	}
	logging.WithUser(a.Logger, userID).Info("session established")
	return a.Reconciler.OnSessionEstablished(ctx, userID)
}

// EndSession stops remote sync. Local data is kept.
func (a *App) EndSession() error {
	if a.Reconciler == nil {
		return ErrSyncDisabled
	}
	a.Reconciler.OnSessionEnded()
	if a.token != nil {
		a.token("")
	}
	return nil
}

// SessionStatus reports the active user and whether a resync is due.
type SessionStatus struct {
	Enabled bool   `json:"enabled"`
	UserID  string `json:"userId,omitempty"`
	Pending bool   `json:"pending"`
}

// Session returns the current session status.
func (a *App) Session() SessionStatus {
	if a.Reconciler == nil {
		return SessionStatus{}
	}
	return SessionStatus{
		Enabled: true,
		UserID:  a.Reconciler.UserID(),
		Pending: a.Reconciler.Pending(),
	}
}

// Journal returns the newest commit journal entries.
func (a *App) Journal(ctx context.Context, limit int) ([]sqlite.JournalEntry, error) {
	if a.journal == nil {
		return nil, ErrJournalDisabled
	}
	return a.journal.Journal(ctx, limit)
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Start begins background work.
func (a *App) Start() {
	if a.Resync != nil {
		a.Resync.Start()
	}
}

// Close stops background work, waits for in-flight pushes and events, and
// releases resources in reverse order of opening.
func (a *App) Close() error {
	if a.Resync != nil {
		a.Resync.Stop()
	}
	if a.Reconciler != nil {
		a.Reconciler.Wait()
	}
	var errs []error
	if a.Events != nil {
		if err := a.Events.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
