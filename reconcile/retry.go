package reconcile

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// RESYNC - Periodic retry of failed pushes
// =============================================================================

// Resync re-pushes the present collection on a ticker whenever the last
// push failed.
type Resync struct {
	Reconciler *Reconciler
	Interval   time.Duration
	Logger     *zap.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewResync creates a Resync. A zero interval disables it.
func NewResync(r *Reconciler, interval time.Duration, logger *zap.Logger) *Resync {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resync{
		Reconciler: r,
		Interval:   interval,
		Logger:     logger,
	}
}

// Start begins the ticker.
func (rs *Resync) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.Interval <= 0 {
		rs.Logger.Info("resync disabled")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.Interval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)
	go rs.run()

	rs.Logger.Info("resync started", zap.Duration("interval", rs.Interval))
}

// Stop stops the ticker and waits for a running retry to finish.
func (rs *Resync) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		rs.Logger.Info("resync stopped")
	}
}

func (rs *Resync) run() {
	defer rs.wg.Done()

	for {
		select {
		case <-rs.ticker.C:
			rs.Tick()
		case <-rs.stop:
			return
		}
	}
}

// Tick retries once if a push is pending. It reports whether it pushed.
func (rs *Resync) Tick() bool {
	r := rs.Reconciler
	if !r.Pending() {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.Timeout)
	defer cancel()

	if err := r.PushNow(ctx); err != nil {
		rs.Logger.Debug("resync push failed, will retry", zap.Error(err))
		return true
	}
	rs.Logger.Info("resync push succeeded", zap.String("user_id", r.UserID()))
	return true
}
