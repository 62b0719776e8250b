package directory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/isometry/dlsync/internal/ldap"
	"github.com/isometry/dlsync/internal/metrics"
)

// DefaultRefreshInterval is used when no interval is configured.
const DefaultRefreshInterval = 600 * time.Second

// State is the lifecycle state of a Scheduler.
type State int32

const (
	StateUninitialized State = iota // nothing attempted yet
	StateLoading                    // a build is running, or no build has succeeded yet
	StateReady                      // a snapshot is published and no build is running
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Scheduler rebuilds the snapshot on a fixed interval and publishes it into
// a LookupTable. At most one build runs at a time; a tick that arrives
// while a build is running is dropped.
type Scheduler struct {
	table *LookupTable
	log   ldap.Logger

	building *semaphore.Weighted
	pending  atomic.Bool // a reconfiguration arrived during a build
	state    atomic.Int32
	wg       sync.WaitGroup

	mu           sync.Mutex
	builder      *Builder
	interval     time.Duration
	retired      []ldap.Client
	reconfigured chan struct{}
}

// NewScheduler returns a scheduler publishing builds of builder into table.
// A non-positive interval means DefaultRefreshInterval.
func NewScheduler(builder *Builder, table *LookupTable, interval time.Duration, log ldap.Logger) *Scheduler {
	if log == nil {
		log = ldap.NopLogger{}
	}
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Scheduler{
		table:        table,
		log:          log,
		building:     semaphore.NewWeighted(1),
		builder:      builder,
		interval:     interval,
		reconfigured: make(chan struct{}, 1),
	}
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Table returns the lookup table the scheduler publishes into.
func (s *Scheduler) Table() *LookupTable {
	return s.table
}

// Interval returns the refresh interval.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

func (s *Scheduler) currentBuilder() *Builder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.builder
}

// Start builds once immediately and then on every tick until ctx is done.
// It waits for a running build to finish before returning.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.Interval())
	defer ticker.Stop()

	s.log.Info("Refresh scheduler started", map[string]any{"interval": s.Interval().String()})

	s.trigger(ctx, false)

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.log.Info("Refresh scheduler stopped", nil)
			return nil

		case <-ticker.C:
			s.trigger(ctx, false)

		case <-s.reconfigured:
			interval := s.Interval()
			ticker.Reset(interval)
			s.log.Info("Refresh rescheduled", map[string]any{"interval": interval.String()})
			s.trigger(ctx, true)
		}
	}
}

// trigger starts a build in the background unless one is running. A
// forced trigger that finds a build running is remembered and run once
// the current build completes.
func (s *Scheduler) trigger(ctx context.Context, force bool) {
	if !s.building.TryAcquire(1) {
		if force {
			s.pending.Store(true)
			s.log.Debug("Build in progress, reconfigured build deferred", nil)
			return
		}
		metrics.RefreshSkippedInc()
		s.log.Debug("Build in progress, tick skipped", nil)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.cycle(ctx)
		s.building.Release(1)

		if s.pending.CompareAndSwap(true, false) && ctx.Err() == nil {
			s.trigger(ctx, true)
		}
	}()
}

// Refresh runs one build synchronously, waiting for a running build to
// finish first. It returns the build error, if any. The previously
// published snapshot stays current on failure.
func (s *Scheduler) Refresh(ctx context.Context) error {
	if err := s.building.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.building.Release(1)
	return s.cycle(ctx)
}

// cycle runs one build. Callers must hold the building semaphore.
func (s *Scheduler) cycle(ctx context.Context) error {
	s.closeRetired()

	builder := s.currentBuilder()
	s.state.Store(int32(StateLoading))

	start := time.Now()
	snap, err := builder.Build(ctx)
	if err != nil {
		metrics.BuildObserve(buildResult(err), start)

		fields := map[string]any{
			"error":       err.Error(),
			"category":    string(ldap.GetErrorCategory(err)),
			"duration_ms": time.Since(start).Milliseconds(),
		}
		if cur, cerr := s.table.Current(); cerr == nil {
			fields["serving_generation"] = cur.Generation
			s.state.Store(int32(StateReady))
		}
		s.log.Error("Snapshot build failed, keeping previous snapshot", fields)
		return err
	}

	s.table.Publish(snap)
	s.state.Store(int32(StateReady))

	metrics.BuildObserve("ok", start)
	metrics.SnapshotPublished(snap.Generation, snap.Len(), snap.BuiltAt)

	s.log.Info("Snapshot published", map[string]any{
		"generation":  snap.Generation,
		"addresses":   snap.Len(),
		"duration_ms": snap.Duration.Milliseconds(),
	})
	return nil
}

// Reconfigure replaces the refresh interval and, when builder is not nil,
// the builder used by subsequent builds. The pending timer is reset and a
// build is triggered; a build already running is not interrupted. A
// replaced builder's client is closed before the next build starts.
func (s *Scheduler) Reconfigure(interval time.Duration, builder *Builder) {
	s.mu.Lock()
	if interval > 0 {
		s.interval = interval
	}
	if builder != nil && builder != s.builder {
		if s.builder != nil {
			builder.ensureGenerationAbove(s.builder.generations.Load())
			if old := s.builder.Client(); old != nil && old != builder.Client() {
				s.retired = append(s.retired, old)
			}
		}
		s.builder = builder
	}
	s.mu.Unlock()

	select {
	case s.reconfigured <- struct{}{}:
	default:
	}
}

func (s *Scheduler) closeRetired() {
	s.mu.Lock()
	retired := s.retired
	s.retired = nil
	s.mu.Unlock()

	for _, c := range retired {
		if err := c.Close(); err != nil {
			s.log.Warn("Closing replaced directory client", map[string]any{"error": err.Error()})
		}
	}
}

// Close closes the directory clients owned by the scheduler. It must not
// be called while Start is running.
func (s *Scheduler) Close() error {
	s.closeRetired()
	if b := s.currentBuilder(); b != nil && b.Client() != nil {
		return b.Client().Close()
	}
	return nil
}

func buildResult(err error) string {
	var connErr *ldap.ConnectionError
	var searchErr *ldap.SearchError
	switch {
	case err == nil:
		return "ok"
	case ldap.IsAuthenticationError(err):
		return "authentication"
	case errors.As(err, &connErr):
		return "connection"
	case errors.As(err, &searchErr):
		return "search"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
