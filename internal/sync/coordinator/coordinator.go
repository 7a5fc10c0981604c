// Package coordinator schedules sync cycles and maintains the status
// heartbeat around each one.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/arkeo-network/arkeo-cache-sync/internal/config"
	"github.com/arkeo-network/arkeo-cache-sync/internal/status"
	syncpkg "github.com/arkeo-network/arkeo-cache-sync/internal/sync"
	"github.com/arkeo-network/arkeo-cache-sync/internal/telemetry"
)

// MinInterval is the scheduling floor. Shorter configured intervals are
// clamped up to bound the query rate against the node.
const MinInterval = 60 * time.Second

// LockFileName is the advisory instance lock inside the cache directory.
const LockFileName = ".sync.lock"

// ErrLockHeld is returned when another instance holds the instance lock.
var ErrLockHeld = errors.New("another sync instance holds the cache directory lock")

// CycleRunner performs one sync cycle.
type CycleRunner interface {
	PerformSync(ctx context.Context) (*syncpkg.Result, error)
}

// Coordinator drives the cycle loop. Cycles never overlap; the next cycle
// is not scheduled until the current one finished.
type Coordinator struct {
	cfg      *config.Config
	manager  CycleRunner
	recorder *status.Recorder
	metrics  *telemetry.SyncMetrics
	logger   *slog.Logger

	// now is swappable in tests.
	now func() time.Time
}

// New creates a coordinator. metrics may be nil.
func New(
	cfg *config.Config,
	manager CycleRunner,
	recorder *status.Recorder,
	metrics *telemetry.SyncMetrics,
) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		manager:  manager,
		recorder: recorder,
		metrics:  metrics,
		logger:   slog.Default().With("component", "coordinator"),
		now:      time.Now,
	}
}

// Run executes the sync loop until the context is cancelled. With once set
// it runs a single cycle and returns that cycle's outcome. An interval of
// zero or less disables the loop; the process parks until terminated.
func (c *Coordinator) Run(ctx context.Context, once bool) error {
	if c.cfg.Sync.InstanceLock {
		lock := flock.New(filepath.Join(c.cfg.CacheDir, LockFileName))
		locked, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("failed to acquire instance lock: %w", err)
		}
		if !locked {
			return ErrLockHeld
		}
		defer lock.Unlock() //nolint:errcheck // releasing on shutdown
	}

	if once {
		return c.runCycle(ctx)
	}

	interval := c.cfg.Sync.Interval
	if interval <= 0 {
		c.logger.Info("sync interval disabled, parking")
		<-ctx.Done()
		return nil
	}
	if interval < MinInterval {
		c.logger.Warn("sync interval below floor, clamping",
			"configured", interval, "floor", MinInterval)
		interval = MinInterval
	}

	c.logger.Info("starting sync loop", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := c.runCycle(ctx); err != nil {
			var cycleErr *cycleError
			if !errors.As(err, &cycleErr) {
				// Unexpected failure: the heartbeat already recorded it,
				// re-raise so a supervisor restarts the process.
				return err
			}
			// Source failures are part of normal operation; the next cycle
			// gets a fresh chance.
			c.logger.Warn("sync cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// cycleError marks a cycle that completed but had failing sources, as
// opposed to an unexpected internal failure.
type cycleError struct {
	err error
}

func (e *cycleError) Error() string { return e.err.Error() }
func (e *cycleError) Unwrap() error { return e.err }

// runCycle wraps one cycle in the status heartbeat. The heartbeat is
// best-effort on start, mandatory in intent on end: even an unexpected
// failure records last_error before the error propagates.
func (c *Coordinator) runCycle(ctx context.Context) error {
	cycleID := uuid.NewString()
	started := c.now().UTC()

	if err := c.recorder.MarkStart(cycleID, started); err != nil {
		c.logger.Warn("failed to record cycle start", "cycle_id", cycleID, "error", err)
	}
	c.logger.Info("cycle started", "cycle_id", cycleID)

	// A panic mid-cycle still ends the heartbeat before the process dies,
	// so the status artifact is never left claiming a cycle in progress.
	defer func() {
		if r := recover(); r != nil {
			finished := c.now().UTC()
			if endErr := c.recorder.MarkEnd(cycleID, finished, fmt.Sprintf("panic: %v", r)); endErr != nil {
				c.logger.Error("failed to record cycle panic", "cycle_id", cycleID, "error", endErr)
			}
			c.metrics.RecordCycleDuration(ctx, finished.Sub(started), false)
			panic(r)
		}
	}()

	result, err := c.manager.PerformSync(ctx)
	finished := c.now().UTC()

	if err != nil {
		if endErr := c.recorder.MarkEnd(cycleID, finished, err.Error()); endErr != nil {
			c.logger.Error("failed to record cycle failure", "cycle_id", cycleID, "error", endErr)
		}
		c.metrics.RecordCycleDuration(ctx, finished.Sub(started), false)
		return err
	}

	errMsg := ""
	if cycleErr := result.Err(); cycleErr != nil {
		errMsg = cycleErr.Error()
	}
	if endErr := c.recorder.MarkEnd(cycleID, finished, errMsg); endErr != nil {
		c.logger.Warn("failed to record cycle end", "cycle_id", cycleID, "error", endErr)
	}
	c.metrics.RecordCycleDuration(ctx, finished.Sub(started), errMsg == "")

	if errMsg != "" {
		return &cycleError{err: result.Err()}
	}
	return nil
}
