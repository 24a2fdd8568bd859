package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/getpaseo/paseo/internal/metrics"
	"github.com/getpaseo/paseo/internal/registry"
)

// defaultRegistryRetention is how long an ended/errored agent's record
// survives in the Registry before the reconciler purges it (spec §4.5
// supplement: the symmetric sweep to listPidLocks' stale-lock GC).
const defaultRegistryRetention = 72 * time.Hour

// ReconcilerConfig parametrizes Reconciler's two named cron jobs.
type ReconcilerConfig struct {
	// PidLockHome is the directory pidlock.GC scans; empty disables the job.
	PidLockHome string
	// PidLockGCSchedule is a standard 5-field cron expression; defaults to
	// every 5 minutes.
	PidLockGCSchedule string
	// RegistryGCSchedule is a standard 5-field cron expression; defaults to
	// hourly.
	RegistryGCSchedule string
	// RegistryRetention is how old an ended record must be to purge;
	// defaults to defaultRegistryRetention.
	RegistryRetention time.Duration
	Logger            *slog.Logger
	Metrics           *metrics.Metrics
}

// PidLockGC abstracts internal/pidlock.GC so this package doesn't take a
// hard dependency on it (the reconciler is also useful in tests with a
// fake sweep).
type PidLockGC func(home string) ([]string, error)

// Reconciler drives the background-wake sweep's complementary stale-state
// cleanup: the PID-lock directory GC (spec §4.5) and the Agent Registry's
// retention sweep for ended agents (spec §C.2 supplement), both as named,
// independently schedulable cron jobs rather than one-off timers (DOMAIN
// STACK: robfig/cron/v3), mirroring the teacher's tasks.Scheduler use of
// the same package for its own due-work polling.
type Reconciler struct {
	cron   *cron.Cron
	store  registry.Store
	gc     PidLockGC
	cfg    ReconcilerConfig
	logger *slog.Logger
}

// NewReconciler builds a Reconciler. store may be nil to disable the
// registry-GC job; cfg.PidLockHome empty disables the pidlock-GC job.
func NewReconciler(store registry.Store, gc PidLockGC, cfg ReconcilerConfig) *Reconciler {
	if cfg.PidLockGCSchedule == "" {
		cfg.PidLockGCSchedule = "*/5 * * * *"
	}
	if cfg.RegistryGCSchedule == "" {
		cfg.RegistryGCSchedule = "0 * * * *"
	}
	if cfg.RegistryRetention <= 0 {
		cfg.RegistryRetention = defaultRegistryRetention
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		cron:   cron.New(),
		store:  store,
		gc:     gc,
		cfg:    cfg,
		logger: logger,
	}
}

// Start registers both jobs (skipping any whose dependency is absent) and
// starts the cron scheduler's own goroutine. Safe to call once.
func (r *Reconciler) Start() error {
	if r.cfg.PidLockHome != "" && r.gc != nil {
		if _, err := r.cron.AddFunc(r.cfg.PidLockGCSchedule, r.runPidLockGC); err != nil {
			return err
		}
	}
	if r.store != nil {
		if _, err := r.cron.AddFunc(r.cfg.RegistryGCSchedule, r.runRegistryGC); err != nil {
			return err
		}
	}
	r.cron.Start()
	return nil
}

// Stop cancels pending runs and waits for any in-flight job to finish.
func (r *Reconciler) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Reconciler) runPidLockGC() {
	removed, err := r.gc(r.cfg.PidLockHome)
	if err != nil {
		r.logger.Warn("reconciler: pidlock gc failed", slog.String("error", err.Error()))
		return
	}
	if len(removed) > 0 {
		r.logger.Info("reconciler: removed stale pid locks", slog.Int("count", len(removed)))
		if r.cfg.Metrics != nil {
			for range removed {
				r.cfg.Metrics.PidLockGCRemoved.Inc()
			}
		}
	}
}

func (r *Reconciler) runRegistryGC() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	agents, err := r.store.List(ctx)
	if err != nil {
		r.logger.Warn("reconciler: registry list failed", slog.String("error", err.Error()))
		return
	}

	cutoff := time.Now().Add(-r.cfg.RegistryRetention)
	purged := 0
	for _, a := range agents {
		if !a.Status.Terminal() {
			continue
		}
		if a.LastActivityAt.After(cutoff) {
			continue
		}
		if err := r.store.Delete(ctx, a.ID); err != nil {
			r.logger.Warn("reconciler: registry delete failed",
				slog.String("agentId", a.ID), slog.String("error", err.Error()))
			continue
		}
		purged++
	}
	if purged > 0 {
		r.logger.Info("reconciler: purged stale registry records", slog.Int("count", purged))
		if r.cfg.Metrics != nil {
			for i := 0; i < purged; i++ {
				r.cfg.Metrics.RegistryGCPurged.Inc()
			}
		}
	}
}
