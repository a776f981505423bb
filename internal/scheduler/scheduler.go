// Package scheduler implements background task scheduling for the
// downloader: periodic world store flushes and system stats collection.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/n90p/minecraft-world-downloader/internal/config"
	"github.com/n90p/minecraft-world-downloader/internal/events"
	"github.com/n90p/minecraft-world-downloader/internal/util"
	"github.com/n90p/minecraft-world-downloader/internal/world"
)

// Scheduler manages periodic background tasks.
type Scheduler struct {
	cfg      *config.Config
	eventBus *events.EventBus
	store    *world.Store
}

// NewScheduler creates a new task scheduler.
func NewScheduler(cfg *config.Config, eventBus *events.EventBus, store *world.Store) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		eventBus: eventBus,
		store:    store,
	}
}

// Start begins running all scheduled tasks and blocks until the context is
// cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	log.Info().Msg("scheduler started")

	timers := s.cfg.GetApplicationData().Timers

	go s.runFlushLoop(ctx, intervalOrDefault(timers.StoreFlushInterval, 30))
	go s.runStatsLoop(ctx, intervalOrDefault(timers.StatsPollingInterval, 10))

	<-ctx.Done()
	log.Info().Msg("scheduler stopped")
}

// runFlushLoop moves buffered chunks to disk on a fixed interval.
func (s *Scheduler) runFlushLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pending := s.store.Pending()
			if pending == 0 {
				continue
			}
			if err := s.store.Flush(); err != nil {
				log.Error().Err(err).Int("pending", pending).Msg("scheduled flush failed")
			}
		}
	}
}

// runStatsLoop samples host resource usage so slow disks or CPU saturation
// show up in the logs next to decode warnings.
func (s *Scheduler) runStatsLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.collectStats()
		}
	}
}

// collectStats gathers system statistics.
func (s *Scheduler) collectStats() {
	evt := log.Debug()

	if cpu, err := util.GetCPUUsage(); err == nil {
		evt = evt.Float64("cpu_percent", cpu)
	}
	if mem, err := util.GetMemoryUsage(); err == nil {
		evt = evt.Float64("mem_percent", mem.UsedPercent)
	}
	if du, err := util.GetDiskUsage(s.cfg.GetProxyData().WorldDirectory); err == nil {
		evt = evt.Float64("disk_percent", du.UsedPercent)
	}

	evt.Int("chunks_pending", s.store.Pending()).
		Uint64("chunks_written", s.store.Written()).
		Msg("system stats")
}

func intervalOrDefault(seconds, fallback int) time.Duration {
	if seconds < 1 {
		seconds = fallback
	}
	return time.Duration(seconds) * time.Second
}
