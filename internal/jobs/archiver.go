package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"hiroai/roomsync/internal/store"
)

// RoomStore is the part of the document store the archiver needs.
type RoomStore interface {
	CompletedRooms(ctx context.Context, before time.Time) ([]string, error)
	DeleteRoom(ctx context.Context, roomID string) error
}

// ArchiverConfig contains configuration for the archive job
type ArchiverConfig struct {
	Schedule  string        // Cron schedule (e.g., "0 3 * * *" for 3 AM daily)
	Retention time.Duration // Completed rooms older than this are removed
	Enabled   bool
}

// Archiver removes completed interview rooms once they fall out of the
// retention window. Rooms with connected members are left alone.
type Archiver struct {
	store  RoomStore
	active func(roomID string) int
	config *ArchiverConfig
	cron   *cron.Cron
	log    *zap.Logger
	now    func() time.Time
}

// NewArchiver creates the job. active reports live channel members for a
// room and may be nil.
func NewArchiver(st RoomStore, active func(string) int, config *ArchiverConfig, log *zap.Logger) *Archiver {
	return &Archiver{
		store:  st,
		active: active,
		config: config,
		cron:   cron.New(),
		log:    log,
		now:    time.Now,
	}
}

var _ RoomStore = (*store.Store)(nil)

// Start begins the scheduled archive job
func (a *Archiver) Start() error {
	if !a.config.Enabled {
		a.log.Info("room archiver is disabled, skipping scheduler")
		return nil
	}

	_, err := a.cron.AddFunc(a.config.Schedule, func() {
		if _, err := a.RunArchive(context.Background()); err != nil {
			a.log.Error("archive job failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule archive job: %w", err)
	}

	a.cron.Start()
	a.log.Info("room archiver started",
		zap.String("schedule", a.config.Schedule), zap.Duration("retention", a.config.Retention))
	return nil
}

// Stop stops the scheduler and waits for a running archive to finish.
func (a *Archiver) Stop() {
	if a.cron != nil {
		<-a.cron.Stop().Done()
		a.log.Info("room archiver stopped")
	}
}

// RunArchive performs a single pass and returns the rooms it removed.
// A room that fails to delete is logged and the pass continues.
func (a *Archiver) RunArchive(ctx context.Context) ([]string, error) {
	cutoff := a.now().Add(-a.config.Retention)
	rooms, err := a.store.CompletedRooms(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list completed rooms: %w", err)
	}
	if len(rooms) == 0 {
		a.log.Debug("no rooms to archive")
		return nil, nil
	}

	var removed []string
	for _, roomID := range rooms {
		if a.active != nil && a.active(roomID) > 0 {
			a.log.Info("skipping archive of room with live members", zap.String("room_id", roomID))
			continue
		}
		if err := a.store.DeleteRoom(ctx, roomID); err != nil {
			a.log.Warn("failed to archive room", zap.String("room_id", roomID), zap.Error(err))
			continue
		}
		removed = append(removed, roomID)
	}
	a.log.Info("archive pass finished", zap.Int("candidates", len(rooms)), zap.Int("removed", len(removed)))
	return removed, nil
}

// RunManual runs an archive pass on demand.
func (a *Archiver) RunManual(ctx context.Context) ([]string, error) {
	return a.RunArchive(ctx)
}
