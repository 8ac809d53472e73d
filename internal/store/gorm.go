package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hiroai/roomsync/internal/models"
)

type documentRow struct {
	RoomID    string              `gorm:"primaryKey;size:128"`
	Document  models.RoomDocument `gorm:"type:text;serializer:json;not null"`
	Stamps    FieldStamps         `gorm:"type:text;serializer:json"`
	Version   int64               `gorm:"not null"`
	Status    string              `gorm:"size:32;index"`
	DocMillis int64               `gorm:"column:doc_millis;not null;index"`
}

func (documentRow) TableName() string { return "room_documents" }

type historyRow struct {
	Seq       uint                `gorm:"primaryKey;autoIncrement"`
	EntryID   string              `gorm:"column:entry_id;size:64;uniqueIndex"`
	RoomID    string              `gorm:"size:128;index;not null"`
	CreatedMs int64               `gorm:"column:created_ms;not null"`
	Entry     models.HistoryEntry `gorm:"type:text;serializer:json;not null"`
}

func (historyRow) TableName() string { return "room_history" }

type sentRow struct {
	Seq       uint                `gorm:"primaryKey;autoIncrement"`
	EntryID   string              `gorm:"column:entry_id;size:64;uniqueIndex"`
	RoomID    string              `gorm:"size:128;index;not null"`
	CreatedMs int64               `gorm:"column:created_ms;not null"`
	Entry     models.SentQuestion `gorm:"type:text;serializer:json;not null"`
}

func (sentRow) TableName() string { return "room_sent_questions" }

type timelineRow struct {
	Seq       uint                         `gorm:"primaryKey;autoIncrement"`
	EntryID   string                       `gorm:"column:entry_id;size:64;uniqueIndex"`
	RoomID    string                       `gorm:"size:128;index;not null"`
	CreatedMs int64                        `gorm:"column:created_ms;not null"`
	Status    string                       `gorm:"size:32;not null"`
	Entry     models.QuestionTimelineEntry `gorm:"type:text;serializer:json;not null"`
}

func (timelineRow) TableName() string { return "room_timeline" }

// GormBackend stores rooms in a SQL database (PostgreSQL in production,
// SQLite for local runs and tests). Documents are JSON columns guarded by
// an optimistic version.
type GormBackend struct {
	db *gorm.DB
}

// NewGormBackend migrates the schema and returns the backend.
func NewGormBackend(db *gorm.DB) (*GormBackend, error) {
	if err := db.AutoMigrate(&documentRow{}, &historyRow{}, &sentRow{}, &timelineRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate room tables: %w", err)
	}
	return &GormBackend{db: db}, nil
}

func (g *GormBackend) Load(ctx context.Context, roomID string) (Record, error) {
	var row documentRow
	err := g.db.WithContext(ctx).Where("room_id = ?", roomID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return Record{Doc: row.Document, Stamps: row.Stamps, Version: row.Version}, nil
}

func (g *GormBackend) Save(ctx context.Context, roomID string, rec Record) error {
	row := documentRow{
		RoomID:    roomID,
		Document:  rec.Doc,
		Stamps:    rec.Stamps,
		Version:   rec.Version + 1,
		Status:    string(rec.Doc.Status),
		DocMillis: rec.Doc.Timestamp,
	}
	db := g.db.WithContext(ctx)
	if rec.Version == 0 {
		res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		return nil
	}
	res := db.Model(&documentRow{}).
		Where("room_id = ? AND version = ?", roomID, rec.Version).
		Select("Document", "Stamps", "Version", "Status", "DocMillis").
		Updates(&row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func (g *GormBackend) DeleteRoom(ctx context.Context, roomID string) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []interface{}{&historyRow{}, &sentRow{}, &timelineRow{}, &documentRow{}} {
			if err := tx.Where("room_id = ?", roomID).Delete(model).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (g *GormBackend) CompletedBefore(ctx context.Context, before int64) ([]string, error) {
	var ids []string
	err := g.db.WithContext(ctx).Model(&documentRow{}).
		Where("status = ? AND doc_millis < ?", string(models.StatusCompleted), before).
		Order("room_id").
		Pluck("room_id", &ids).Error
	return ids, err
}

func (g *GormBackend) InsertHistory(ctx context.Context, roomID string, e models.HistoryEntry) error {
	return g.db.WithContext(ctx).Create(&historyRow{EntryID: e.ID, RoomID: roomID, CreatedMs: e.Timestamp, Entry: e}).Error
}

func (g *GormBackend) ListHistory(ctx context.Context, roomID string) ([]models.HistoryEntry, error) {
	var rows []historyRow
	if err := g.newestFirst(ctx, roomID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.HistoryEntry, len(rows))
	for i, r := range rows {
		out[i] = r.Entry
	}
	return out, nil
}

func (g *GormBackend) UpdateHistory(ctx context.Context, roomID, entryID string, a models.HistoryAttachment) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row historyRow
		err := tx.Where("room_id = ? AND entry_id = ?", roomID, entryID).Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if a.CandidateCode != nil {
			row.Entry.CandidateCode = a.CandidateCode
		}
		if a.AIFeedback != nil {
			row.Entry.AIFeedback = a.AIFeedback
		}
		return tx.Model(&historyRow{}).Where("seq = ?", row.Seq).Select("Entry").Updates(&row).Error
	})
}

func (g *GormBackend) InsertSent(ctx context.Context, roomID string, q models.SentQuestion) error {
	return g.db.WithContext(ctx).Create(&sentRow{EntryID: q.ID, RoomID: roomID, CreatedMs: q.Timestamp, Entry: q}).Error
}

func (g *GormBackend) ListSent(ctx context.Context, roomID string) ([]models.SentQuestion, error) {
	var rows []sentRow
	if err := g.newestFirst(ctx, roomID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.SentQuestion, len(rows))
	for i, r := range rows {
		out[i] = r.Entry
	}
	return out, nil
}

func (g *GormBackend) InsertTimeline(ctx context.Context, roomID string, e models.QuestionTimelineEntry) error {
	return g.db.WithContext(ctx).Create(&timelineRow{
		EntryID: e.ID, RoomID: roomID, CreatedMs: e.Timestamp, Status: string(e.Status), Entry: e,
	}).Error
}

func (g *GormBackend) ListTimeline(ctx context.Context, roomID string) ([]models.QuestionTimelineEntry, error) {
	var rows []timelineRow
	if err := g.newestFirst(ctx, roomID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.QuestionTimelineEntry, len(rows))
	for i, r := range rows {
		out[i] = r.Entry
	}
	return out, nil
}

// TransitionTimeline uses the status column as the compare-and-set guard.
func (g *GormBackend) TransitionTimeline(ctx context.Context, roomID, entryID string, t models.TimelineTransition) (models.QuestionTimelineEntry, error) {
	db := g.db.WithContext(ctx)
	var row timelineRow
	err := db.Where("room_id = ? AND entry_id = ?", roomID, entryID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.QuestionTimelineEntry{}, ErrNotFound
	}
	if err != nil {
		return models.QuestionTimelineEntry{}, err
	}
	if row.Status != string(t.From) {
		return models.QuestionTimelineEntry{}, ErrConflict
	}
	t.Apply(&row.Entry)
	row.Status = string(t.To)
	res := db.Model(&timelineRow{}).
		Where("seq = ? AND status = ?", row.Seq, string(t.From)).
		Select("Status", "Entry").
		Updates(&row)
	if res.Error != nil {
		return models.QuestionTimelineEntry{}, res.Error
	}
	if res.RowsAffected == 0 {
		return models.QuestionTimelineEntry{}, ErrConflict
	}
	return row.Entry, nil
}

func (g *GormBackend) newestFirst(ctx context.Context, roomID string) *gorm.DB {
	return g.db.WithContext(ctx).Where("room_id = ?", roomID).Order("created_ms DESC").Order("seq DESC")
}

func (g *GormBackend) Ping(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (g *GormBackend) Close(context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
