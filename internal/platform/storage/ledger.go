package storage

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/radubobirnac/vocallocal-sub003/internal/platform/errors"
)

// Ledger persists usage entries and answers rolling-window queries.
type Ledger struct {
	db *gorm.DB
}

// NewLedger creates a ledger repository over the given database handle.
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// RecordUsage appends one ledger entry.
func (l *Ledger) RecordUsage(ctx context.Context, record *UsageRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	if err := l.db.WithContext(ctx).Create(record).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "ledger.record_usage", "failed to record usage", err)
	}
	return nil
}

// RollingUsage sums the credits a user consumed for a service inside the
// trailing window.
func (l *Ledger) RollingUsage(ctx context.Context, userID, service string, window time.Duration) (float64, error) {
	var total float64
	since := time.Now().Add(-window)
	err := l.db.WithContext(ctx).
		Model(&UsageRecord{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id = ? AND service = ? AND created_at >= ?", userID, service, since).
		Scan(&total).Error
	if err != nil {
		return 0, errors.Wrap(errors.KindStorage, "ledger.rolling_usage", "failed to query usage", err)
	}
	return total, nil
}

// ListByUser returns a user's ledger entries, newest first.
func (l *Ledger) ListByUser(ctx context.Context, userID string, limit int) ([]UsageRecord, error) {
	var records []UsageRecord
	q := l.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "ledger.list_by_user", "failed to list usage", err)
	}
	return records, nil
}
