package storage

import "time"

// UsageRecord is one billable ledger entry. Amounts are credits, kept
// fractional so repeated small requests are not systematically
// under-billed by rounding.
type UsageRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      string    `gorm:"index;not null" json:"user_id"`
	Service     string    `gorm:"index;not null" json:"service"`
	Amount      float64   `gorm:"not null" json:"amount"`
	Plan        string    `gorm:"not null" json:"plan"`
	Approximate bool      `gorm:"default:false" json:"approximate"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

func (UsageRecord) TableName() string {
	return "usage_records"
}
