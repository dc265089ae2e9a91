package notes

import "time"

// Note is the persisted note record. A note belongs to exactly one
// owner for its entire lifetime; the composite index serves the
// owner-scoped listing ordered by update time.
type Note struct {
	ID        string    `gorm:"column:id;primaryKey;size:190;not null"`
	OwnerID   string    `gorm:"column:owner_id;size:190;not null;index:idx_notes_owner_updated,priority:1"`
	Title     string    `gorm:"column:title;size:512;not null"`
	Content   string    `gorm:"column:content;type:text;not null;default:''"`
	// Timestamps are driven by the service clock, not by GORM's
	// convention tracking, so tests can pin them.
	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;autoUpdateTime:false;index:idx_notes_owner_updated,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Note) TableName() string {
	return "notes"
}
