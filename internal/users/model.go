package users

import "time"

const activeSessionSlot = "active"

// User is the persisted identity record. Users are created through
// registration and never updated or deleted afterwards.
type User struct {
	ID           string    `gorm:"column:id;primaryKey;size:190;not null"`
	Username     string    `gorm:"column:username;size:190;not null;uniqueIndex:idx_users_username"`
	PasswordHash []byte    `gorm:"column:password_hash;not null"`
	PasswordSalt []byte    `gorm:"column:password_salt;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName exposes the table backing user records.
func (User) TableName() string {
	return "users"
}

// SessionMarker records the last user who authenticated, so the session
// can be restored deterministically at the next process start. A single
// row occupies the "active" slot; logout removes it.
type SessionMarker struct {
	Slot      string    `gorm:"column:slot;primaryKey;size:32;not null"`
	UserID    string    `gorm:"column:user_id;size:190;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing session markers.
func (SessionMarker) TableName() string {
	return "session_markers"
}
