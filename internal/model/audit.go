package model

import (
	"time"

	"github.com/google/uuid"
)

// ValveLog is one append-only audit record for one changed field of one update.
type ValveLog struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ValveID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"valve_id"`
	UserID       *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // Nulled when the user is removed
	User         *User      `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"user,omitempty"`
	ChangedField string     `gorm:"type:varchar(100);not null" json:"changed_field"`
	OldValue     string     `gorm:"type:text;not null" json:"old_value"`
	NewValue     string     `gorm:"type:text;not null" json:"new_value"`
	Timestamp    time.Time  `gorm:"autoCreateTime;index" json:"timestamp"`
}
