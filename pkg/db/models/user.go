package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/repairhub-backend/pkg/enums"
)

// User is the read-side projection of the staff directory.
type User struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Email     string     `gorm:"type:text;not null;uniqueIndex"`
	FullName  string     `gorm:"column:full_name;not null"`
	Role      enums.Role `gorm:"column:role;type:user_role;not null"`
	BranchID  *uuid.UUID `gorm:"column:branch_id;type:uuid"`
	IsActive  bool       `gorm:"column:is_active;not null"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
