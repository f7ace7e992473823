package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/repairhub-backend/pkg/enums"
)

// StatusHistoryEntry is one immutable row of a repair order's audit trail.
// FromStatus is nil for the intake entry.
type StatusHistoryEntry struct {
	Seq          int64                    `gorm:"column:seq;primaryKey;autoIncrement"`
	OrderID      uuid.UUID                `gorm:"column:order_id;type:uuid;not null;index:idx_status_history_order_created,priority:1"`
	FromStatus   *enums.RepairOrderStatus `gorm:"column:from_status;type:repair_order_status"`
	ToStatus     enums.RepairOrderStatus  `gorm:"column:to_status;type:repair_order_status;not null"`
	Remark       *string                  `gorm:"column:remark"`
	UserID       uuid.UUID                `gorm:"column:user_id;type:uuid;not null"`
	IsScanAction bool                     `gorm:"column:is_scan_action;not null;default:false"`
	BatchID      *uuid.UUID               `gorm:"column:batch_id;type:uuid"`
	CreatedAt    time.Time                `gorm:"column:created_at;not null;index:idx_status_history_order_created,priority:2"`
}

func (StatusHistoryEntry) TableName() string {
	return "status_history"
}
