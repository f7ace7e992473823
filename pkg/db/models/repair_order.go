package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/repairhub-backend/pkg/enums"
)

// RepairOrder is a device taken in at a branch and tracked through repair.
type RepairOrder struct {
	ID                 uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderNo            string                  `gorm:"column:order_no;not null;uniqueIndex"`
	CustomerName       string                  `gorm:"column:customer_name;not null"`
	CustomerContact    string                  `gorm:"column:customer_contact;not null"`
	CustomerEmail      *string                 `gorm:"column:customer_email"`
	DeviceModel        string                  `gorm:"column:device_model;not null"`
	IMEI               *string                 `gorm:"column:imei"`
	ProblemDescription string                  `gorm:"column:problem_description;not null"`
	BranchID           uuid.UUID               `gorm:"column:branch_id;type:uuid;not null;index"`
	TechnicianID       *uuid.UUID              `gorm:"column:technician_id;type:uuid;index"`
	Status             enums.RepairOrderStatus `gorm:"column:status;type:repair_order_status;not null;index"`
	Version            int64                   `gorm:"column:version;not null;default:1"`
	CreatedAt          time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *RepairOrder) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
