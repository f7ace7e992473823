package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/repairhub-backend/pkg/enums"
)

// TransportBatch groups repair orders moved together between a branch and HQ.
type TransportBatch struct {
	ID         uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	BatchNo    string               `gorm:"column:batch_no;not null;uniqueIndex"`
	Direction  enums.BatchDirection `gorm:"column:direction;type:batch_direction;not null"`
	Status     enums.BatchStatus    `gorm:"column:status;type:batch_status;not null;index"`
	CreatorID  uuid.UUID            `gorm:"column:creator_id;type:uuid;not null"`
	PickedUpAt *time.Time           `gorm:"column:picked_up_at"`
	PickedUpBy *uuid.UUID           `gorm:"column:picked_up_by;type:uuid"`
	ReceivedAt *time.Time           `gorm:"column:received_at"`
	ReceivedBy *uuid.UUID           `gorm:"column:received_by;type:uuid"`
	Version    int64                `gorm:"column:version;not null;default:1"`
	CreatedAt  time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time            `gorm:"column:updated_at;autoUpdateTime"`
	Items      []BatchItem          `gorm:"foreignKey:BatchID;references:ID"`
}

func (b *TransportBatch) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// BatchItem snapshots a member order at the time the batch was created.
type BatchItem struct {
	ID               uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	BatchID          uuid.UUID               `gorm:"column:batch_id;type:uuid;not null;uniqueIndex:ux_batch_items_batch_order,priority:1"`
	OrderID          uuid.UUID               `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_batch_items_batch_order,priority:2;index"`
	Position         int                     `gorm:"column:position;not null"`
	OrderNo          string                  `gorm:"column:order_no;not null"`
	DeviceModel      string                  `gorm:"column:device_model;not null"`
	CustomerName     string                  `gorm:"column:customer_name;not null"`
	BranchID         uuid.UUID               `gorm:"column:branch_id;type:uuid;not null"`
	StatusAtCreation enums.RepairOrderStatus `gorm:"column:status_at_creation;type:repair_order_status;not null"`
	CreatedAt        time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (i *BatchItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// BatchClaim marks an order as held by an open batch. The primary key on
// order_id makes a second concurrent claim fail at the storage layer.
type BatchClaim struct {
	OrderID   uuid.UUID `gorm:"column:order_id;type:uuid;primaryKey"`
	BatchID   uuid.UUID `gorm:"column:batch_id;type:uuid;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
