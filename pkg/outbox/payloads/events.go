package payloads

import (
	"time"

	"github.com/angelmondragon/repairhub-backend/pkg/enums"
	"github.com/google/uuid"
)

// RepairOrderCreatedEvent is emitted when a branch takes in a device.
type RepairOrderCreatedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNo     string    `json:"order_no"`
	BranchID    uuid.UUID `json:"branch_id"`
	DeviceModel string    `json:"device_model"`
}

// RepairStatusChangedEvent is emitted for every repair order transition,
// including ones cascaded from a batch receipt.
type RepairStatusChangedEvent struct {
	OrderID      uuid.UUID               `json:"order_id"`
	OrderNo      string                  `json:"order_no"`
	BranchID     uuid.UUID               `json:"branch_id"`
	From         enums.RepairOrderStatus `json:"from"`
	To           enums.RepairOrderStatus `json:"to"`
	TechnicianID *uuid.UUID              `json:"technician_id,omitempty"`
	Remark       *string                 `json:"remark,omitempty"`
	IsScanAction bool                    `json:"is_scan_action"`
	BatchNo      *string                 `json:"batch_no,omitempty"`
}

// BatchCreatedEvent is emitted when staff consolidate orders into a batch.
type BatchCreatedEvent struct {
	BatchID   uuid.UUID            `json:"batch_id"`
	BatchNo   string               `json:"batch_no"`
	Direction enums.BatchDirection `json:"direction"`
	OrderIDs  []uuid.UUID          `json:"order_ids"`
}

// BatchStatusChangedEvent is emitted on pickup and receipt.
type BatchStatusChangedEvent struct {
	BatchID    uuid.UUID            `json:"batch_id"`
	BatchNo    string               `json:"batch_no"`
	Direction  enums.BatchDirection `json:"direction"`
	From       enums.BatchStatus    `json:"from"`
	To         enums.BatchStatus    `json:"to"`
	OccurredAt time.Time            `json:"occurred_at"`
}
