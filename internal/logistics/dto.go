package logistics

import (
	"time"

	"github.com/angelmondragon/repairhub-backend/pkg/db/models"
	"github.com/angelmondragon/repairhub-backend/pkg/enums"
	"github.com/angelmondragon/repairhub-backend/pkg/pagination"
	"github.com/google/uuid"
)

// CreateBatchInput lists the orders to consolidate and the leg they travel.
type CreateBatchInput struct {
	OrderIDs  []uuid.UUID          `json:"order_ids" validate:"required,min=1,dive,required"`
	Direction enums.BatchDirection `json:"direction" validate:"required,oneof=TO_HQ TO_BRANCH"`
}

// ListFilters narrows the batch listing.
type ListFilters struct {
	Status    *enums.BatchStatus
	Direction *enums.BatchDirection
}

// BatchItemView is a member order snapshot.
type BatchItemView struct {
	OrderID          uuid.UUID               `json:"order_id"`
	Position         int                     `json:"position"`
	OrderNo          string                  `json:"order_no"`
	DeviceModel      string                  `json:"device_model"`
	CustomerName     string                  `json:"customer_name"`
	BranchID         uuid.UUID               `json:"branch_id"`
	StatusAtCreation enums.RepairOrderStatus `json:"status_at_creation"`
}

// BatchView is the API representation of a transport batch.
type BatchView struct {
	ID         uuid.UUID            `json:"id"`
	BatchNo    string               `json:"batch_no"`
	Direction  enums.BatchDirection `json:"direction"`
	Status     enums.BatchStatus    `json:"status"`
	CreatorID  uuid.UUID            `json:"creator_id"`
	PickedUpAt *time.Time           `json:"picked_up_at,omitempty"`
	PickedUpBy *uuid.UUID           `json:"picked_up_by,omitempty"`
	ReceivedAt *time.Time           `json:"received_at,omitempty"`
	ReceivedBy *uuid.UUID           `json:"received_by,omitempty"`
	Version    int64                `json:"version"`
	CreatedAt  time.Time            `json:"created_at"`
	Items      []BatchItemView      `json:"items,omitempty"`
}

// BatchPage is a page of the batch listing.
type BatchPage = pagination.Page[BatchView]

// NewBatchView maps a batch and its items to the API view.
func NewBatchView(b *models.TransportBatch, items []models.BatchItem) *BatchView {
	if b == nil {
		return nil
	}
	view := &BatchView{
		ID:         b.ID,
		BatchNo:    b.BatchNo,
		Direction:  b.Direction,
		Status:     b.Status,
		CreatorID:  b.CreatorID,
		PickedUpAt: b.PickedUpAt,
		PickedUpBy: b.PickedUpBy,
		ReceivedAt: b.ReceivedAt,
		ReceivedBy: b.ReceivedBy,
		Version:    b.Version,
		CreatedAt:  b.CreatedAt,
	}
	for _, item := range items {
		view.Items = append(view.Items, BatchItemView{
			OrderID:          item.OrderID,
			Position:         item.Position,
			OrderNo:          item.OrderNo,
			DeviceModel:      item.DeviceModel,
			CustomerName:     item.CustomerName,
			BranchID:         item.BranchID,
			StatusAtCreation: item.StatusAtCreation,
		})
	}
	return view
}
