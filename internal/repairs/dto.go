package repairs

import (
	"strings"
	"time"

	"github.com/angelmondragon/repairhub-backend/pkg/db/models"
	"github.com/angelmondragon/repairhub-backend/pkg/enums"
	"github.com/angelmondragon/repairhub-backend/pkg/pagination"
	"github.com/google/uuid"
)

// CreateOrderInput is the intake form filled in at a branch counter.
type CreateOrderInput struct {
	CustomerName       string     `json:"customer_name" validate:"required,max=200"`
	CustomerContact    string     `json:"customer_contact" validate:"required,max=100"`
	CustomerEmail      *string    `json:"customer_email,omitempty" validate:"omitempty,email"`
	DeviceModel        string     `json:"device_model" validate:"required,max=200"`
	IMEI               *string    `json:"imei,omitempty" validate:"omitempty,max=64"`
	ProblemDescription string     `json:"problem_description" validate:"required"`
	BranchID           *uuid.UUID `json:"branch_id,omitempty"`
}

func (in *CreateOrderInput) normalize() {
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.CustomerContact = strings.TrimSpace(in.CustomerContact)
	in.DeviceModel = strings.TrimSpace(in.DeviceModel)
	in.ProblemDescription = strings.TrimSpace(in.ProblemDescription)
	in.CustomerEmail = trimOptional(in.CustomerEmail)
	in.IMEI = trimOptional(in.IMEI)
}

func trimOptional(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// ListFilters narrows the order listing.
type ListFilters struct {
	Status       *enums.RepairOrderStatus
	BranchID     *uuid.UUID
	TechnicianID *uuid.UUID
}

// OrderView is the API representation of a repair order.
type OrderView struct {
	ID                 uuid.UUID               `json:"id"`
	OrderNo            string                  `json:"order_no"`
	CustomerName       string                  `json:"customer_name"`
	CustomerContact    string                  `json:"customer_contact"`
	CustomerEmail      *string                 `json:"customer_email,omitempty"`
	DeviceModel        string                  `json:"device_model"`
	IMEI               *string                 `json:"imei,omitempty"`
	ProblemDescription string                  `json:"problem_description"`
	BranchID           uuid.UUID               `json:"branch_id"`
	TechnicianID       *uuid.UUID              `json:"technician_id,omitempty"`
	Status             enums.RepairOrderStatus `json:"status"`
	Version            int64                   `json:"version"`
	CreatedAt          time.Time               `json:"created_at"`
	UpdatedAt          time.Time               `json:"updated_at"`
}

// HistoryEntryView is one status history entry.
type HistoryEntryView struct {
	Seq          int64                    `json:"seq"`
	FromStatus   *enums.RepairOrderStatus `json:"from_status"`
	ToStatus     enums.RepairOrderStatus  `json:"to_status"`
	Remark       *string                  `json:"remark,omitempty"`
	UserID       uuid.UUID                `json:"user_id"`
	IsScanAction bool                     `json:"is_scan_action"`
	BatchID      *uuid.UUID               `json:"batch_id,omitempty"`
	CreatedAt    time.Time                `json:"created_at"`
}

// OrderDetail is an order with its full history, oldest first.
type OrderDetail struct {
	OrderView
	History []HistoryEntryView `json:"history"`
}

// OrderPage is a page of the order listing.
type OrderPage = pagination.Page[OrderView]

// NewOrderView maps a model to its API view.
func NewOrderView(m *models.RepairOrder) *OrderView {
	if m == nil {
		return nil
	}
	return &OrderView{
		ID:                 m.ID,
		OrderNo:            m.OrderNo,
		CustomerName:       m.CustomerName,
		CustomerContact:    m.CustomerContact,
		CustomerEmail:      m.CustomerEmail,
		DeviceModel:        m.DeviceModel,
		IMEI:               m.IMEI,
		ProblemDescription: m.ProblemDescription,
		BranchID:           m.BranchID,
		TechnicianID:       m.TechnicianID,
		Status:             m.Status,
		Version:            m.Version,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func newHistoryViews(entries []models.StatusHistoryEntry) []HistoryEntryView {
	out := make([]HistoryEntryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryEntryView{
			Seq:          e.Seq,
			FromStatus:   e.FromStatus,
			ToStatus:     e.ToStatus,
			Remark:       e.Remark,
			UserID:       e.UserID,
			IsScanAction: e.IsScanAction,
			BatchID:      e.BatchID,
			CreatedAt:    e.CreatedAt,
		})
	}
	return out
}
