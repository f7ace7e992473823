// Package audit is the append-only status history of repair orders.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/repairhub-backend/pkg/db/models"
	"github.com/angelmondragon/repairhub-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Ledger records transitions inside the caller's transaction and reads them back
// in order.
type Ledger interface {
	Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.StatusHistoryEntry, error)
	History(ctx context.Context, orderID uuid.UUID) ([]models.StatusHistoryEntry, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

// RecordInput captures one transition. From is nil for the intake entry.
type RecordInput struct {
	OrderID      uuid.UUID
	From         *enums.RepairOrderStatus
	To           enums.RepairOrderStatus
	Remark       string
	UserID       uuid.UUID
	IsScanAction bool
	BatchID      *uuid.UUID
	At           time.Time
}

// NewService wires a ledger with the provided repository.
func NewService(repo Repository) (Ledger, error) {
	if repo == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func (s *service) Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.StatusHistoryEntry, error) {
	if input.OrderID == uuid.Nil {
		return nil, fmt.Errorf("order id is required")
	}
	if input.UserID == uuid.Nil {
		return nil, fmt.Errorf("user id is required")
	}
	if !input.To.IsValid() {
		return nil, fmt.Errorf("invalid status %q", input.To)
	}
	if input.From != nil && !input.From.IsValid() {
		return nil, fmt.Errorf("invalid status %q", *input.From)
	}

	repo := s.repo.WithTx(tx)

	at := input.At
	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC()

	// created_at never goes backwards for an order, even across clock skew.
	last, err := repo.Last(ctx, input.OrderID)
	if err != nil {
		return nil, fmt.Errorf("read last history entry: %w", err)
	}
	if last != nil && at.Before(last.CreatedAt) {
		at = last.CreatedAt.UTC()
	}

	entry := &models.StatusHistoryEntry{
		OrderID:      input.OrderID,
		FromStatus:   input.From,
		ToStatus:     input.To,
		UserID:       input.UserID,
		IsScanAction: input.IsScanAction,
		BatchID:      input.BatchID,
		CreatedAt:    at,
	}
	if remark := strings.TrimSpace(input.Remark); remark != "" {
		entry.Remark = &remark
	}

	if err := repo.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("append history entry: %w", err)
	}
	return entry, nil
}

func (s *service) History(ctx context.Context, orderID uuid.UUID) ([]models.StatusHistoryEntry, error) {
	if orderID == uuid.Nil {
		return nil, fmt.Errorf("order id is required")
	}
	return s.repo.ListByOrderID(ctx, orderID)
}
