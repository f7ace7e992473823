package logistics

import (
	"context"
	"time"

	"github.com/angelmondragon/repairhub-backend/pkg/db/models"
	"github.com/angelmondragon/repairhub-backend/pkg/enums"
	"github.com/angelmondragon/repairhub-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines persistence operations for transport batches.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockOrders(ctx context.Context, ids []uuid.UUID) ([]models.RepairOrder, error)
	ClaimedOrderIDs(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error)
	CreateBatch(ctx context.Context, batch *models.TransportBatch) error
	CreateItems(ctx context.Context, items []models.BatchItem) error
	// Claim inserts a membership claim and reports false when the order is
	// already claimed by another open batch.
	Claim(ctx context.Context, claim models.BatchClaim) (bool, error)
	ReleaseClaims(ctx context.Context, batchID uuid.UUID) error
	FindByNo(ctx context.Context, batchNo string) (*models.TransportBatch, error)
	FindByNoForUpdate(ctx context.Context, batchNo string) (*models.TransportBatch, error)
	ListItems(ctx context.Context, batchID uuid.UUID) ([]models.BatchItem, error)
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected enums.BatchStatus, version int64, updates map[string]any) (int64, error)
	List(ctx context.Context, filters ListFilters, limit int, cursor *pagination.Cursor) ([]models.TransportBatch, error)
	// ListInTransitSince returns batches picked up before cutoff and not yet received.
	ListInTransitSince(ctx context.Context, cutoff time.Time, limit int) ([]models.TransportBatch, error)
}
