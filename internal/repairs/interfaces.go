package repairs

import (
	"context"

	"github.com/angelmondragon/repairhub-backend/pkg/db/models"
	"github.com/angelmondragon/repairhub-backend/pkg/enums"
	"github.com/angelmondragon/repairhub-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines persistence operations for repair orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.RepairOrder) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.RepairOrder, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.RepairOrder, error)
	FindManyForUpdate(ctx context.Context, ids []uuid.UUID) ([]models.RepairOrder, error)
	// CompareAndSetStatus applies updates only while the row still holds the
	// expected status and version. It returns the number of rows changed.
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected enums.RepairOrderStatus, version int64, updates map[string]any) (int64, error)
	List(ctx context.Context, filters ListFilters, limit int, cursor *pagination.Cursor) ([]models.RepairOrder, error)
}
