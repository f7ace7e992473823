package repairs

import (
	"context"
	"sort"

	"github.com/angelmondragon/repairhub-backend/pkg/db/models"
	"github.com/angelmondragon/repairhub-backend/pkg/enums"
	"github.com/angelmondragon/repairhub-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a repair order repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.RepairOrder) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.RepairOrder, error) {
	var order models.RepairOrder
	if err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.RepairOrder, error) {
	var order models.RepairOrder
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindManyForUpdate locks rows in id order so concurrent cascades cannot deadlock.
func (r *repository) FindManyForUpdate(ctx context.Context, ids []uuid.UUID) ([]models.RepairOrder, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	sorted := make([]uuid.UUID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })

	var orders []models.RepairOrder
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		Where("id IN ?", sorted).
		Order("id ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected enums.RepairOrderStatus, version int64, updates map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.RepairOrder{}).
		Where("id = ? AND status = ? AND version = ?", id, expected, version).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *repository) List(ctx context.Context, filters ListFilters, limit int, cursor *pagination.Cursor) ([]models.RepairOrder, error) {
	q := r.db.WithContext(ctx).Model(&models.RepairOrder{})
	if filters.Status != nil {
		q = q.Where("status = ?", *filters.Status)
	}
	if filters.BranchID != nil {
		q = q.Where("branch_id = ?", *filters.BranchID)
	}
	if filters.TechnicianID != nil {
		q = q.Where("technician_id = ?", *filters.TechnicianID)
	}
	var orders []models.RepairOrder
	err := pagination.Keyset(q, cursor).Limit(limit).Find(&orders).Error
	return orders, err
}
