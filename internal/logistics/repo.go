package logistics

import (
	"context"
	"time"

	"github.com/angelmondragon/repairhub-backend/pkg/db"
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

// NewRepository builds a transport batch repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) LockOrders(ctx context.Context, ids []uuid.UUID) ([]models.RepairOrder, error) {
	var orders []models.RepairOrder
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&orders).Error
	return orders, err
}

func (r *repository) ClaimedOrderIDs(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	var claimed []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.BatchClaim{}).
		Where("order_id IN ?", ids).
		Pluck("order_id", &claimed).Error
	return claimed, err
}

func (r *repository) CreateBatch(ctx context.Context, batch *models.TransportBatch) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(batch).Error
}

func (r *repository) CreateItems(ctx context.Context, items []models.BatchItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) Claim(ctx context.Context, claim models.BatchClaim) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "order_id"}}, DoNothing: true}).
		Create(&claim)
	if res.Error != nil {
		if db.IsUniqueViolation(res.Error, "") {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ReleaseClaims(ctx context.Context, batchID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Delete(&models.BatchClaim{}).Error
}

func (r *repository) FindByNo(ctx context.Context, batchNo string) (*models.TransportBatch, error) {
	var batch models.TransportBatch
	if err := r.db.WithContext(ctx).First(&batch, "batch_no = ?", batchNo).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *repository) FindByNoForUpdate(ctx context.Context, batchNo string) (*models.TransportBatch, error) {
	var batch models.TransportBatch
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		First(&batch, "batch_no = ?", batchNo).Error
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *repository) ListItems(ctx context.Context, batchID uuid.UUID) ([]models.BatchItem, error) {
	var items []models.BatchItem
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("position ASC").
		Find(&items).Error
	return items, err
}

func (r *repository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected enums.BatchStatus, version int64, updates map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.TransportBatch{}).
		Where("id = ? AND status = ? AND version = ?", id, expected, version).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *repository) List(ctx context.Context, filters ListFilters, limit int, cursor *pagination.Cursor) ([]models.TransportBatch, error) {
	q := r.db.WithContext(ctx).Model(&models.TransportBatch{})
	if filters.Status != nil {
		q = q.Where("status = ?", *filters.Status)
	}
	if filters.Direction != nil {
		q = q.Where("direction = ?", *filters.Direction)
	}
	var batches []models.TransportBatch
	err := pagination.Keyset(q, cursor).Limit(limit).Find(&batches).Error
	return batches, err
}

func (r *repository) ListInTransitSince(ctx context.Context, cutoff time.Time, limit int) ([]models.TransportBatch, error) {
	var batches []models.TransportBatch
	err := r.db.WithContext(ctx).
		Where("status = ? AND picked_up_at < ?", enums.BatchStatusInTransit, cutoff.UTC()).
		Order("picked_up_at ASC").
		Limit(limit).
		Find(&batches).Error
	return batches, err
}
