package users

import (
	"context"

	"github.com/angelmondragon/repairhub-backend/pkg/db/models"
	"github.com/angelmondragon/repairhub-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository exposes read access to the staff directory.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByID loads a user by their UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ListByRole returns active users holding role, optionally limited to a branch.
func (r *Repository) ListByRole(ctx context.Context, role enums.Role, branchID *uuid.UUID) ([]models.User, error) {
	q := r.db.WithContext(ctx).
		Where("role = ? AND is_active = ?", role, true)
	if branchID != nil {
		q = q.Where("branch_id = ?", *branchID)
	}
	var users []models.User
	if err := q.Order("full_name ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}
