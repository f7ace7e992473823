package users

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/repairhub-backend/pkg/db/models"
	"github.com/angelmondragon/repairhub-backend/pkg/enums"
)

// UserDTO is the transport shape of a directory entry.
type UserDTO struct {
	ID       uuid.UUID  `json:"id"`
	Email    string     `json:"email"`
	FullName string     `json:"full_name"`
	Role     enums.Role `json:"role"`
	BranchID *uuid.UUID `json:"branch_id,omitempty"`
	IsActive bool       `json:"is_active"`
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:       u.ID,
		Email:    u.Email,
		FullName: u.FullName,
		Role:     u.Role,
		BranchID: u.BranchID,
		IsActive: u.IsActive,
	}
}
