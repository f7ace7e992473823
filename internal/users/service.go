// Package users is the read-only directory used to validate assignment targets.
package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/repairhub-backend/pkg/db/models"
	"github.com/angelmondragon/repairhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/repairhub-backend/pkg/errors"
)

type repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListByRole(ctx context.Context, role enums.Role, branchID *uuid.UUID) ([]models.User, error)
}

// Directory resolves users for the state machines.
type Directory interface {
	ResolveTechnician(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListTechnicians(ctx context.Context) ([]UserDTO, error)
}

type directory struct {
	repo repository
}

func NewDirectory(repo repository) (Directory, error) {
	if repo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	return &directory{repo: repo}, nil
}

// ResolveTechnician returns the user when it exists, is active and holds the
// TECHNICIAN role.
func (d *directory) ResolveTechnician(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "technician id is required")
	}
	user, err := d.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "technician not found").
				WithDetails(map[string]any{"technician_id": id.String()})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load technician")
	}
	if user.Role != enums.RoleTechnician {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "assignment target is not a technician").
			WithDetails(map[string]any{"technician_id": id.String(), "role": string(user.Role)})
	}
	if !user.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "technician is inactive").
			WithDetails(map[string]any{"technician_id": id.String()})
	}
	return user, nil
}

func (d *directory) ListTechnicians(ctx context.Context) ([]UserDTO, error) {
	rows, err := d.repo.ListByRole(ctx, enums.RoleTechnician, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list technicians")
	}
	out := make([]UserDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out, nil
}
