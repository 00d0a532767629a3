// Package services holds the appointment lifecycle, notification and
// prescription logic behind the HTTP handlers.
package services

import (
	"context"

	"telemed-server/internal/apperr"
	"telemed-server/internal/models"

	"gorm.io/gorm"
)

// Principal is the authenticated actor making a request.
type Principal struct {
	ID     string
	Role   models.Role
	Status models.UserStatus
}

// IsAdmin reports whether the principal is an admin.
func (p Principal) IsAdmin() bool {
	return p.Role == models.RoleAdmin
}

// ActiveDoctor reports whether the principal is a doctor allowed to act.
func (p Principal) ActiveDoctor() bool {
	return p.Role == models.RoleDoctor && p.Status == models.UserStatusActive
}

func requirePrincipal(p Principal) error {
	if p.ID == "" || !p.Role.Valid() {
		return apperr.Unauthenticated("authentication required")
	}
	return nil
}

// requireUser loads a user by id and, when role is set, checks the role.
func requireUser(ctx context.Context, db *gorm.DB, id string, role models.Role) (*models.User, error) {
	if id == "" {
		return nil, apperr.InvalidInput("user id is required")
	}
	var user models.User
	query := db.WithContext(ctx).Where("id = ?", id)
	if role != "" {
		query = query.Where("role = ?", role)
	}
	if err := query.First(&user).Error; err != nil {
		if role != "" {
			return nil, apperr.FromStore(err, string(role)+" not found")
		}
		return nil, apperr.FromStore(err, "user not found")
	}
	return &user, nil
}
