// db/repo_roles.go
package db

import (
	"Gin_postgres_redis_loan_approval/models"
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"
)

func (r *Repo) ListRoles(ctx context.Context, userID string) ([]models.RoleAssignment, error) {
	var rs []models.RoleAssignment
	q := r.DB.WithContext(ctx).Order("created_at ASC")
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	if err := q.Find(&rs).Error; err != nil {
		return nil, err
	}
	return rs, nil
}

// AssignRole is idempotent on (user, role, department).
func (r *Repo) AssignRole(ctx context.Context, userID string, role models.Role, departmentID *string) (*models.RoleAssignment, error) {
	var existing models.RoleAssignment
	q := r.DB.WithContext(ctx).Where("user_id = ? AND role = ?", userID, role)
	if departmentID == nil {
		q = q.Where("department_id IS NULL")
	} else {
		q = q.Where("department_id = ?", *departmentID)
	}
	if err := q.Limit(1).Find(&existing).Error; err != nil {
		return nil, err
	}
	if existing.ID != "" {
		return &existing, nil
	}

	ra := &models.RoleAssignment{ID: uuid.NewString(), UserID: userID, Role: role, DepartmentID: departmentID}
	if err := r.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(ra).Error; err != nil {
		return nil, fmt.Errorf("assign role: %w", err)
	}
	return ra, nil
}

func (r *Repo) RevokeRole(ctx context.Context, id string) error {
	res := r.DB.WithContext(ctx).Delete(&models.RoleAssignment{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// UsersWithRole lists user ids holding role; for owners departmentIDs
// narrows to those departments.
func (r *Repo) UsersWithRole(ctx context.Context, role models.Role, departmentIDs []string) ([]string, error) {
	q := r.DB.WithContext(ctx).Model(&models.RoleAssignment{}).
		Joins("JOIN "+models.UserTable+" u ON u.id = "+models.RoleTable+".user_id AND u.deleted_at IS NULL").
		Where(models.RoleTable+".role = ?", role)
	if len(departmentIDs) > 0 {
		q = q.Where(models.RoleTable+".department_id IN ?", departmentIDs)
	}
	var ids []string
	if err := q.Distinct().Pluck(models.RoleTable+".user_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
