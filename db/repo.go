package db

import (
	"Gin_postgres_redis_loan_approval/models"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrUserDeactivated: the email belongs to a deactivated account.
var ErrUserDeactivated = errors.New("user deactivated")

type Repo struct{ DB *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{DB: db} }

// InTx runs fn against a Repo bound to one transaction.
// Inside fn only the passed repo may be used.
func (r *Repo) InTx(ctx context.Context, fn func(tx *Repo) error) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repo{DB: tx})
	})
}

// 统一把 gorm 的 not found 转成 models.ErrNotFound
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ErrNotFound
	}
	return err
}

// Users

func (r *Repo) TouchUserLogin(ctx context.Context, userID string) error {
	now := time.Now().UTC()
	return r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"last_login_at": now,
			"last_seen_at":  now,
			"login_count":   gorm.Expr("COALESCE(login_count, 0) + 1"),
		}).Error
}

func (r *Repo) TouchUserSeen(ctx context.Context, userID string) error {
	return r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("last_seen_at", time.Now().UTC()).Error
}

// 按 ID 查，带角色
func (r *Repo) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := r.DB.WithContext(ctx).Preload("Roles").First(&u, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *Repo) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := r.DB.WithContext(ctx).Preload("Roles").
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *Repo) FindUsersByIDs(ctx context.Context, ids []string) (map[string]models.User, error) {
	out := make(map[string]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var us []models.User
	if err := r.DB.WithContext(ctx).Where("id IN ?", ids).Find(&us).Error; err != nil {
		return nil, err
	}
	for _, u := range us {
		out[u.ID] = u
	}
	return out, nil
}

// FindOrCreateUser resolves an IdP identity by email; the display name and
// external id are refreshed on every login.
func (r *Repo) FindOrCreateUser(ctx context.Context, externalID, email, displayName string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, errors.New("identity without email")
	}
	if displayName == "" {
		displayName = email
	}

	var u models.User
	err := r.DB.WithContext(ctx).Unscoped().Where("email = ?", email).First(&u).Error
	if err == nil && u.DeletedAt.Valid {
		return nil, ErrUserDeactivated
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		u = models.User{ID: uuid.NewString(), ExternalID: externalID, Email: email, DisplayName: displayName}
		if err := r.DB.WithContext(ctx).Create(&u).Error; err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		return r.FindUserByID(ctx, u.ID)
	}
	if err != nil {
		return nil, err
	}
	if u.ExternalID != externalID || u.DisplayName != displayName {
		if err := r.DB.WithContext(ctx).Model(&u).
			Updates(map[string]any{"external_id": externalID, "display_name": displayName}).Error; err != nil {
			return nil, err
		}
	}
	return r.FindUserByID(ctx, u.ID)
}

// 列表（分页 + 关键词，匹配显示名/邮箱）
type ListUsersResult struct {
	Users []models.User `json:"users"`
	Total int64         `json:"total"`
}

func (r *Repo) ListUsers(ctx context.Context, q string, page, size int) (ListUsersResult, error) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}

	tx := r.DB.WithContext(ctx).Model(&models.User{})
	if q = strings.TrimSpace(q); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		tx = tx.Where("LOWER(email) LIKE ? OR LOWER(display_name) LIKE ?", like, like)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return ListUsersResult{}, err
	}

	var users []models.User
	if err := tx.
		Preload("Roles").
		Order("created_at DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&users).Error; err != nil {
		return ListUsersResult{}, err
	}
	return ListUsersResult{Users: users, Total: total}, nil
}

// DeactivateUser soft-deletes the user and drops their role assignments.
// Requests they filed stay as history.
func (r *Repo) DeactivateUser(ctx context.Context, id string) error {
	return r.InTx(ctx, func(tx *Repo) error {
		if err := tx.DB.Where("user_id = ?", id).Delete(&models.RoleAssignment{}).Error; err != nil {
			return err
		}
		res := tx.DB.Delete(&models.User{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.ErrNotFound
		}
		return nil
	})
}
