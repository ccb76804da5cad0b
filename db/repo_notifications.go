// db/repo_notifications.go
package db

import (
	"Gin_postgres_redis_loan_approval/models"
	"context"
	"time"

	"github.com/google/uuid"
)

func (r *Repo) CreateNotifications(ctx context.Context, ns []models.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	for i := range ns {
		if ns[i].ID == "" {
			ns[i].ID = uuid.NewString()
		}
	}
	return r.DB.WithContext(ctx).Create(&ns).Error
}

func (r *Repo) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := r.DB.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("read_at IS NULL")
	}
	var ns []models.Notification
	err := q.Order("created_at DESC").Limit(limit).Find(&ns).Error
	return ns, err
}

// MarkNotificationRead 只能标记自己的通知
func (r *Repo) MarkNotificationRead(ctx context.Context, userID, id string) error {
	res := r.DB.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Where("read_at IS NULL").
		Update("read_at", time.Now().UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// 已读或不存在，区分一下
		var n int64
		if err := r.DB.WithContext(ctx).Model(&models.Notification{}).
			Where("id = ? AND user_id = ?", id, userID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return models.ErrNotFound
		}
	}
	return nil
}
