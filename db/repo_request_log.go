package db

import (
	"Gin_postgres_redis_loan_approval/models"
	"context"
	"fmt"

	"github.com/google/uuid"
)

func (r *Repo) AppendRequestLog(ctx context.Context, l *models.RequestLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if err := r.DB.WithContext(ctx).Create(l).Error; err != nil {
		return fmt.Errorf("insert request log: %w", err)
	}
	return nil
}

func (r *Repo) ListRequestLogs(ctx context.Context, requestID string) ([]models.RequestLog, error) {
	var ls []models.RequestLog
	if err := r.DB.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("created_at ASC, id ASC").
		Find(&ls).Error; err != nil {
		return nil, err
	}
	return ls, nil
}
