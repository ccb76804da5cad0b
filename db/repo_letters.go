// db/repo_letters.go
package db

import (
	"Gin_postgres_redis_loan_approval/models"
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NextLetterSequence bumps the counter of period and returns the new value.
// Must run inside the approval transaction: the UPDATE takes the row lock,
// so concurrent approvals in one period serialize here.
func (r *Repo) NextLetterSequence(ctx context.Context, period string) (int, error) {
	db := r.DB.WithContext(ctx)

	// 首次使用该月份时建行
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.LetterSequence{Period: period, LastValue: 0}).Error; err != nil {
		return 0, fmt.Errorf("init letter sequence %s: %w", period, err)
	}
	if err := db.Model(&models.LetterSequence{}).
		Where("period = ?", period).
		Update("last_value", gorm.Expr("last_value + 1")).Error; err != nil {
		return 0, fmt.Errorf("bump letter sequence %s: %w", period, err)
	}
	var seq models.LetterSequence
	if err := db.First(&seq, "period = ?", period).Error; err != nil {
		return 0, fmt.Errorf("read letter sequence %s: %w", period, err)
	}
	return seq.LastValue, nil
}
