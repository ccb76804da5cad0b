// db/repo_requests.go
package db

import (
	"Gin_postgres_redis_loan_approval/models"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrStatusChanged: the conditional update found the row in another status.
var ErrStatusChanged = errors.New("request status changed concurrently")

// RequestFilter narrows a request listing. Zero value lists everything.
type RequestFilter struct {
	BorrowerID string
	// DepartmentIDs: requests with at least one line in these departments.
	DepartmentIDs []string
	Statuses      []models.RequestStatus
	// 在 BorrowerID 和 DepartmentIDs 都设置时取并集
	Union bool
	Limit int
}

// CreateRequest inserts the request and its lines in one transaction.
func (r *Repo) CreateRequest(ctx context.Context, br *models.BorrowRequest) error {
	if br.ID == "" {
		br.ID = uuid.NewString()
	}
	for i := range br.Items {
		if br.Items[i].ID == "" {
			br.Items[i].ID = uuid.NewString()
		}
		br.Items[i].RequestID = br.ID
	}
	lines := br.Items
	return r.InTx(ctx, func(tx *Repo) error {
		if err := tx.DB.Omit(clause.Associations).Create(br).Error; err != nil {
			return fmt.Errorf("insert request: %w", err)
		}
		if len(lines) == 0 {
			return nil
		}
		if err := tx.DB.Omit(clause.Associations).Create(&lines).Error; err != nil {
			return fmt.Errorf("insert request items: %w", err)
		}
		br.Items = lines
		return nil
	})
}

func (r *Repo) preloadRequest(q *gorm.DB) *gorm.DB {
	return q.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("item_id ASC") }).
		Preload("Items.Item").
		Preload("Items.Item.Department").
		Preload("Borrower")
}

func (r *Repo) GetRequest(ctx context.Context, id string) (*models.BorrowRequest, error) {
	var br models.BorrowRequest
	if err := r.preloadRequest(r.DB.WithContext(ctx)).First(&br, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &br, nil
}

// LockRequest is GetRequest holding the request row lock until commit.
// Lock order is request row first, then item rows.
func (r *Repo) LockRequest(ctx context.Context, id string) (*models.BorrowRequest, error) {
	var br models.BorrowRequest
	if err := r.preloadRequest(r.DB.WithContext(ctx)).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&br, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &br, nil
}

func (r *Repo) ListRequests(ctx context.Context, f RequestFilter) ([]models.BorrowRequest, error) {
	q := r.preloadRequest(r.DB.WithContext(ctx)).Order("created_at DESC")
	q = r.applyFilter(q, f)
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var out []models.BorrowRequest
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) applyFilter(q *gorm.DB, f RequestFilter) *gorm.DB {
	inDepts := func() *gorm.DB {
		return r.DB.Table(models.RequestItemTable+" ri").
			Select("ri.request_id").
			Joins("JOIN "+models.ItemTable+" i ON i.id = ri.item_id").
			Where("i.department_id IN ?", f.DepartmentIDs)
	}
	switch {
	case f.Union && f.BorrowerID != "" && len(f.DepartmentIDs) > 0:
		q = q.Where("borrower_id = ? OR id IN (?)", f.BorrowerID, inDepts())
	default:
		if f.BorrowerID != "" {
			q = q.Where("borrower_id = ?", f.BorrowerID)
		}
		if len(f.DepartmentIDs) > 0 {
			q = q.Where("id IN (?)", inDepts())
		}
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	return q
}

// CountByStatus is the dashboard aggregate over the same filter.
func (r *Repo) CountByStatus(ctx context.Context, f RequestFilter) (map[models.RequestStatus]int64, error) {
	type row struct {
		Status models.RequestStatus
		N      int64
	}
	q := r.DB.WithContext(ctx).Model(&models.BorrowRequest{}).
		Select("status, COUNT(*) AS n").
		Group("status")
	q = r.applyFilter(q, f)
	var rows []row
	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[models.RequestStatus]int64, len(rows))
	for _, rw := range rows {
		out[rw.Status] = rw.N
	}
	return out, nil
}

// TransitionRequest is the conditional status write:
// UPDATE ... SET status = to, fields... WHERE id = ? AND status = from.
func (r *Repo) TransitionRequest(ctx context.Context, id string, from, to models.RequestStatus, fields map[string]any) error {
	upd := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		upd[k] = v
	}
	upd["status"] = to
	res := r.DB.WithContext(ctx).Model(&models.BorrowRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(upd)
	if res.Error != nil {
		return fmt.Errorf("transition %s -> %s: %w", from, to, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStatusChanged
	}
	return nil
}

// CountRequestLinesForItem backs the item delete guard.
func (r *Repo) CountRequestLinesForItem(ctx context.Context, itemID string) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.RequestItem{}).Where("item_id = ?", itemID).Count(&n).Error
	return n, err
}
