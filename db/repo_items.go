// db/repo_items.go
package db

import (
	"Gin_postgres_redis_loan_approval/apperr"
	"Gin_postgres_redis_loan_approval/models"
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"
)

// Departments / categories

func (r *Repo) ListDepartments(ctx context.Context) ([]models.Department, error) {
	var ds []models.Department
	err := r.DB.WithContext(ctx).Order("name ASC").Find(&ds).Error
	return ds, err
}

func (r *Repo) FindDepartmentByID(ctx context.Context, id string) (*models.Department, error) {
	var d models.Department
	if err := r.DB.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

func (r *Repo) CreateDepartment(ctx context.Context, d *models.Department) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return r.DB.WithContext(ctx).Create(d).Error
}

func (r *Repo) UpdateDepartment(ctx context.Context, id string, fields map[string]any) error {
	res := r.DB.WithContext(ctx).Model(&models.Department{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteDepartment refuses while items or owner assignments point at it.
func (r *Repo) DeleteDepartment(ctx context.Context, id string) error {
	return r.InTx(ctx, func(tx *Repo) error {
		var items, owners int64
		if err := tx.DB.Model(&models.Item{}).Where("department_id = ?", id).Count(&items).Error; err != nil {
			return err
		}
		if err := tx.DB.Model(&models.RoleAssignment{}).Where("department_id = ?", id).Count(&owners).Error; err != nil {
			return err
		}
		if items+owners > 0 {
			return &apperr.ReferentialIntegrityError{
				Entity:     "department",
				References: items + owners,
				Hint:       "move its items and owner roles first",
			}
		}
		res := tx.DB.Delete(&models.Department{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.ErrNotFound
		}
		return nil
	})
}

func (r *Repo) ListCategories(ctx context.Context) ([]models.Category, error) {
	var cs []models.Category
	err := r.DB.WithContext(ctx).Order("name ASC").Find(&cs).Error
	return cs, err
}

func (r *Repo) CreateCategory(ctx context.Context, c *models.Category) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return r.DB.WithContext(ctx).Create(c).Error
}

func (r *Repo) DeleteCategory(ctx context.Context, id string) error {
	return r.InTx(ctx, func(tx *Repo) error {
		var n int64
		if err := tx.DB.Model(&models.Item{}).Where("category_id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return &apperr.ReferentialIntegrityError{Entity: "category", References: n, Hint: "recategorise its items first"}
		}
		res := tx.DB.Delete(&models.Category{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.ErrNotFound
		}
		return nil
	})
}

// Items

type ItemFilter struct {
	Q            string // 模糊搜索：code/name
	DepartmentID string
	CategoryID   string
	Status       models.ItemStatus
}

func (r *Repo) CreateItem(ctx context.Context, it *models.Item) error {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if it.Status == "" {
		it.Status = models.ItemAvailable
	}
	return r.DB.WithContext(ctx).Create(it).Error
}

func (r *Repo) FindItemByID(ctx context.Context, id string) (*models.Item, error) {
	var it models.Item
	if err := r.DB.WithContext(ctx).Preload("Department").Preload("Category").
		First(&it, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &it, nil
}

func (r *Repo) FindItemsByIDs(ctx context.Context, ids []string) (map[string]models.Item, error) {
	out := make(map[string]models.Item, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var items []models.Item
	if err := r.DB.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, err
	}
	for _, it := range items {
		out[it.ID] = it
	}
	return out, nil
}

func (r *Repo) ListItems(ctx context.Context, f ItemFilter) ([]models.Item, error) {
	q := r.DB.WithContext(ctx).Preload("Department").Preload("Category").Order("name ASC")
	if s := strings.TrimSpace(f.Q); s != "" {
		pat := "%" + strings.ToLower(s) + "%"
		q = q.Where("LOWER(code) LIKE ? OR LOWER(name) LIKE ?", pat, pat)
	}
	if f.DepartmentID != "" {
		q = q.Where("department_id = ?", f.DepartmentID)
	}
	if f.CategoryID != "" {
		q = q.Where("category_id = ?", f.CategoryID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var items []models.Item
	err := q.Find(&items).Error
	return items, err
}

func (r *Repo) UpdateItem(ctx context.Context, id string, fields map[string]any) error {
	res := r.DB.WithContext(ctx).Model(&models.Item{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SetItemStatus only flips items whose current status is one of from.
func (r *Repo) SetItemStatus(ctx context.Context, ids []string, to models.ItemStatus, from ...models.ItemStatus) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q := r.DB.WithContext(ctx).Model(&models.Item{}).Where("id IN ?", ids)
	if len(from) > 0 {
		q = q.Where("status IN ?", from)
	}
	res := q.Update("status", to)
	return res.RowsAffected, res.Error
}

// DeleteItem is a hard delete, refused while any request line references it.
func (r *Repo) DeleteItem(ctx context.Context, id string) error {
	return r.InTx(ctx, func(tx *Repo) error {
		n, err := tx.CountRequestLinesForItem(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return &apperr.ReferentialIntegrityError{
				Entity:     "item",
				References: n,
				Hint:       "mark it maintenance, damaged or lost instead",
			}
		}
		res := tx.DB.Delete(&models.Item{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.ErrNotFound
		}
		return nil
	})
}

// LockItems 按 id 顺序加行锁，避免死锁
func (r *Repo) LockItems(ctx context.Context, ids []string) (map[string]models.Item, error) {
	out := make(map[string]models.Item, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var items []models.Item
	if err := r.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("lock items: %w", err)
	}
	for _, it := range items {
		out[it.ID] = it
	}
	return out, nil
}

// CommittedQuantities sums, per item, the quantity held by approved/active
// requests. excludeRequestID leaves one request out of the sum.
func (r *Repo) CommittedQuantities(ctx context.Context, itemIDs []string, excludeRequestID string) (map[string]int, error) {
	type row struct {
		ItemID string
		Qty    int
	}
	q := r.DB.WithContext(ctx).
		Table(models.RequestItemTable+" ri").
		Select("ri.item_id AS item_id, COALESCE(SUM(ri.quantity), 0) AS qty").
		Joins("JOIN "+models.RequestTable+" br ON br.id = ri.request_id").
		Where("br.status IN ?", models.CommittedStatuses).
		Group("ri.item_id")
	if len(itemIDs) > 0 {
		q = q.Where("ri.item_id IN ?", itemIDs)
	}
	if excludeRequestID != "" {
		q = q.Where("br.id <> ?", excludeRequestID)
	}
	var rows []row
	if err := q.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("committed quantities: %w", err)
	}
	out := make(map[string]int, len(rows))
	for _, rw := range rows {
		out[rw.ItemID] = rw.Qty
	}
	return out, nil
}

// ItemsHeldByActive returns, of ids, the items still on a line of an
// active request other than excludeRequestID.
func (r *Repo) ItemsHeldByActive(ctx context.Context, ids []string, excludeRequestID string) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(ids) == 0 {
		return out, nil
	}
	q := r.DB.WithContext(ctx).
		Table(models.RequestItemTable+" ri").
		Joins("JOIN "+models.RequestTable+" br ON br.id = ri.request_id").
		Where("br.status = ? AND ri.item_id IN ?", models.StatusActive, ids)
	if excludeRequestID != "" {
		q = q.Where("br.id <> ?", excludeRequestID)
	}
	var held []string
	if err := q.Distinct().Pluck("ri.item_id", &held).Error; err != nil {
		return nil, err
	}
	for _, id := range held {
		out[id] = true
	}
	return out, nil
}
