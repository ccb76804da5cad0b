package workflow

import (
	"context"
	"errors"
	"log"
	"strings"

	"Gin_postgres_redis_loan_approval/apperr"
	"Gin_postgres_redis_loan_approval/authz"
	"Gin_postgres_redis_loan_approval/db"
	"Gin_postgres_redis_loan_approval/inventory"
	"Gin_postgres_redis_loan_approval/models"
)

type ItemInput struct {
	Name          string            `json:"name"`
	Code          string            `json:"code"`
	DepartmentID  string            `json:"departmentId"`
	CategoryID    *string           `json:"categoryId"`
	Description   string            `json:"description"`
	TotalQuantity *int              `json:"totalQuantity"`
	Status        models.ItemStatus `json:"status"`
}

func (in *ItemInput) validate(create bool) error {
	if create {
		if strings.TrimSpace(in.Name) == "" {
			return apperr.Invalid("name", "is required")
		}
		if strings.TrimSpace(in.Code) == "" {
			return apperr.Invalid("code", "is required")
		}
		if strings.TrimSpace(in.DepartmentID) == "" {
			return apperr.Invalid("departmentId", "is required")
		}
		if in.TotalQuantity == nil {
			return apperr.Invalid("totalQuantity", "is required")
		}
	}
	if in.TotalQuantity != nil && *in.TotalQuantity < 0 {
		return apperr.Invalid("totalQuantity", "must not be negative")
	}
	if in.Status != "" && !in.Status.Valid() {
		return apperr.Invalid("status", "unknown status %q", in.Status)
	}
	return nil
}

func (s *Service) checkDepartment(ctx context.Context, id string) error {
	if _, err := s.repo.FindDepartmentByID(ctx, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return apperr.Invalid("departmentId", "unknown department")
		}
		return err
	}
	return nil
}

func (s *Service) CreateItem(ctx context.Context, actor *authz.Actor, in ItemInput) (*models.Item, error) {
	if err := authz.Check(actor, authz.OpManageItems); err != nil {
		return nil, err
	}
	if err := in.validate(true); err != nil {
		return nil, err
	}
	if err := authz.Authorize(actor, authz.OpManageItems, authz.Target{DepartmentIDs: []string{in.DepartmentID}}); err != nil {
		return nil, err
	}
	if err := s.checkDepartment(ctx, in.DepartmentID); err != nil {
		return nil, err
	}
	if in.CategoryID != nil && *in.CategoryID == "" {
		in.CategoryID = nil
	}
	it := &models.Item{
		Name:          strings.TrimSpace(in.Name),
		Code:          strings.TrimSpace(in.Code),
		DepartmentID:  in.DepartmentID,
		CategoryID:    in.CategoryID,
		Description:   strings.TrimSpace(in.Description),
		TotalQuantity: *in.TotalQuantity,
		Status:        in.Status,
	}
	if err := s.repo.CreateItem(ctx, it); err != nil {
		return nil, err
	}
	return s.repo.FindItemByID(ctx, it.ID)
}

// UpdateItem edits an item. Moving it to another department needs
// manage_items on both. Lowering the total below what approved/active
// requests hold is allowed and reported as an anomaly.
func (s *Service) UpdateItem(ctx context.Context, actor *authz.Actor, id string, in ItemInput) (*models.Item, error) {
	if err := authz.Check(actor, authz.OpManageItems); err != nil {
		return nil, err
	}
	if err := in.validate(false); err != nil {
		return nil, err
	}
	it, err := s.repo.FindItemByID(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, apperr.NotFound("item")
	}
	if err != nil {
		return nil, err
	}
	depts := []string{it.DepartmentID}
	if in.DepartmentID != "" && in.DepartmentID != it.DepartmentID {
		depts = append(depts, in.DepartmentID)
	}
	if err := authz.Authorize(actor, authz.OpManageItems, authz.Target{DepartmentIDs: depts}); err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if v := strings.TrimSpace(in.Name); v != "" {
		fields["name"] = v
	}
	if v := strings.TrimSpace(in.Code); v != "" {
		fields["code"] = v
	}
	if in.DepartmentID != "" && in.DepartmentID != it.DepartmentID {
		if err := s.checkDepartment(ctx, in.DepartmentID); err != nil {
			return nil, err
		}
		fields["department_id"] = in.DepartmentID
	}
	if in.CategoryID != nil {
		if *in.CategoryID == "" {
			fields["category_id"] = nil
		} else {
			fields["category_id"] = *in.CategoryID
		}
	}
	if in.Description != "" {
		fields["description"] = strings.TrimSpace(in.Description)
	}
	if in.TotalQuantity != nil {
		fields["total_quantity"] = *in.TotalQuantity
	}
	if in.Status != "" {
		fields["status"] = in.Status
	}
	if len(fields) > 0 {
		if err := s.repo.UpdateItem(ctx, id, fields); err != nil {
			return nil, err
		}
	}

	out, err := s.repo.FindItemByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.TotalQuantity != nil {
		// 只记录，不自动修正
		if _, err := s.Availability(ctx, []models.Item{*out}); err != nil {
			log.Printf("[ANOMALY] recheck of item %s failed: %v", id, err)
		}
	}
	return out, nil
}

func (s *Service) DeleteItem(ctx context.Context, actor *authz.Actor, id string) error {
	if err := authz.Check(actor, authz.OpManageItems); err != nil {
		return err
	}
	it, err := s.repo.FindItemByID(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return apperr.NotFound("item")
	}
	if err != nil {
		return err
	}
	if err := authz.Authorize(actor, authz.OpManageItems, authz.Target{DepartmentIDs: []string{it.DepartmentID}}); err != nil {
		return err
	}
	err = s.repo.DeleteItem(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return apperr.NotFound("item")
	}
	return err
}

// ReconcileResult counts the item status flips of one reconcile pass.
type ReconcileResult struct {
	Borrowed int64 `json:"borrowed"`
	Released int64 `json:"released"`
}

// ReconcileItemStatuses repairs item status after a failed fan-out:
// borrowed iff on an active request; maintenance, damaged and lost are never
// touched.
func (s *Service) ReconcileItemStatuses(ctx context.Context, actor *authz.Actor) (ReconcileResult, error) {
	var res ReconcileResult
	if err := authz.Check(actor, authz.OpManageDepartments); err != nil {
		return res, err
	}
	items, err := s.repo.ListItems(ctx, db.ItemFilter{})
	if err != nil {
		return res, err
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	held, err := s.repo.ItemsHeldByActive(ctx, ids, "")
	if err != nil {
		return res, err
	}
	var borrowed, free []string
	for _, id := range ids {
		if held[id] {
			borrowed = append(borrowed, id)
		} else {
			free = append(free, id)
		}
	}
	if res.Borrowed, err = s.repo.SetItemStatus(ctx, borrowed, models.ItemBorrowed,
		models.ItemAvailable, models.ItemReserved); err != nil {
		return res, err
	}
	if res.Released, err = s.repo.SetItemStatus(ctx, free, models.ItemAvailable,
		models.ItemBorrowed, models.ItemReserved); err != nil {
		return res, err
	}
	log.Printf("[RECONCILE] %d item(s) marked borrowed, %d released", res.Borrowed, res.Released)
	return res, nil
}

// Anomalies lists items whose committed quantity exceeds their total.
func (s *Service) Anomalies(ctx context.Context, actor *authz.Actor) ([]inventory.Availability, error) {
	if err := authz.Check(actor, authz.OpManageDepartments); err != nil {
		return nil, err
	}
	items, err := s.repo.ListItems(ctx, db.ItemFilter{})
	if err != nil {
		return nil, err
	}
	avail, err := s.Availability(ctx, items)
	if err != nil {
		return nil, err
	}
	out := []inventory.Availability{}
	for _, it := range items {
		if a := avail[it.ID]; a.Overcommitted {
			out = append(out, a)
		}
	}
	return out, nil
}
