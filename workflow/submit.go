package workflow

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"Gin_postgres_redis_loan_approval/apperr"
	"Gin_postgres_redis_loan_approval/authz"
	"Gin_postgres_redis_loan_approval/db"
	"Gin_postgres_redis_loan_approval/models"

	"github.com/go-playground/validator/v10"
)

type LineInput struct {
	ItemID          string `json:"itemId" validate:"required"`
	Quantity        int    `json:"quantity" validate:"min=1"`
	Notes           string `json:"notes"`
	ConditionBefore string `json:"conditionBefore"`
}

type SubmitInput struct {
	Purpose       string      `json:"purpose" validate:"required"`
	StartDate     time.Time   `json:"startDate" validate:"required"`
	EndDate       time.Time   `json:"endDate" validate:"required,gtefield=StartDate"`
	LocationUsage string      `json:"locationUsage" validate:"required"`
	PICName       string      `json:"picName" validate:"required"`
	PICContact    string      `json:"picContact" validate:"required"`
	Items         []LineInput `json:"items" validate:"required,min=1,dive"`
}

// checker reports fields by their json names.
var checker = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}()

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// normalize trims the free text and drops the clock from the dates, so the
// tag checks see what will be stored.
func (in *SubmitInput) normalize() {
	in.Purpose = strings.TrimSpace(in.Purpose)
	in.LocationUsage = strings.TrimSpace(in.LocationUsage)
	in.PICName = strings.TrimSpace(in.PICName)
	in.PICContact = strings.TrimSpace(in.PICContact)
	if !in.StartDate.IsZero() {
		in.StartDate = dateOnly(in.StartDate)
	}
	if !in.EndDate.IsZero() {
		in.EndDate = dateOnly(in.EndDate)
	}
	in.Items = append([]LineInput(nil), in.Items...)
	for i := range in.Items {
		in.Items[i].ItemID = strings.TrimSpace(in.Items[i].ItemID)
		in.Items[i].Notes = strings.TrimSpace(in.Items[i].Notes)
		in.Items[i].ConditionBefore = strings.TrimSpace(in.Items[i].ConditionBefore)
	}
}

// validate checks the fields that need no lookup.
func (in *SubmitInput) validate() error {
	in.normalize()
	if err := checker.Struct(in); err != nil {
		var fes validator.ValidationErrors
		if !errors.As(err, &fes) || len(fes) == 0 {
			return err
		}
		return fieldError(fes[0])
	}
	seen := map[string]bool{}
	for i, line := range in.Items {
		if seen[line.ItemID] {
			return apperr.Invalid(fmt.Sprintf("items[%d].itemId", i), "item listed twice")
		}
		seen[line.ItemID] = true
	}
	return nil
}

// fieldError turns a failed tag into a ValidationError named by its json
// path, e.g. "items[0].quantity".
func fieldError(fe validator.FieldError) error {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	switch fe.Tag() {
	case "required":
		return apperr.Invalid(field, "is required")
	case "min":
		if fe.Kind() == reflect.Slice {
			return apperr.Invalid(field, "at least %s entry is required", fe.Param())
		}
		return apperr.Invalid(field, "must be at least %s", fe.Param())
	case "gtefield":
		return apperr.Invalid(field, "must not be before startDate")
	}
	return apperr.Invalid(field, "failed %s", fe.Tag())
}

// Submit creates a pending_owner request. Availability is not checked here;
// pending requests do not hold stock, the approval recheck decides.
func (s *Service) Submit(ctx context.Context, actor *authz.Actor, in SubmitInput) (*models.BorrowRequest, error) {
	if err := authz.Check(actor, authz.OpSubmitRequest); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(in.Items))
	for _, line := range in.Items {
		ids = append(ids, line.ItemID)
	}
	items, err := s.repo.FindItemsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	var depts []string
	seenDept := map[string]bool{}
	for i, line := range in.Items {
		field := fmt.Sprintf("items[%d]", i)
		it, ok := items[line.ItemID]
		if !ok {
			return nil, apperr.Invalid(field+".itemId", "unknown item")
		}
		if !it.Status.Loanable() {
			return nil, apperr.Invalid(field+".itemId", "%s is %s and cannot be borrowed", it.Name, it.Status)
		}
		if line.Quantity > it.TotalQuantity {
			return nil, apperr.Invalid(field+".quantity", "%s has only %d unit(s) in total", it.Name, it.TotalQuantity)
		}
		if !seenDept[it.DepartmentID] {
			seenDept[it.DepartmentID] = true
			depts = append(depts, it.DepartmentID)
		}
	}
	if err := authz.SelfDealing(actor, depts); err != nil {
		return nil, err
	}

	br := &models.BorrowRequest{
		BorrowerID:    actor.UserID,
		Status:        models.StatusPendingOwner,
		Purpose:       in.Purpose,
		StartDate:     in.StartDate,
		EndDate:       in.EndDate,
		LocationUsage: in.LocationUsage,
		PICName:       in.PICName,
		PICContact:    in.PICContact,
	}
	for _, line := range in.Items {
		br.Items = append(br.Items, models.RequestItem{
			ItemID:          line.ItemID,
			Quantity:        line.Quantity,
			Notes:           line.Notes,
			ConditionBefore: line.ConditionBefore,
		})
	}

	err = s.repo.InTx(ctx, func(tx *db.Repo) error {
		if err := tx.CreateRequest(ctx, br); err != nil {
			return err
		}
		return tx.AppendRequestLog(ctx, &models.RequestLog{
			RequestID: br.ID,
			Event:     string(EventSubmit),
			ToStatus:  models.StatusPendingOwner,
			ActorID:   actor.UserID,
		})
	})
	if err != nil {
		return nil, err
	}

	out, err := s.repo.GetRequest(ctx, br.ID)
	if err != nil {
		return nil, fmt.Errorf("reload request: %w", err)
	}
	s.emit(ctx, actor, out, EventSubmit)
	return out, nil
}

// CheckCartLine is the add-to-cart gate: the item must exist, be loanable and
// not belong to a department the actor owns.
func (s *Service) CheckCartLine(ctx context.Context, actor *authz.Actor, itemID string, qty int) (*models.Item, error) {
	if err := authz.Check(actor, authz.OpAddToCart); err != nil {
		return nil, err
	}
	if err := checker.Var(qty, "min=1"); err != nil {
		return nil, apperr.Invalid("quantity", "must be at least 1")
	}
	it, err := s.repo.FindItemByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, apperr.NotFound("item")
		}
		return nil, err
	}
	if !it.Status.Loanable() {
		return nil, apperr.Invalid("itemId", "%s is %s and cannot be borrowed", it.Name, it.Status)
	}
	if qty > it.TotalQuantity {
		return nil, apperr.Invalid("quantity", "%s has only %d unit(s) in total", it.Name, it.TotalQuantity)
	}
	if err := authz.SelfDealing(actor, []string{it.DepartmentID}); err != nil {
		return nil, err
	}
	return it, nil
}
