// Package authz decides which operations an actor may perform.
//
// Two steps: Check looks at roles only and runs before anything is read;
// Authorize additionally looks at the departments and borrower of the
// loaded target. Both deny by default. Departments are compared by id.
package authz

import (
	"Gin_postgres_redis_loan_approval/apperr"
	"Gin_postgres_redis_loan_approval/models"
)

type Operation string

const (
	OpViewInventory      Operation = "view_inventory"
	OpSubmitRequest      Operation = "submit_request"
	OpAddToCart          Operation = "add_to_cart"
	OpManageItems        Operation = "manage_items"
	OpOwnerDecision      Operation = "owner_decision"
	OpHeadmasterDecision Operation = "headmaster_decision"
	OpManageUsers        Operation = "manage_users"
	OpManageDepartments  Operation = "manage_departments"
	OpManageRoles        Operation = "manage_roles"
	OpStartLoan          Operation = "start_loan"
	OpCompleteLoan       Operation = "complete_loan"
	OpViewRequest        Operation = "view_request"
	OpCancelRequest      Operation = "cancel_request"
	OpViewReports        Operation = "view_reports"
)

// Actor is the resolved identity plus the role assignments loaded for it.
type Actor struct {
	UserID string
	Email  string
	Name   string
	Roles  []models.RoleAssignment
}

func (a *Actor) Has(role models.Role) bool {
	if a == nil {
		return false
	}
	for _, r := range a.Roles {
		if r.Role != role {
			continue
		}
		// owner 没有部门等于没有权限
		if role == models.RoleOwner && (r.DepartmentID == nil || *r.DepartmentID == "") {
			continue
		}
		return true
	}
	return false
}

func (a *Actor) IsAdmin() bool { return a.Has(models.RoleAdmin) }

// OwnedDepartments lists the department ids of the actor's owner assignments.
func (a *Actor) OwnedDepartments() []string {
	if a == nil {
		return nil
	}
	var out []string
	seen := map[string]bool{}
	for _, r := range a.Roles {
		if r.Role != models.RoleOwner || r.DepartmentID == nil || *r.DepartmentID == "" {
			continue
		}
		if !seen[*r.DepartmentID] {
			seen[*r.DepartmentID] = true
			out = append(out, *r.DepartmentID)
		}
	}
	return out
}

func (a *Actor) Owns(departmentID string) bool {
	if departmentID == "" {
		return false
	}
	for _, d := range a.OwnedDepartments() {
		if d == departmentID {
			return true
		}
	}
	return false
}

func (a *Actor) ownsAny(departmentIDs []string) bool {
	for _, d := range departmentIDs {
		if a.Owns(d) {
			return true
		}
	}
	return false
}

func (a *Actor) ownsAll(departmentIDs []string) bool {
	if len(departmentIDs) == 0 {
		return false
	}
	for _, d := range departmentIDs {
		if !a.Owns(d) {
			return false
		}
	}
	return true
}

// Target is what a scoped decision looks at.
type Target struct {
	// DepartmentIDs of the item, or of every line of the request.
	DepartmentIDs []string
	BorrowerID    string
}

func deny(op Operation, why string) error {
	return apperr.Forbidden(string(op) + ": " + why)
}

// Check is the role-only gate.
func Check(a *Actor, op Operation) error {
	if op == OpViewInventory {
		return nil
	}
	if a == nil || a.UserID == "" {
		return deny(op, "no actor")
	}
	admin := a.IsAdmin()
	owner := a.Has(models.RoleOwner)
	borrower := a.Has(models.RoleBorrower)
	headmaster := a.Has(models.RoleHeadmaster)

	ok := false
	switch op {
	case OpSubmitRequest, OpAddToCart, OpStartLoan, OpCompleteLoan:
		ok = admin || owner || borrower
	case OpManageItems, OpOwnerDecision:
		ok = admin || owner
	case OpHeadmasterDecision:
		ok = admin || headmaster
	case OpManageUsers, OpManageDepartments, OpManageRoles:
		ok = admin
	case OpViewRequest, OpViewReports:
		ok = admin || owner || borrower || headmaster
	case OpCancelRequest:
		ok = admin || owner || borrower
	}
	if !ok {
		return deny(op, "missing role")
	}
	return nil
}

// Authorize runs Check and then the department/borrower scope.
func Authorize(a *Actor, op Operation, t Target) error {
	if err := Check(a, op); err != nil {
		return err
	}
	if a.IsAdmin() {
		return nil
	}
	self := t.BorrowerID != "" && t.BorrowerID == a.UserID

	ok := false
	switch op {
	case OpViewInventory, OpSubmitRequest, OpAddToCart, OpHeadmasterDecision,
		OpManageUsers, OpManageDepartments, OpManageRoles:
		ok = true
	case OpManageItems:
		ok = a.ownsAll(t.DepartmentIDs)
	case OpOwnerDecision:
		ok = a.ownsAny(t.DepartmentIDs)
	case OpStartLoan, OpCompleteLoan:
		ok = self || a.ownsAny(t.DepartmentIDs)
	case OpViewRequest:
		ok = self || a.Has(models.RoleHeadmaster) || a.ownsAny(t.DepartmentIDs)
	case OpCancelRequest:
		ok = self
	case OpViewReports:
		ok = a.Has(models.RoleHeadmaster) || a.ownsAll(t.DepartmentIDs)
	}
	if !ok {
		return deny(op, "out of scope")
	}
	return nil
}

// SelfDealing refuses an actor borrowing items of a department they own.
// The actor already knows their own departments, so the message is explicit.
func SelfDealing(a *Actor, departmentIDs []string) error {
	if a == nil {
		return nil
	}
	for _, d := range departmentIDs {
		if a.Owns(d) {
			return &apperr.AuthorizationError{
				Reason: "self-dealing on department " + d,
				Public: "you cannot borrow items from a department you own",
			}
		}
	}
	return nil
}
