package models

import "time"

const RoleTable = "loan_role_assignments"

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleOwner      Role = "owner"
	RoleHeadmaster Role = "headmaster"
	RoleBorrower   Role = "borrower"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleOwner, RoleHeadmaster, RoleBorrower:
		return true
	}
	return false
}

// RoleAssignment: one user may hold several. DepartmentID is only set for owners.
// Several owners per department are allowed; any of them may decide.
type RoleAssignment struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	UserID       string    `gorm:"size:36;index;not null" json:"userId"`
	Role         Role      `gorm:"size:20;index;not null" json:"role"`
	DepartmentID *string   `gorm:"size:36;index" json:"departmentId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (RoleAssignment) TableName() string { return RoleTable }
