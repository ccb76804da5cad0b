// models/borrow_request.go
package models

import (
	"errors"
	"time"
)

const (
	RequestTable     = "loan_borrow_requests"
	RequestItemTable = "loan_request_items"
)

// ErrNotFound is returned by the store when a row does not exist.
var ErrNotFound = errors.New("record not found")

type RequestStatus string

const (
	StatusDraft             RequestStatus = "draft" // 保留，当前流程不使用
	StatusPendingOwner      RequestStatus = "pending_owner"
	StatusPendingHeadmaster RequestStatus = "pending_headmaster"
	StatusApproved          RequestStatus = "approved"
	StatusActive            RequestStatus = "active"
	StatusCompleted         RequestStatus = "completed"
	StatusRejected          RequestStatus = "rejected"
	StatusCancelled         RequestStatus = "cancelled"
)

// CommittedStatuses are the statuses whose lines count against stock.
var CommittedStatuses = []RequestStatus{StatusApproved, StatusActive}

func (s RequestStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPendingOwner, StatusPendingHeadmaster, StatusApproved,
		StatusActive, StatusCompleted, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

func (s RequestStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected || s == StatusCancelled
}

// HoldsStock: approved/active 的申请占用库存
func (s RequestStatus) HoldsStock() bool {
	return s == StatusApproved || s == StatusActive
}

// CarriesLetter: letter_number is set exactly in these statuses.
func (s RequestStatus) CarriesLetter() bool {
	return s == StatusApproved || s == StatusActive || s == StatusCompleted
}

type BorrowRequest struct {
	ID            string        `gorm:"primaryKey;size:36" json:"id"`
	BorrowerID    string        `gorm:"size:36;index;not null" json:"borrowerId"`
	Status        RequestStatus `gorm:"size:30;index;not null" json:"status"`
	Purpose       string        `gorm:"size:1000;not null" json:"purpose"`
	StartDate     time.Time     `gorm:"type:date;not null" json:"startDate"`
	EndDate       time.Time     `gorm:"type:date;not null" json:"endDate"`
	LocationUsage string        `gorm:"size:255" json:"locationUsage"`
	PICName       string        `gorm:"column:pic_name;size:255;not null" json:"picName"`
	PICContact    string        `gorm:"column:pic_contact;size:255;not null" json:"picContact"`

	LetterNumber      *string    `gorm:"size:64" json:"letterNumber,omitempty"`
	LetterGeneratedAt *time.Time `json:"letterGeneratedAt,omitempty"`

	OwnerReviewedAt *time.Time `json:"ownerReviewedAt,omitempty"`
	OwnerReviewedBy *string    `gorm:"size:36" json:"ownerReviewedBy,omitempty"`
	OwnerNotes      string     `gorm:"size:1000" json:"ownerNotes,omitempty"`

	HeadmasterApprovedAt *time.Time `json:"headmasterApprovedAt,omitempty"`
	HeadmasterApprovedBy *string    `gorm:"size:36" json:"headmasterApprovedBy,omitempty"`
	HeadmasterNotes      string     `gorm:"size:1000" json:"headmasterNotes,omitempty"`

	RejectionReason *string    `gorm:"size:1000" json:"rejectionReason,omitempty"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	CancelledAt     *time.Time `json:"cancelledAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Items    []RequestItem `gorm:"foreignKey:RequestID" json:"items"`
	Borrower *User         `gorm:"foreignKey:BorrowerID" json:"borrower,omitempty"`
}

// RequestItem is immutable once created with its parent.
type RequestItem struct {
	ID              string `gorm:"primaryKey;size:36" json:"id"`
	RequestID       string `gorm:"size:36;index;not null" json:"requestId"`
	ItemID          string `gorm:"size:36;index;not null" json:"itemId"`
	Quantity        int    `gorm:"not null" json:"quantity"`
	Notes           string `gorm:"size:500" json:"notes,omitempty"`
	ConditionBefore string `gorm:"size:100" json:"conditionBefore,omitempty"`
	ConditionAfter  string `gorm:"size:100" json:"conditionAfter,omitempty"`

	Item *Item `gorm:"foreignKey:ItemID" json:"item,omitempty"`
}

func (BorrowRequest) TableName() string { return RequestTable }
func (RequestItem) TableName() string   { return RequestItemTable }

// ItemIDs returns the distinct item ids referenced by the request lines.
func (r *BorrowRequest) ItemIDs() []string {
	seen := make(map[string]bool, len(r.Items))
	ids := make([]string, 0, len(r.Items))
	for _, it := range r.Items {
		if !seen[it.ItemID] {
			seen[it.ItemID] = true
			ids = append(ids, it.ItemID)
		}
	}
	return ids
}

// QuantityByItem sums line quantities per item.
func (r *BorrowRequest) QuantityByItem() map[string]int {
	out := make(map[string]int, len(r.Items))
	for _, it := range r.Items {
		out[it.ItemID] += it.Quantity
	}
	return out
}
