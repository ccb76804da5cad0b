// models/item.go
package models

import "time"

const (
	DepartmentTable = "loan_departments"
	CategoryTable   = "loan_categories"
	ItemTable       = "loan_items"
)

type Department struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Name        string    `gorm:"size:200;uniqueIndex;not null" json:"name"`
	Description string    `gorm:"size:500" json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Category struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Name        string    `gorm:"size:200;uniqueIndex;not null" json:"name"`
	Description string    `gorm:"size:500" json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type ItemStatus string

const (
	ItemAvailable   ItemStatus = "available"
	ItemReserved    ItemStatus = "reserved"
	ItemBorrowed    ItemStatus = "borrowed"
	ItemMaintenance ItemStatus = "maintenance"
	ItemDamaged     ItemStatus = "damaged"
	ItemLost        ItemStatus = "lost"
)

func (s ItemStatus) Valid() bool {
	switch s {
	case ItemAvailable, ItemReserved, ItemBorrowed, ItemMaintenance, ItemDamaged, ItemLost:
		return true
	}
	return false
}

// Loanable: maintenance/damaged/lost 的物品不能被申请
func (s ItemStatus) Loanable() bool {
	return s == ItemAvailable || s == ItemReserved || s == ItemBorrowed
}

// Item is one type of loanable equipment. Available quantity is never stored;
// it is derived from TotalQuantity and the approved/active requests.
type Item struct {
	ID            string     `gorm:"primaryKey;size:36" json:"id"`
	Name          string     `gorm:"size:200;not null" json:"name"`
	Code          string     `gorm:"size:120;uniqueIndex;not null" json:"code"`
	DepartmentID  string     `gorm:"size:36;index;not null" json:"departmentId"`
	CategoryID    *string    `gorm:"size:36;index" json:"categoryId,omitempty"`
	Description   string     `gorm:"size:1000" json:"description,omitempty"`
	TotalQuantity int        `gorm:"not null;default:0" json:"totalQuantity"`
	Status        ItemStatus `gorm:"size:20;not null;default:'available'" json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`

	Department *Department `gorm:"foreignKey:DepartmentID" json:"department,omitempty"`
	Category   *Category   `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
}

func (Department) TableName() string { return DepartmentTable }
func (Category) TableName() string   { return CategoryTable }
func (Item) TableName() string       { return ItemTable }
