package models

import (
	"time"

	"gorm.io/gorm"
)

const UserTable = "loan_users"

// User 由外部身份提供方(IdP)解析而来；本服务不保存任何凭据
type User struct {
	ID          string `gorm:"primaryKey;size:36" json:"id"`
	ExternalID  string `gorm:"size:255;index" json:"externalId"`
	Email       string `gorm:"uniqueIndex;size:255;not null" json:"email"`
	DisplayName string `gorm:"size:255;not null" json:"displayName"`

	LastLoginAt *time.Time `gorm:"index" json:"lastLoginAt,omitempty"`
	LastSeenAt  *time.Time `gorm:"index" json:"lastSeenAt,omitempty"`
	LoginCount  int64      `gorm:"not null;default:0" json:"loginCount"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Roles []RoleAssignment `gorm:"foreignKey:UserID" json:"roles,omitempty"`
}

func (User) TableName() string { return UserTable }
