package model

import "time"

type UserRole string

const (
	Student UserRole = "student"
	Teacher UserRole = "teacher"
	Admin   UserRole = "admin"
)

// User 平台用户（学生/老师/管理员）
// swagger:model
type User struct {
	BaseModel
	Name     string     `gorm:"size:100;not null" json:"name"`
	Email    string     `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Password string     `gorm:"size:255;not null" json:"-"`
	Role     UserRole   `gorm:"size:20;default:student" json:"role"`
	LastSeen *time.Time `json:"lastSeen"`
}

func (User) TableName() string {
	return "users"
}
