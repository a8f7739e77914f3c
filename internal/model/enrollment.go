package model

import (
	"time"

	"gorm.io/gorm"
)

type EnrollmentStatus string

const (
	EnrollmentPending   EnrollmentStatus = "pending"
	EnrollmentApproved  EnrollmentStatus = "approved"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentDeclined  EnrollmentStatus = "declined"
)

// Enrollment 学生报名记录，(student, course) 唯一；approved/completed 视为有效访问
// swagger:model
type Enrollment struct {
	BaseModel
	StudentID   uint             `gorm:"uniqueIndex:idx_student_course;index" json:"studentId"`
	CourseID    uint             `gorm:"uniqueIndex:idx_student_course;index" json:"courseId"`
	Status      EnrollmentStatus `gorm:"size:20;default:pending" json:"status"`
	Notes       string           `gorm:"type:text" json:"notes"`
	CompletedAt *time.Time       `json:"completedAt"`

	Student User   `gorm:"foreignKey:StudentID" json:"-"`
	Course  Course `gorm:"foreignKey:CourseID" json:"-"`
}

func (Enrollment) TableName() string {
	return "enrollments"
}

// IsActive 是否拥有课程访问权
func (e *Enrollment) IsActive() bool {
	return e.Status == EnrollmentApproved || e.Status == EnrollmentCompleted
}

// BeforeSave 进入 completed 状态时补 completed_at，只补一次
func (e *Enrollment) BeforeSave(tx *gorm.DB) error {
	if e.Status == EnrollmentCompleted && e.CompletedAt == nil {
		now := time.Now()
		e.CompletedAt = &now
	}
	return nil
}
