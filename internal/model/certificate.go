package model

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Certificate 课程结业证书，课程进度达到 100% 时签发，(student, course) 唯一
// swagger:model
type Certificate struct {
	BaseModel
	CertificateID string  `gorm:"size:36;uniqueIndex" json:"certificateId"`
	StudentID     uint    `gorm:"uniqueIndex:idx_cert_student_course;index" json:"studentId"`
	CourseID      uint    `gorm:"uniqueIndex:idx_cert_student_course;index" json:"courseId"`
	Grade         float64 `gorm:"default:0" json:"grade"` // 各课时得分均值
	IsActive      bool    `gorm:"default:true" json:"isActive"`
}

func (Certificate) TableName() string {
	return "certificates"
}

func (c *Certificate) BeforeCreate(tx *gorm.DB) error {
	if c.CertificateID == "" {
		c.CertificateID = uuid.New().String()
	}
	return nil
}
