package model

// Course 课程，由老师创建，学生通过报名获得访问权
// swagger:model
type Course struct {
	BaseModel
	Title       string   `gorm:"size:255;not null" json:"title"`
	Code        string   `gorm:"size:7;uniqueIndex;not null" json:"code"`
	Description string   `gorm:"type:text" json:"description"`
	TeacherID   *uint    `gorm:"index" json:"teacherId"`
	Category    string   `gorm:"size:50;default:'Personal Development'" json:"category"`
	Duration    int      `gorm:"default:4" json:"duration"` // 课程周数
	IsActive    bool     `gorm:"default:true" json:"isActive"`
	IsPublic    bool     `gorm:"default:true" json:"isPublic"`
	Lessons     []Lesson `gorm:"foreignKey:CourseID" json:"lessons,omitempty"`
}

func (Course) TableName() string {
	return "courses"
}
