package model

import (
	"time"

	"gorm.io/datatypes"
)

// StudentExercise 一个学生在一个课时上的练习与完成记录，(student, lesson) 唯一，首次交互时懒创建
//
// SubmissionData 以题目 id 为键保存最近一次提交 {answer, is_correct, submitted_at, question_type}，
// 完成课时后还会并入 reflection / completion_timestamp / total_questions / requirements_met 等元数据。
// 整个文档按 (student, lesson) 粒度整体读改写，不做字段级并发更新。
// swagger:model
type StudentExercise struct {
	BaseModel
	StudentID   uint       `gorm:"uniqueIndex:idx_student_lesson;index" json:"studentId"`
	LessonID    uint       `gorm:"uniqueIndex:idx_student_lesson;index" json:"lessonId"`
	Completed   bool       `gorm:"default:false" json:"completed"`
	CompletedAt *time.Time `json:"completedAt"`
	Score       float64    `gorm:"default:0" json:"score"`

	SubmissionData datatypes.JSONMap `gorm:"type:json" json:"submissionData"`
	AdditionalData datatypes.JSONMap `gorm:"type:json" json:"additionalData"` // 追问答题等旁路数据

	Student User   `gorm:"foreignKey:StudentID" json:"-"`
	Lesson  Lesson `gorm:"foreignKey:LessonID" json:"-"`
}

func (StudentExercise) TableName() string {
	return "student_exercises"
}

// Submission 取指定题目的最近一次提交记录
func (se *StudentExercise) Submission(questionID string) (map[string]interface{}, bool) {
	if se.SubmissionData == nil {
		return nil, false
	}
	raw, ok := se.SubmissionData[questionID]
	if !ok {
		return nil, false
	}
	sub, ok := raw.(map[string]interface{})
	return sub, ok
}

// WasCorrect 指定题目当前是否处于答对状态
func (se *StudentExercise) WasCorrect(questionID string) bool {
	sub, ok := se.Submission(questionID)
	if !ok {
		return false
	}
	correct, _ := sub["is_correct"].(bool)
	return correct
}
