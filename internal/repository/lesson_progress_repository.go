package repository

import (
	"errors"
	"lms_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LessonProgressRepository struct {
	DB *gorm.DB
}

func NewLessonProgressRepository(db *gorm.DB) *LessonProgressRepository {
	return &LessonProgressRepository{DB: db}
}

// Find 查询观看进度记录，不存在时返回 nil
func (r *LessonProgressRepository) Find(studentID, lessonID uint) (*model.LessonProgress, error) {
	var progress model.LessonProgress
	err := r.DB.Where("student_id = ? AND lesson_id = ?", studentID, lessonID).
		First(&progress).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &progress, nil
}

// FindForUpdate 事务内查询并加行锁（仅 MySQL），不存在时返回 nil
func (r *LessonProgressRepository) FindForUpdate(tx *gorm.DB, studentID, lessonID uint) (*model.LessonProgress, error) {
	query := tx
	if tx.Dialector.Name() == "mysql" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var progress model.LessonProgress
	err := query.Where("student_id = ? AND lesson_id = ?", studentID, lessonID).
		First(&progress).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &progress, nil
}

func (r *LessonProgressRepository) Create(progress *model.LessonProgress) error {
	return r.DB.Create(progress).Error
}

func (r *LessonProgressRepository) Save(progress *model.LessonProgress) error {
	return r.DB.Save(progress).Error
}
