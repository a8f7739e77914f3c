package repository

import (
	"errors"
	"lms_backend/internal/model"
	"lms_backend/internal/util"

	"gorm.io/gorm"
)

type LessonRepository struct {
	DB *gorm.DB
}

func NewLessonRepository(db *gorm.DB) *LessonRepository {
	return &LessonRepository{DB: db}
}

func (r *LessonRepository) FindActiveByID(id uint) (*model.Lesson, error) {
	var lesson model.Lesson
	err := r.DB.First(&lesson, "id = ? AND is_active = ?", id, true).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrLessonNotFound
		}
		return nil, err
	}
	return &lesson, nil
}

// ListActiveByCourse 按 order 升序返回课程内全部启用课时（侧边栏用）
func (r *LessonRepository) ListActiveByCourse(courseID uint) ([]model.Lesson, error) {
	var lessons []model.Lesson
	err := r.DB.Where("course_id = ? AND is_active = ?", courseID, true).
		Order("`order` ASC").
		Find(&lessons).Error
	return lessons, err
}

func (r *LessonRepository) Create(lesson *model.Lesson) error {
	var count int64
	r.DB.Model(&model.Lesson{}).
		Where("course_id = ? AND `order` = ?", lesson.CourseID, lesson.Order).
		Count(&count)
	if count > 0 {
		return util.ErrOrderTaken
	}
	return r.DB.Create(lesson).Error
}

func (r *LessonRepository) Update(lesson *model.Lesson) error {
	var count int64
	r.DB.Model(&model.Lesson{}).
		Where("course_id = ? AND `order` = ? AND id <> ?", lesson.CourseID, lesson.Order, lesson.ID).
		Count(&count)
	if count > 0 {
		return util.ErrOrderTaken
	}
	return r.DB.Save(lesson).Error
}

// Delete 删除课时并在同一事务里为后续课时补位重排 order
func (r *LessonRepository) Delete(lesson *model.Lesson) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(lesson).Error; err != nil {
			return err
		}

		var followers []model.Lesson
		if err := tx.Where("course_id = ? AND `order` > ?", lesson.CourseID, lesson.Order).
			Order("`order` ASC").
			Find(&followers).Error; err != nil {
			return err
		}

		for i := range followers {
			followers[i].Order--
			if err := tx.Save(&followers[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Reorder 按给定的课时 id 顺序重排整个课程，先挪到负区间避开唯一索引冲突
func (r *LessonRepository) Reorder(courseID uint, lessonIDs []uint) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		for i, id := range lessonIDs {
			if err := tx.Model(&model.Lesson{}).
				Where("id = ? AND course_id = ?", id, courseID).
				Update("order", -(i + 1)).Error; err != nil {
				return err
			}
		}
		for i, id := range lessonIDs {
			if err := tx.Model(&model.Lesson{}).
				Where("id = ? AND course_id = ?", id, courseID).
				Update("order", i+1).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
