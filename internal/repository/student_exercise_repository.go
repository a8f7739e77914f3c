package repository

import (
	"errors"
	"lms_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StudentExerciseRepository struct {
	DB *gorm.DB
}

func NewStudentExerciseRepository(db *gorm.DB) *StudentExerciseRepository {
	return &StudentExerciseRepository{DB: db}
}

// Find 查询记录，不存在时返回 nil
func (r *StudentExerciseRepository) Find(studentID, lessonID uint) (*model.StudentExercise, error) {
	return r.findTx(r.DB, studentID, lessonID, false)
}

// GetOrCreate 按 (student, lesson) 取记录，不存在则创建空记录
func (r *StudentExerciseRepository) GetOrCreate(studentID, lessonID uint) (*model.StudentExercise, error) {
	return r.getOrCreateTx(r.DB, studentID, lessonID, false)
}

// GetOrCreateForUpdate 事务内取记录并锁行（MySQL 上 FOR UPDATE，其余方言退化为普通查询）
func (r *StudentExerciseRepository) GetOrCreateForUpdate(tx *gorm.DB, studentID, lessonID uint) (*model.StudentExercise, error) {
	return r.getOrCreateTx(tx, studentID, lessonID, true)
}

func (r *StudentExerciseRepository) findTx(tx *gorm.DB, studentID, lessonID uint, forUpdate bool) (*model.StudentExercise, error) {
	q := tx
	if forUpdate && tx.Dialector.Name() == "mysql" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var se model.StudentExercise
	err := q.Where("student_id = ? AND lesson_id = ?", studentID, lessonID).First(&se).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &se, nil
}

func (r *StudentExerciseRepository) getOrCreateTx(tx *gorm.DB, studentID, lessonID uint, forUpdate bool) (*model.StudentExercise, error) {
	se, err := r.findTx(tx, studentID, lessonID, forUpdate)
	if err != nil {
		return nil, err
	}
	if se != nil {
		return se, nil
	}

	se = &model.StudentExercise{
		StudentID:      studentID,
		LessonID:       lessonID,
		Score:          0.0,
		SubmissionData: map[string]interface{}{},
		AdditionalData: map[string]interface{}{},
	}
	if err := tx.Create(se).Error; err != nil {
		return nil, err
	}
	return se, nil
}

func (r *StudentExerciseRepository) Save(se *model.StudentExercise) error {
	return r.DB.Save(se).Error
}

// CompletedLessonIDs 学生在课程内已完成课时的 id 集合
func (r *StudentExerciseRepository) CompletedLessonIDs(studentID, courseID uint) (map[uint]bool, error) {
	var ids []uint
	err := r.DB.Model(&model.StudentExercise{}).
		Joins("JOIN lessons ON lessons.id = student_exercises.lesson_id").
		Where("student_exercises.student_id = ? AND student_exercises.completed = ? AND lessons.course_id = ? AND lessons.is_active = ?",
			studentID, true, courseID, true).
		Distinct().
		Pluck("student_exercises.lesson_id", &ids).Error
	if err != nil {
		return nil, err
	}

	set := make(map[uint]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

// AverageScore 学生在课程内已完成课时的平均分，用于证书评级
func (r *StudentExerciseRepository) AverageScore(studentID, courseID uint) (float64, error) {
	var avg *float64
	err := r.DB.Model(&model.StudentExercise{}).
		Joins("JOIN lessons ON lessons.id = student_exercises.lesson_id").
		Where("student_exercises.student_id = ? AND student_exercises.completed = ? AND lessons.course_id = ?",
			studentID, true, courseID).
		Select("AVG(student_exercises.score)").
		Scan(&avg).Error
	if err != nil || avg == nil {
		return 0, err
	}
	return *avg, nil
}

// ListByStudentCourse 学生在课程内的全部练习记录（成绩汇总用）
func (r *StudentExerciseRepository) ListByStudentCourse(studentID, courseID uint) ([]model.StudentExercise, error) {
	var records []model.StudentExercise
	err := r.DB.
		Joins("JOIN lessons ON lessons.id = student_exercises.lesson_id").
		Where("student_exercises.student_id = ? AND lessons.course_id = ?", studentID, courseID).
		Find(&records).Error
	return records, err
}
