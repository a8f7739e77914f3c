package service

import (
	"fmt"
	"testing"

	"lms_backend/internal/model"
	"lms_backend/internal/repository"
	"lms_backend/pkg/database"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB 每个测试独立的内存库
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 内存库按连接隔离，多连接会各自看到空库
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

type testFixture struct {
	db             *gorm.DB
	courseRepo     *repository.CourseRepository
	lessonRepo     *repository.LessonRepository
	enrollmentRepo *repository.EnrollmentRepository
	exerciseRepo   *repository.StudentExerciseRepository
	progressRepo   *repository.LessonProgressRepository
	certRepo       *repository.CertificateRepository
}

func newFixture(t *testing.T) *testFixture {
	db := newTestDB(t)
	return &testFixture{
		db:             db,
		courseRepo:     repository.NewCourseRepository(db),
		lessonRepo:     repository.NewLessonRepository(db),
		enrollmentRepo: repository.NewEnrollmentRepository(db),
		exerciseRepo:   repository.NewStudentExerciseRepository(db),
		progressRepo:   repository.NewLessonProgressRepository(db),
		certRepo:       repository.NewCertificateRepository(db),
	}
}

func (f *testFixture) lessonService() *LessonService {
	return NewLessonService(f.lessonRepo, f.enrollmentRepo, f.exerciseRepo, f.db)
}

func (f *testFixture) videoService() *VideoService {
	return NewVideoService(f.lessonRepo, f.enrollmentRepo, f.progressRepo, f.db)
}

func (f *testFixture) completionService() *CompletionService {
	return NewCompletionService(f.courseRepo, f.lessonRepo, f.enrollmentRepo,
		f.exerciseRepo, f.progressRepo, f.certRepo, f.db)
}

func (f *testFixture) courseService() *CourseService {
	return NewCourseService(f.courseRepo, f.lessonRepo, f.enrollmentRepo, f.exerciseRepo, f.certRepo, nil, "")
}

func createUser(t *testing.T, db *gorm.DB, role model.UserRole) *model.User {
	t.Helper()
	user := &model.User{
		Name:     fmt.Sprintf("user-%s", role),
		Email:    fmt.Sprintf("%s-%d@example.com", role, seq()),
		Password: "hashed",
		Role:     role,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createCourse(t *testing.T, db *gorm.DB, teacherID uint) *model.Course {
	t.Helper()
	course := &model.Course{
		Title:     "Test Course",
		Code:      fmt.Sprintf("C%06d", seq()),
		TeacherID: &teacherID,
		IsActive:  true,
		IsPublic:  true,
	}
	require.NoError(t, db.Create(course).Error)
	return course
}

type lessonOpts struct {
	order     int
	exercise  string
	videoURL  string
	videoReqs map[string]interface{}
}

func createLesson(t *testing.T, db *gorm.DB, courseID uint, opts lessonOpts) *model.Lesson {
	t.Helper()
	lesson := &model.Lesson{
		CourseID: courseID,
		Title:    fmt.Sprintf("Lesson %d", opts.order),
		Order:    opts.order,
		IsActive: true,
		VideoURL: opts.videoURL,
	}
	if opts.exercise != "" {
		lesson.Exercise = datatypes.JSON(opts.exercise)
	}
	if opts.videoReqs != nil {
		lesson.VideoRequirements = opts.videoReqs
	}
	require.NoError(t, db.Create(lesson).Error)
	return lesson
}

func enrollStudent(t *testing.T, db *gorm.DB, studentID, courseID uint, status model.EnrollmentStatus) *model.Enrollment {
	t.Helper()
	enrollment := &model.Enrollment{
		StudentID: studentID,
		CourseID:  courseID,
		Status:    status,
	}
	require.NoError(t, db.Create(enrollment).Error)
	return enrollment
}

var seqCounter int

func seq() int {
	seqCounter++
	return seqCounter
}

// twoQuestionExercise 两道选择题，正确答案都是下标 1
const twoQuestionExercise = `[
	{"id": "q1", "type": "multiple_choice", "question": "First?", "options": ["a", "b"], "correct_answer": 1},
	{"id": "q2", "type": "multiple_choice", "question": "Second?", "options": ["x", "y"], "correct_answer": 1}
]`
