package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"lms_backend/internal/model"
	"lms_backend/internal/repository"
	"lms_backend/internal/util"
	"lms_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const lessonCacheTTL = 10 * time.Minute

// CourseService 课程/课时管理与报名流转。
// 侧边栏的课时元数据走 Redis 缓存（只缓存课程级数据，
// 学生个人的完成标记每次即时计算，不进缓存）。
type CourseService struct {
	courseRepo     *repository.CourseRepository
	lessonRepo     *repository.LessonRepository
	enrollmentRepo *repository.EnrollmentRepository
	exerciseRepo   *repository.StudentExerciseRepository
	certRepo       *repository.CertificateRepository
	rdb            *redis.Client
	mediaRoot      string
}

func NewCourseService(
	courseRepo *repository.CourseRepository,
	lessonRepo *repository.LessonRepository,
	enrollmentRepo *repository.EnrollmentRepository,
	exerciseRepo *repository.StudentExerciseRepository,
	certRepo *repository.CertificateRepository,
	rdb *redis.Client,
	mediaRoot string,
) *CourseService {
	return &CourseService{
		courseRepo:     courseRepo,
		lessonRepo:     lessonRepo,
		enrollmentRepo: enrollmentRepo,
		exerciseRepo:   exerciseRepo,
		certRepo:       certRepo,
		rdb:            rdb,
		mediaRoot:      mediaRoot,
	}
}

func (s *CourseService) ListPublicCourses() ([]model.Course, error) {
	return s.courseRepo.ListPublic()
}

func (s *CourseService) GetCourse(courseID uint) (*model.Course, error) {
	course, err := s.courseRepo.FindByID(courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrCourseNotFound
		}
		return nil, err
	}
	return course, nil
}

// lessonMeta 侧边栏条目里可按课程缓存的部分
type lessonMeta struct {
	LessonID     uint   `json:"lessonId"`
	Title        string `json:"title"`
	Order        int    `json:"order"`
	Duration     int    `json:"duration"`
	HasVideo     bool   `json:"hasVideo"`
	HasExercises bool   `json:"hasExercises"`
}

type LessonListItem struct {
	lessonMeta
	Completed bool `json:"completed"`
}

// ListLessons 课程课时列表（按 order），附带当前学生的完成标记
func (s *CourseService) ListLessons(studentID, courseID uint) ([]LessonListItem, error) {
	if _, err := s.GetCourse(courseID); err != nil {
		return nil, err
	}

	enrollment, err := s.enrollmentRepo.FindActive(studentID, courseID)
	if err != nil {
		return nil, err
	}
	if enrollment == nil {
		return nil, util.ErrNotEnrolled
	}

	metas, err := s.cachedLessonMetas(courseID)
	if err != nil {
		return nil, err
	}
	completedIDs, err := s.exerciseRepo.CompletedLessonIDs(studentID, courseID)
	if err != nil {
		return nil, err
	}

	items := make([]LessonListItem, 0, len(metas))
	for _, m := range metas {
		items = append(items, LessonListItem{
			lessonMeta: m,
			Completed:  completedIDs[m.LessonID],
		})
	}
	return items, nil
}

func (s *CourseService) cachedLessonMetas(courseID uint) ([]lessonMeta, error) {
	ctx := context.Background()
	key := lessonCacheKey(courseID)

	if s.rdb != nil {
		if raw, err := s.rdb.Get(ctx, key).Result(); err == nil {
			var metas []lessonMeta
			if json.Unmarshal([]byte(raw), &metas) == nil {
				return metas, nil
			}
		}
	}

	lessons, err := s.lessonRepo.ListActiveByCourse(courseID)
	if err != nil {
		return nil, err
	}
	metas := make([]lessonMeta, 0, len(lessons))
	for _, l := range lessons {
		metas = append(metas, lessonMeta{
			LessonID:     l.ID,
			Title:        l.Title,
			Order:        l.Order,
			Duration:     l.Duration,
			HasVideo:     l.HasVideo(),
			HasExercises: l.HasExercises(),
		})
	}

	if s.rdb != nil {
		if raw, err := json.Marshal(metas); err == nil {
			if err := s.rdb.Set(ctx, key, raw, lessonCacheTTL).Err(); err != nil {
				logger.Log.Warn("lesson cache write failed", zap.Uint("course", courseID), zap.Error(err))
			}
		}
	}
	return metas, nil
}

func (s *CourseService) invalidateLessonCache(courseID uint) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(context.Background(), lessonCacheKey(courseID)).Err(); err != nil {
		logger.Log.Warn("lesson cache invalidation failed", zap.Uint("course", courseID), zap.Error(err))
	}
}

func lessonCacheKey(courseID uint) string {
	return fmt.Sprintf("lms:course:%d:lessons", courseID)
}

// GetLesson 学生查看单个课时详情（练习题答案不在该接口下发）
func (s *CourseService) GetLesson(studentID, lessonID uint) (*model.Lesson, error) {
	lesson, err := s.lessonRepo.FindActiveByID(lessonID)
	if err != nil {
		return nil, err
	}
	enrollment, err := s.enrollmentRepo.FindActive(studentID, lesson.CourseID)
	if err != nil {
		return nil, err
	}
	if enrollment == nil {
		return nil, util.ErrNotEnrolled
	}
	return lesson, nil
}

type LessonInput struct {
	Title             string                 `json:"title" binding:"required,max=255"`
	Order             int                    `json:"order" binding:"required,min=1"`
	Description       string                 `json:"description"`
	Content           string                 `json:"content"`
	Duration          int                    `json:"duration"`
	VideoURL          string                 `json:"videoUrl"`
	VideoRequirements map[string]interface{} `json:"videoRequirements"`
	Exercise          json.RawMessage        `json:"exercise"`
}

// CreateLesson 老师新增课时，本地视频自动探测时长
func (s *CourseService) CreateLesson(teacherID, courseID uint, input LessonInput) (*model.Lesson, error) {
	course, err := s.GetCourse(courseID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeTeacher(teacherID, course); err != nil {
		return nil, err
	}

	lesson := &model.Lesson{
		CourseID:    courseID,
		Title:       input.Title,
		Order:       input.Order,
		Description: input.Description,
		Content:     input.Content,
		Duration:    input.Duration,
		IsActive:    true,
		VideoURL:    input.VideoURL,
	}
	applyLessonMedia(lesson, input, s.mediaRoot)

	if err := s.lessonRepo.Create(lesson); err != nil {
		return nil, err
	}
	s.invalidateLessonCache(courseID)
	return lesson, nil
}

// UpdateLesson 老师修改课时
func (s *CourseService) UpdateLesson(teacherID, lessonID uint, input LessonInput) (*model.Lesson, error) {
	lesson, err := s.lessonRepo.FindActiveByID(lessonID)
	if err != nil {
		return nil, err
	}
	course, err := s.GetCourse(lesson.CourseID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeTeacher(teacherID, course); err != nil {
		return nil, err
	}

	lesson.Title = input.Title
	lesson.Order = input.Order
	lesson.Description = input.Description
	lesson.Content = input.Content
	if input.Duration > 0 {
		lesson.Duration = input.Duration
	}
	lesson.VideoURL = input.VideoURL
	applyLessonMedia(lesson, input, s.mediaRoot)

	if err := s.lessonRepo.Update(lesson); err != nil {
		return nil, err
	}
	s.invalidateLessonCache(lesson.CourseID)
	return lesson, nil
}

// DeleteLesson 删除课时，后续课时 order 自动补位
func (s *CourseService) DeleteLesson(teacherID, lessonID uint) error {
	lesson, err := s.lessonRepo.FindActiveByID(lessonID)
	if err != nil {
		return err
	}
	course, err := s.GetCourse(lesson.CourseID)
	if err != nil {
		return err
	}
	if err := s.authorizeTeacher(teacherID, course); err != nil {
		return err
	}
	if err := s.lessonRepo.Delete(lesson); err != nil {
		return err
	}
	s.invalidateLessonCache(lesson.CourseID)
	return nil
}

// ReorderLessons 按给定 id 顺序整体重排
func (s *CourseService) ReorderLessons(teacherID, courseID uint, lessonIDs []uint) error {
	course, err := s.GetCourse(courseID)
	if err != nil {
		return err
	}
	if err := s.authorizeTeacher(teacherID, course); err != nil {
		return err
	}
	if err := s.lessonRepo.Reorder(courseID, lessonIDs); err != nil {
		return err
	}
	s.invalidateLessonCache(courseID)
	return nil
}

func (s *CourseService) authorizeTeacher(teacherID uint, course *model.Course) error {
	if course.TeacherID == nil || *course.TeacherID != teacherID {
		return util.ErrNotCourseTeacher
	}
	return nil
}

// applyLessonMedia 回填练习题/视频要求/本地视频时长
func applyLessonMedia(lesson *model.Lesson, input LessonInput, mediaRoot string) {
	if input.Exercise != nil {
		lesson.Exercise = datatypes.JSON(input.Exercise)
	}
	if input.VideoRequirements != nil {
		lesson.VideoRequirements = input.VideoRequirements
	}

	if lesson.VideoURL == "" {
		lesson.VideoDuration = 0
		return
	}
	lesson.CleanVideoURL()
	if lesson.DetectVideoSource() != model.VideoSourceLocal || mediaRoot == "" {
		return
	}

	path := mediaRoot + strings.TrimPrefix(lesson.VideoURL, "/media")
	info, err := util.ProbeVideo(path)
	if err != nil {
		logger.Log.Warn("video probe failed", zap.String("path", path), zap.Error(err))
		return
	}
	lesson.VideoDuration = int(info.Duration)
}

// Enroll 学生报名课程，进入 pending 状态等待老师审批
func (s *CourseService) Enroll(studentID, courseID uint, notes string) (*model.Enrollment, error) {
	if _, err := s.GetCourse(courseID); err != nil {
		return nil, err
	}

	existing, err := s.enrollmentRepo.Find(studentID, courseID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Status == model.EnrollmentDeclined {
			existing.Status = model.EnrollmentPending
			existing.Notes = notes
			if err := s.enrollmentRepo.Save(existing); err != nil {
				return nil, err
			}
			return existing, nil
		}
		return nil, util.ErrAlreadyEnrolled
	}

	enrollment := &model.Enrollment{
		StudentID: studentID,
		CourseID:  courseID,
		Status:    model.EnrollmentPending,
		Notes:     notes,
	}
	if err := s.enrollmentRepo.Create(enrollment); err != nil {
		return nil, err
	}
	logger.Log.Info("enrollment requested", zap.Uint("student", studentID), zap.Uint("course", courseID))
	return enrollment, nil
}

// ReviewEnrollment 老师审批报名（approve/decline）
func (s *CourseService) ReviewEnrollment(teacherID, enrollmentID uint, approve bool) (*model.Enrollment, error) {
	enrollment, err := s.enrollmentRepo.FindByID(enrollmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrEnrollmentNotFound
		}
		return nil, err
	}
	course, err := s.GetCourse(enrollment.CourseID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeTeacher(teacherID, course); err != nil {
		return nil, err
	}

	if approve {
		enrollment.Status = model.EnrollmentApproved
	} else {
		enrollment.Status = model.EnrollmentDeclined
	}
	if err := s.enrollmentRepo.Save(enrollment); err != nil {
		return nil, err
	}
	return enrollment, nil
}

func (s *CourseService) ListEnrollments(studentID uint) ([]model.Enrollment, error) {
	return s.enrollmentRepo.ListByStudent(studentID)
}

type LessonGrade struct {
	LessonID    uint       `json:"lessonId"`
	Score       float64    `json:"score"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt"`
}

type GradesSummary struct {
	CourseID     uint          `json:"courseId"`
	AverageScore float64       `json:"averageScore"`
	Lessons      []LessonGrade `json:"lessons"`
}

// GradesSummary 学生在课程内的逐课时得分与均分
func (s *CourseService) GradesSummary(studentID, courseID uint) (*GradesSummary, error) {
	enrollment, err := s.enrollmentRepo.FindActive(studentID, courseID)
	if err != nil {
		return nil, err
	}
	if enrollment == nil {
		return nil, util.ErrNotEnrolled
	}

	records, err := s.exerciseRepo.ListByStudentCourse(studentID, courseID)
	if err != nil {
		return nil, err
	}
	avg, err := s.exerciseRepo.AverageScore(studentID, courseID)
	if err != nil {
		return nil, err
	}

	summary := &GradesSummary{CourseID: courseID, AverageScore: avg}
	for _, r := range records {
		summary.Lessons = append(summary.Lessons, LessonGrade{
			LessonID:    r.LessonID,
			Score:       r.Score,
			Completed:   r.Completed,
			CompletedAt: r.CompletedAt,
		})
	}
	return summary, nil
}

func (s *CourseService) ListCertificates(studentID uint) ([]model.Certificate, error) {
	return s.certRepo.ListByStudent(studentID)
}
