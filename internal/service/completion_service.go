package service

import (
	"fmt"
	"math"
	"time"

	"lms_backend/internal/model"
	"lms_backend/internal/repository"
	"lms_backend/internal/util"
	"lms_backend/pkg/logger"
	"lms_backend/pkg/monitoring"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CompletionService 课时完成闸门与课程进度聚合。
// 标记完成前按课时自身的 video_requirements 重新校验，
// 不直接信任上报侧已写入的 video_completed 标志。
type CompletionService struct {
	courseRepo     *repository.CourseRepository
	lessonRepo     *repository.LessonRepository
	enrollmentRepo *repository.EnrollmentRepository
	exerciseRepo   *repository.StudentExerciseRepository
	progressRepo   *repository.LessonProgressRepository
	certRepo       *repository.CertificateRepository
	db             *gorm.DB
	locks          *keyedMutex
}

func NewCompletionService(
	courseRepo *repository.CourseRepository,
	lessonRepo *repository.LessonRepository,
	enrollmentRepo *repository.EnrollmentRepository,
	exerciseRepo *repository.StudentExerciseRepository,
	progressRepo *repository.LessonProgressRepository,
	certRepo *repository.CertificateRepository,
	db *gorm.DB,
) *CompletionService {
	return &CompletionService{
		courseRepo:     courseRepo,
		lessonRepo:     lessonRepo,
		enrollmentRepo: enrollmentRepo,
		exerciseRepo:   exerciseRepo,
		progressRepo:   progressRepo,
		certRepo:       certRepo,
		db:             db,
		locks:          newKeyedMutex(),
	}
}

// RequirementsNotMetError 完成条件未满足，Missing 列出每一项未达标原因
type RequirementsNotMetError struct {
	Missing []string
}

func (e *RequirementsNotMetError) Error() string {
	return "lesson requirements not met"
}

// CheckRequirements 课时完成条件校验。
// 视频课时要求观看记录存在且 video_completed 为真，并按课时配置复核
// 互动评分与观看覆盖率；练习课时要求全部题目处于答对状态。
// 两类内容都没有的课时视为无条件可完成。
func (s *CompletionService) CheckRequirements(studentID uint, lesson *model.Lesson) (bool, []string, error) {
	var missing []string

	if lesson.HasVideo() {
		req := lesson.GetVideoRequirements()
		lp, err := s.progressRepo.Find(studentID, lesson.ID)
		if err != nil {
			return false, nil, err
		}
		switch {
		case lp == nil || !lp.VideoCompleted:
			missing = append(missing, "video_completion")
		default:
			if lp.EngagementScore() < req.MinEngagementScore {
				missing = append(missing, fmt.Sprintf("video_engagement (score: %.1f/%.1f)",
					lp.EngagementScore(), req.MinEngagementScore))
			}
			if lp.WatchedPercentage() < req.MinWatchPercentage {
				missing = append(missing, fmt.Sprintf("video_watch_percentage (%.1f%%/%.1f%%)",
					lp.WatchedPercentage(), req.MinWatchPercentage))
			}
		}
	}

	if lesson.HasExercises() {
		questions := ParseExercises(lesson.Exercise)
		se, err := s.exerciseRepo.Find(studentID, lesson.ID)
		if err != nil {
			return false, nil, err
		}
		if score := ExerciseCompletionScore(questions, se); score < 1.0 {
			missing = append(missing, fmt.Sprintf("exercise_completion (%.0f%%)", score*100))
		}
	}

	return len(missing) == 0, missing, nil
}

type MarkCompleteRequest struct {
	Score      float64 `json:"score" binding:"min=0"`
	Reflection string  `json:"reflection"`
}

type LessonCompletionState struct {
	LessonID  uint   `json:"lessonId"`
	Title     string `json:"title"`
	Order     int    `json:"order"`
	Completed bool   `json:"completed"`
}

type MarkCompleteResult struct {
	LessonID       uint                    `json:"lessonId"`
	Completed      bool                    `json:"completed"`
	CompletedAt    *time.Time              `json:"completedAt"`
	Score          float64                 `json:"score"`
	CourseProgress float64                 `json:"courseProgress"`
	UpdatedLessons []LessonCompletionState `json:"updatedLessons"`
}

// MarkCompleted 标记课时完成。
// 未报名 403，条件未满足 400，重复标记幂等返回首次结果且 completed_at 不变。
func (s *CompletionService) MarkCompleted(studentID, lessonID uint, req MarkCompleteRequest) (*MarkCompleteResult, error) {
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

	unlock := s.locks.Lock(studentID, lessonID)
	defer unlock()

	var se *model.StudentExercise
	newlyCompleted := false
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		se, err = s.exerciseRepo.GetOrCreateForUpdate(tx, studentID, lessonID)
		if err != nil {
			return err
		}

		// 已完成的课时幂等返回，不覆盖分数与时间戳
		if se.Completed {
			return nil
		}

		met, missing, err := s.CheckRequirements(studentID, lesson)
		if err != nil {
			return err
		}
		if !met {
			return &RequirementsNotMetError{Missing: missing}
		}

		// 前端可随完成请求带分数，0 分视为未计分课时记满 1.0
		if req.Score > 0 {
			se.Score = req.Score
		} else if se.Score <= 0 {
			se.Score = 1.0
		}

		now := time.Now()
		se.Completed = true
		se.CompletedAt = &now
		newlyCompleted = true

		if se.SubmissionData == nil {
			se.SubmissionData = map[string]interface{}{}
		}
		se.SubmissionData["completion_timestamp"] = now.Format(time.RFC3339)
		se.SubmissionData["total_questions"] = len(ParseExercises(lesson.Exercise))
		se.SubmissionData["requirements_met"] = true
		if req.Reflection != "" {
			se.SubmissionData["reflection"] = req.Reflection
		}

		return tx.Save(se).Error
	})
	if err != nil {
		return nil, err
	}

	result, err := s.buildCompletionResult(studentID, lesson, se)
	if err != nil {
		return nil, err
	}

	// 幂等重放不再重复计数、记日志或触发结课流程
	if newlyCompleted {
		monitoring.LessonCompletions.WithLabelValues(fmt.Sprint(lesson.CourseID)).Inc()
		logger.Log.Info("lesson completed",
			zap.Uint("student", studentID),
			zap.Uint("lesson", lessonID),
			zap.Float64("score", se.Score),
			zap.Float64("courseProgress", result.CourseProgress))

		if err := s.finalizeCourse(studentID, lesson.CourseID, enrollment, result.CourseProgress); err != nil {
			// 证书签发失败不回滚课时完成
			logger.Log.Error("course finalization failed",
				zap.Uint("student", studentID),
				zap.Uint("course", lesson.CourseID),
				zap.Error(err))
		}
	}

	return result, nil
}

// CourseProgressForStudent 带报名校验的课程进度查询
func (s *CompletionService) CourseProgressForStudent(studentID, courseID uint) (float64, error) {
	enrollment, err := s.enrollmentRepo.FindActive(studentID, courseID)
	if err != nil {
		return 0, err
	}
	if enrollment == nil {
		return 0, util.ErrNotEnrolled
	}
	return s.CourseProgress(studentID, courseID)
}

// CourseProgress 课程完成百分比 = 已完成启用课时 / 启用课时总数，保留一位小数，
// 空课程为 0。每次调用按当前课时集合即时重算，课时增删后自动摊薄或提升。
func (s *CompletionService) CourseProgress(studentID, courseID uint) (float64, error) {
	total, err := s.courseRepo.CountActiveLessons(courseID)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	completed, err := s.exerciseRepo.CompletedLessonIDs(studentID, courseID)
	if err != nil {
		return 0, err
	}
	return math.Round(1000*float64(len(completed))/float64(total)) / 10, nil
}

func (s *CompletionService) buildCompletionResult(studentID uint, lesson *model.Lesson, se *model.StudentExercise) (*MarkCompleteResult, error) {
	lessons, err := s.lessonRepo.ListActiveByCourse(lesson.CourseID)
	if err != nil {
		return nil, err
	}
	completedIDs, err := s.exerciseRepo.CompletedLessonIDs(studentID, lesson.CourseID)
	if err != nil {
		return nil, err
	}

	result := &MarkCompleteResult{
		LessonID:    lesson.ID,
		Completed:   se.Completed,
		CompletedAt: se.CompletedAt,
		Score:       se.Score,
	}
	for _, l := range lessons {
		result.UpdatedLessons = append(result.UpdatedLessons, LessonCompletionState{
			LessonID:  l.ID,
			Title:     l.Title,
			Order:     l.Order,
			Completed: completedIDs[l.ID],
		})
	}

	total := len(lessons)
	if total > 0 {
		result.CourseProgress = math.Round(1000*float64(len(completedIDs))/float64(total)) / 10
	}
	return result, nil
}

// finalizeCourse 课程进度到 100% 时把报名状态推进为 completed 并签发证书
func (s *CompletionService) finalizeCourse(studentID, courseID uint, enrollment *model.Enrollment, progress float64) error {
	if progress < 100 {
		return nil
	}

	if enrollment.Status != model.EnrollmentCompleted {
		enrollment.Status = model.EnrollmentCompleted
		if err := s.enrollmentRepo.Save(enrollment); err != nil {
			return err
		}
	}

	cert, err := s.certRepo.Find(studentID, courseID)
	if err != nil {
		return err
	}
	if cert != nil {
		return nil
	}

	grade, err := s.exerciseRepo.AverageScore(studentID, courseID)
	if err != nil {
		return err
	}
	cert = &model.Certificate{
		StudentID: studentID,
		CourseID:  courseID,
		Grade:     grade,
		IsActive:  true,
	}
	if err := s.certRepo.Create(cert); err != nil {
		return err
	}
	logger.Log.Info("certificate issued",
		zap.Uint("student", studentID),
		zap.Uint("course", courseID),
		zap.String("certificate", cert.CertificateID),
		zap.Float64("grade", grade))
	return nil
}
