package service

import (
	"time"

	"lms_backend/internal/model"
	"lms_backend/internal/repository"
	"lms_backend/internal/util"
	"lms_backend/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 上报侧完成判定的固定阈值，前端约定值，与课时自身的 video_requirements 无关
const (
	positionCompletionRatio  = 0.98 // 播放位置达到时长的 98%
	watchedPercentThreshold  = 85.0 // 实际观看覆盖率
	engagementScoreThreshold = 7.0  // 互动得分
)

type VideoService struct {
	lessonRepo     *repository.LessonRepository
	enrollmentRepo *repository.EnrollmentRepository
	progressRepo   *repository.LessonProgressRepository
	db             *gorm.DB
	locks          *keyedMutex
}

func NewVideoService(
	lessonRepo *repository.LessonRepository,
	enrollmentRepo *repository.EnrollmentRepository,
	progressRepo *repository.LessonProgressRepository,
	db *gorm.DB,
) *VideoService {
	return &VideoService{
		lessonRepo:     lessonRepo,
		enrollmentRepo: enrollmentRepo,
		progressRepo:   progressRepo,
		db:             db,
		locks:          newKeyedMutex(),
	}
}

type VideoProgressReport struct {
	Position       float64                `json:"position" binding:"min=0"`
	Duration       float64                `json:"duration" binding:"min=0"`
	EngagementData map[string]interface{} `json:"engagementData"`
	WatchPatterns  []interface{}          `json:"watchPatterns"`
	IsFinal        bool                   `json:"isFinal"` // 会话结束的最后一次心跳
}

type VideoProgressSnapshot struct {
	Position          float64                 `json:"position"`
	Duration          float64                 `json:"duration"`
	ProgressPercent   float64                 `json:"progressPercent"`
	WatchedPercent    float64                 `json:"watchedPercent"`
	EngagementScore   float64                 `json:"engagementScore"`
	VideoCompleted    bool                    `json:"videoCompleted"`
	CompletedAt       *time.Time              `json:"completedAt"`
	VideoRequirements model.VideoRequirements `json:"videoRequirements"`
}

// ReportProgress 接收播放器心跳并更新观看进度。
// 位置与时长只增不减（max 棘轮），video_completed 一旦为真不再回退。
func (s *VideoService) ReportProgress(studentID, lessonID uint, report VideoProgressReport) (*VideoProgressSnapshot, error) {
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

	var snapshot *VideoProgressSnapshot
	err = s.db.Transaction(func(tx *gorm.DB) error {
		lp, err := s.progressRepo.FindForUpdate(tx, studentID, lessonID)
		if err != nil {
			return err
		}
		if lp == nil {
			lp = &model.LessonProgress{
				StudentID: studentID,
				LessonID:  lessonID,
			}
		}

		if report.Position > lp.VideoProgress {
			lp.VideoProgress = report.Position
		}
		// 时长以最近一次非零上报为准
		if report.Duration > 0 {
			lp.VideoDuration = report.Duration
		}
		if report.EngagementData != nil {
			mergeEngagementData(lp, report.EngagementData)
		}
		if report.WatchPatterns != nil {
			lp.SetWatchPatterns(report.WatchPatterns)
		}
		if report.IsFinal {
			lp.SessionCount++
		}

		if !lp.VideoCompleted && videoCompleted(lp) {
			lp.VideoCompleted = true
			now := time.Now()
			lp.CompletedAt = &now
			logger.Log.Info("video completed",
				zap.Uint("student", studentID),
				zap.Uint("lesson", lessonID),
				zap.Float64("position", lp.VideoProgress),
				zap.Float64("duration", lp.VideoDuration))
		}

		if lp.ID == 0 {
			if err := tx.Create(lp).Error; err != nil {
				return err
			}
		} else if err := tx.Save(lp).Error; err != nil {
			return err
		}

		snapshot = buildSnapshot(lp, lesson)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// GetProgress 观看进度快照，未上报过时返回零值快照
func (s *VideoService) GetProgress(studentID, lessonID uint) (*VideoProgressSnapshot, error) {
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

	lp, err := s.progressRepo.Find(studentID, lessonID)
	if err != nil {
		return nil, err
	}
	if lp == nil {
		lp = &model.LessonProgress{StudentID: studentID, LessonID: lessonID}
	}
	return buildSnapshot(lp, lesson), nil
}

// videoCompleted 三个条件同时满足才算看完：
// 位置达标 && 覆盖率达标 && 互动达标，时长未知时永不判完
func videoCompleted(lp *model.LessonProgress) bool {
	if lp.VideoDuration <= 0 {
		return false
	}
	if lp.VideoProgress < positionCompletionRatio*lp.VideoDuration {
		return false
	}
	if lp.WatchedPercentage() < watchedPercentThreshold {
		return false
	}
	return lp.EngagementScore() >= engagementScoreThreshold
}

// mergeEngagementData 覆盖互动数据，但评分与覆盖率取新旧最大值，过期样本不回退进度
func mergeEngagementData(lp *model.LessonProgress, incoming map[string]interface{}) {
	prevScore := lp.EngagementScore()
	prevWatched := lp.WatchedPercentage()
	lp.EngagementData = incoming
	if lp.EngagementScore() < prevScore {
		lp.EngagementData["engagement_score"] = prevScore
	}
	if lp.WatchedPercentage() < prevWatched {
		lp.EngagementData["watched_percentage"] = prevWatched
	}
}

func buildSnapshot(lp *model.LessonProgress, lesson *model.Lesson) *VideoProgressSnapshot {
	snap := &VideoProgressSnapshot{
		Position:          lp.VideoProgress,
		Duration:          lp.VideoDuration,
		WatchedPercent:    lp.WatchedPercentage(),
		EngagementScore:   lp.EngagementScore(),
		VideoCompleted:    lp.VideoCompleted,
		CompletedAt:       lp.CompletedAt,
		VideoRequirements: lesson.GetVideoRequirements(),
	}
	if lp.VideoDuration > 0 {
		snap.ProgressPercent = 100 * lp.VideoProgress / lp.VideoDuration
	}
	return snap
}
