package service

import (
	"strings"
	"time"

	"lms_backend/internal/model"
	"lms_backend/internal/repository"
	"lms_backend/internal/util"
	"lms_backend/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LessonService 答题与计分：分数始终等于"当前处于答对状态的不同题目数"，
// 与提交次数无关；追问加分走 additional_data 旁路，不影响主分数与完成判定。
type LessonService struct {
	lessonRepo     *repository.LessonRepository
	enrollmentRepo *repository.EnrollmentRepository
	exerciseRepo   *repository.StudentExerciseRepository
	db             *gorm.DB
	locks          *keyedMutex
}

func NewLessonService(
	lessonRepo *repository.LessonRepository,
	enrollmentRepo *repository.EnrollmentRepository,
	exerciseRepo *repository.StudentExerciseRepository,
	db *gorm.DB,
) *LessonService {
	return &LessonService{
		lessonRepo:     lessonRepo,
		enrollmentRepo: enrollmentRepo,
		exerciseRepo:   exerciseRepo,
		db:             db,
		locks:          newKeyedMutex(),
	}
}

type SubmitAnswerResult struct {
	QuestionID         string      `json:"questionId"`
	SubmittedAnswer    interface{} `json:"submittedAnswer"`
	IsCorrect          bool        `json:"isCorrect"`
	Score              float64     `json:"score"`
	TotalQuestions     int         `json:"totalQuestions"`
	CompletedQuestions int         `json:"completedQuestions"`
	LessonCompleted    bool        `json:"lessonCompleted"`
	CompletedAt        *time.Time  `json:"completedAt"`
	CorrectAnswer      interface{} `json:"correctAnswer,omitempty"` // 答错且非简答题时回传
}

// SubmitAnswer 提交单题答案并更新累计分数。
// 新答对 +1，已答对改错 -1（下限 0），其余不变；全部题目处于答对状态时闩住 completed。
func (s *LessonService) SubmitAnswer(studentID, lessonID uint, questionID string, answer interface{}) (*SubmitAnswerResult, error) {
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

	if answer == nil {
		return nil, util.ErrAnswerRequired
	}

	questions := ParseExercises(lesson.Exercise)
	question, found := findQuestion(questions, questionID)
	if !found {
		return nil, util.ErrQuestionNotFound
	}

	isCorrect, correctAnswer, err := GradeAnswer(question, answer)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(studentID, lessonID)
	defer unlock()

	var result *SubmitAnswerResult
	err = s.db.Transaction(func(tx *gorm.DB) error {
		se, err := s.exerciseRepo.GetOrCreateForUpdate(tx, studentID, lessonID)
		if err != nil {
			return err
		}

		wasCorrect := se.WasCorrect(question.ID)

		if se.SubmissionData == nil {
			se.SubmissionData = map[string]interface{}{}
		}
		se.SubmissionData[question.ID] = map[string]interface{}{
			"answer":        answer,
			"is_correct":    isCorrect,
			"submitted_at":  time.Now().Format(time.RFC3339),
			"question_type": string(question.Type),
		}

		switch {
		case isCorrect && !wasCorrect:
			se.Score += 1.0
		case !isCorrect && wasCorrect:
			se.Score = max(0, se.Score-1.0)
		}

		totalQuestions := len(questions)
		completedQuestions := countCorrect(questions, se)

		// 全部答对后闩住完成状态，completed_at 只盖一次章
		if totalQuestions > 0 && completedQuestions >= totalQuestions {
			se.Completed = true
			if se.CompletedAt == nil {
				now := time.Now()
				se.CompletedAt = &now
			}
		}

		if err := tx.Save(se).Error; err != nil {
			return err
		}

		result = &SubmitAnswerResult{
			QuestionID:         question.ID,
			SubmittedAnswer:    answer,
			IsCorrect:          isCorrect,
			Score:              se.Score,
			TotalQuestions:     totalQuestions,
			CompletedQuestions: completedQuestions,
			LessonCompleted:    se.Completed,
			CompletedAt:        se.CompletedAt,
		}
		if !isCorrect && question.Type != QuestionParagraph {
			result.CorrectAnswer = correctAnswer
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("answer submitted",
		zap.Uint("student", studentID),
		zap.Uint("lesson", lessonID),
		zap.String("question", result.QuestionID),
		zap.Bool("correct", result.IsCorrect),
		zap.Float64("score", result.Score))

	return result, nil
}

type FollowUpResult struct {
	QuestionID      string      `json:"questionId"`
	SubmittedAnswer interface{} `json:"submittedAnswer"`
	CorrectAnswer   string      `json:"correctAnswer"`
	IsCorrect       bool        `json:"isCorrect"`
	Explanation     string      `json:"explanation"`
	Score           float64     `json:"score"`
	Completed       bool        `json:"completed"`
}

// SubmitFollowUp 提交追问题答案。答对一次性加 0.5 旁路加分，
// 重复提交不再累计，也从不扣分或影响 completed。
func (s *LessonService) SubmitFollowUp(studentID, lessonID uint, questionID string, answer interface{}) (*FollowUpResult, error) {
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

	if answer == nil {
		return nil, util.ErrAnswerRequired
	}

	questions := ParseExercises(lesson.Exercise)
	question, found := findQuestion(questions, questionID)
	if !found {
		return nil, util.ErrFollowUpNotFound
	}
	followUp := question.EffectiveFollowUp()
	if followUp == nil {
		return nil, util.ErrFollowUpNotFound
	}

	isCorrect := strings.EqualFold(
		strings.TrimSpace(strconvFormat(answer)),
		strings.TrimSpace(followUp.CorrectAnswer),
	)

	unlock := s.locks.Lock(studentID, lessonID)
	defer unlock()

	var result *FollowUpResult
	err = s.db.Transaction(func(tx *gorm.DB) error {
		se, err := s.exerciseRepo.GetOrCreateForUpdate(tx, studentID, lessonID)
		if err != nil {
			return err
		}

		if se.AdditionalData == nil {
			se.AdditionalData = map[string]interface{}{}
		}

		key := "followup_" + question.ID
		alreadyCorrect := false
		if prev, ok := se.AdditionalData[key].(map[string]interface{}); ok {
			alreadyCorrect, _ = prev["correct"].(bool)
		}

		if isCorrect && !alreadyCorrect {
			se.Score += 0.5
		}

		se.AdditionalData[key] = map[string]interface{}{
			"answer":    answer,
			"correct":   isCorrect || alreadyCorrect,
			"timestamp": time.Now().Format(time.RFC3339),
		}

		if err := tx.Save(se).Error; err != nil {
			return err
		}

		result = &FollowUpResult{
			QuestionID:      question.ID,
			SubmittedAnswer: answer,
			CorrectAnswer:   followUp.CorrectAnswer,
			IsCorrect:       isCorrect,
			Explanation:     followUp.Explanation,
			Score:           se.Score,
			Completed:       se.Completed,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type ExerciseProgress struct {
	TotalQuestions     int                    `json:"totalQuestions"`
	CompletedQuestions int                    `json:"completedQuestions"`
	Score              float64                `json:"score"`
	CompletionScore    float64                `json:"completionScore"` // 0.0-1.0
	Completed          bool                   `json:"completed"`
	CompletedAt        *time.Time             `json:"completedAt"`
	Submissions        map[string]interface{} `json:"submissions"`
}

// GetExerciseProgress 当前练习进度快照
func (s *LessonService) GetExerciseProgress(studentID, lessonID uint) (*ExerciseProgress, error) {
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

	questions := ParseExercises(lesson.Exercise)
	se, err := s.exerciseRepo.Find(studentID, lessonID)
	if err != nil {
		return nil, err
	}

	progress := &ExerciseProgress{
		TotalQuestions: len(questions),
		Submissions:    map[string]interface{}{},
	}
	if se != nil {
		progress.CompletedQuestions = countCorrect(questions, se)
		progress.Score = se.Score
		progress.Completed = se.Completed
		progress.CompletedAt = se.CompletedAt
		for _, q := range questions {
			if sub, ok := se.Submission(q.ID); ok {
				progress.Submissions[q.ID] = sub
			}
		}
	}
	progress.CompletionScore = ExerciseCompletionScore(questions, se)
	return progress, nil
}

// findQuestion 按 id 查找题目
func findQuestion(questions []Question, questionID string) (Question, bool) {
	for _, q := range questions {
		if q.ID == questionID {
			return q, true
		}
	}
	return Question{}, false
}

// countCorrect 当前处于答对状态的不同题目数
func countCorrect(questions []Question, se *model.StudentExercise) int {
	if se == nil {
		return 0
	}
	count := 0
	for _, q := range questions {
		if se.WasCorrect(q.ID) {
			count++
		}
	}
	return count
}

// ExerciseCompletionScore 练习完成度（答对题数 / 总题数），没有题目视为 1.0
func ExerciseCompletionScore(questions []Question, se *model.StudentExercise) float64 {
	if len(questions) == 0 {
		return 1.0
	}
	return float64(countCorrect(questions, se)) / float64(len(questions))
}
