package service

import (
	"fmt"
	"sync"
	"testing"

	"lms_backend/internal/model"
	"lms_backend/internal/util"
	"lms_backend/pkg/monitoring"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCompletionTest(t *testing.T) (*testFixture, *model.User, *model.Course) {
	f := newFixture(t)
	teacher := createUser(t, f.db, model.Teacher)
	student := createUser(t, f.db, model.Student)
	course := createCourse(t, f.db, teacher.ID)
	enrollStudent(t, f.db, student.ID, course.ID, model.EnrollmentApproved)
	return f, student, course
}

func completeExercises(t *testing.T, f *testFixture, studentID uint, lesson *model.Lesson) {
	t.Helper()
	svc := f.lessonService()
	for _, q := range ParseExercises(lesson.Exercise) {
		_, err := svc.SubmitAnswer(studentID, lesson.ID, q.ID, 1)
		require.NoError(t, err)
	}
}

func completeVideo(t *testing.T, f *testFixture, studentID uint, lessonID uint, score, watched float64) {
	t.Helper()
	_, err := f.videoService().ReportProgress(studentID, lessonID, VideoProgressReport{
		Position:       600,
		Duration:       600,
		EngagementData: engagement(score, watched),
	})
	require.NoError(t, err)
}

func TestCheckRequirementsNoContent(t *testing.T) {
	f, student, course := setupCompletionTest(t)
	lesson := createLesson(t, f.db, course.ID, lessonOpts{order: 1})

	met, missing, err := f.completionService().CheckRequirements(student.ID, lesson)
	require.NoError(t, err)
	assert.True(t, met)
	assert.Empty(t, missing)
}

func TestCheckRequirementsVideoNotWatched(t *testing.T) {
	f, student, course := setupCompletionTest(t)
	lesson := createLesson(t, f.db, course.ID, lessonOpts{order: 1, videoURL: "https://example.com/v.mp4"})

	met, missing, err := f.completionService().CheckRequirements(student.ID, lesson)
	require.NoError(t, err)
	assert.False(t, met)
	assert.Contains(t, missing, "video_completion")
}

func TestCheckRequirementsLessonThresholdStricterThanTracker(t *testing.T) {
	f, student, course := setupCompletionTest(t)
	// 上报侧 85% 即标记看完，但课时自身要求 90%：两道闸门独立生效
	lesson := createLesson(t, f.db, course.ID, lessonOpts{
		order:    1,
		videoURL: "https://example.com/v.mp4",
	})
	completeVideo(t, f, student.ID, lesson.ID, 8, 87)

	met, missing, err := f.completionService().CheckRequirements(student.ID, lesson)
	require.NoError(t, err)
	assert.False(t, met)
	require.Len(t, missing, 1)
	assert.Contains(t, missing[0], "video_watch_percentage")
}

func TestCheckRequirementsCustomLessonThresholds(t *testing.T) {
	f, student, course := setupCompletionTest(t)
	lesson := createLesson(t, f.db, course.ID, lessonOpts{
		order:     1,
		videoURL:  "https://example.com/v.mp4",
		videoReqs: map[string]interface{}{"min_watch_percentage": 85.0, "min_engagement_score": 9.0},
	})
	completeVideo(t, f, student.ID, lesson.ID, 8, 87)

	met, missing, err := f.completionService().CheckRequirements(student.ID, lesson)
	require.NoError(t, err)
	assert.False(t, met)
	require.Len(t, missing, 1)
	assert.Contains(t, missing[0], "video_engagement")
}

func TestCheckRequirementsExercisesIncomplete(t *testing.T) {
	f, student, course := setupCompletionTest(t)
	lesson := createLesson(t, f.db, course.ID, lessonOpts{order: 1, exercise: twoQuestionExercise})

	_, err := f.lessonService().SubmitAnswer(student.ID, lesson.ID, "q1", 1)
	require.NoError(t, err)

	met, missing, err := f.completionService().CheckRequirements(student.ID, lesson)
	require.NoError(t, err)
	assert.False(t, met)
	require.Len(t, missing, 1)
	assert.Contains(t, missing[0], "exercise_completion")
}

func TestMarkCompletedHappyPath(t *testing.T) {
	f, student, course := setupCompletionTest(t)
	createLesson(t, f.db, course.ID, lessonOpts{order: 2})
	lesson := createLesson(t, f.db, course.ID, lessonOpts{order: 1, exercise: twoQuestionExercise})
	completeExercises(t, f, student.ID, lesson)

	result, err := f.completionService().MarkCompleted(student.ID, lesson.ID, MarkCompleteRequest{})
	require.NoError(t, err)
	assert.True(t, result.Completed)
	assert.NotNil(t, result.CompletedAt)
	// 答题积累的分数被保留
	assert.Equal(t, 2.0, result.Score)
	// 2 课时完成 1 个
	assert.Equal(t, 50.0, result.CourseProgress)
	require.Len(t, result.UpdatedLessons, 2)

	for _, l := range result.UpdatedLessons {
		if l.LessonID == lesson.ID {
			assert.True(t, l.Completed)
		} else {
			assert.False(t, l.Completed)
		}
	}
}

func TestMarkCompletedDefaultScore(t *testing.T) {
	f, student, course := setupCompletionTest(t)
	lesson := createLesson(t, f.db, course.ID, lessonOpts{order: 1})

	// 没有练习的课时完成时补记满分 1.0
	result, err := f.completionService().MarkCompleted(student.ID, lesson.ID, MarkCompleteRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.Score)

	se, err := f.exerciseRepo.Find(student.ID, lesson.ID)
	require.NoError(t, err)
	require.NotNil(t, se)
	assert.Equal(t, true, se.SubmissionData["requirements_met"])
	assert.NotEmpty(t, se.SubmissionData["completion_timestamp"])
}

func TestMarkCompletedSubmittedScoreWins(t *testing.T) {
	f, student, course := setupCompletionTest(t)
	lesson := createLesson(t, f.db, course.ID, lessonOpts{order: 1})

	result, err := f.completionService().MarkCompleted(student.ID, lesson.ID,
		MarkCompleteRequest{Score: 3.5, Reflection: "good lesson"})
	require.NoError(t, err)
	assert.Equal(t, 3.5, result.Score)

	se, err := f.exerciseRepo.Find(student.ID, lesson.ID)
	require.NoError(t, err)
	assert.Equal(t, "good lesson", se.SubmissionData["reflection"])
}

func TestMarkCompletedIdempotent(t *testing.T) {
	f, student, course := setupCompletionTest(t)
	createLesson(t, f.db, course.ID, lessonOpts{order: 2})
	lesson := createLesson(t, f.db, course.ID, lessonOpts{order: 1})

	svc := f.completionService()
	first, err := svc.MarkCompleted(student.ID, lesson.ID, MarkCompleteRequest{Score: 2.0})
	require.NoError(t, err)

	// 重复标记不会改分数也不会刷新时间戳
	second, err := svc.MarkCompleted(student.ID, lesson.ID, MarkCompleteRequest{Score: 5.0})
	require.NoError(t, err)
	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, first.CompletedAt.Unix(), second.CompletedAt.Unix())
	assert.Equal(t, first.CourseProgress, second.CourseProgress)
}

func TestMarkCompletedRequirementsNotMet(t *testing.T) {
	f, student, course := setupCompletionTest(t)
	lesson := createLesson(t, f.db, course.ID, lessonOpts{order: 1, exercise: twoQuestionExercise})

	_, err := f.completionService().MarkCompleted(student.ID, lesson.ID, MarkCompleteRequest{})
	var unmet *RequirementsNotMetError
	require.ErrorAs(t, err, &unmet)
	assert.NotEmpty(t, unmet.Missing)

	// 失败的标记不会留下完成状态
	se, err := f.exerciseRepo.Find(student.ID, lesson.ID)
	require.NoError(t, err)
	if se != nil {
		assert.False(t, se.Completed)
	}
}

func TestMarkCompletedNotEnrolled(t *testing.T) {
	f, _, course := setupCompletionTest(t)
	lesson := createLesson(t, f.db, course.ID, lessonOpts{order: 1})

	outsider := createUser(t, f.db, model.Student)
	_, err := f.completionService().MarkCompleted(outsider.ID, lesson.ID, MarkCompleteRequest{})
	assert.ErrorIs(t, err, util.ErrNotEnrolled)
}

func TestCourseProgressRounding(t *testing.T) {
	f, student, course := setupCompletionTest(t)
	l1 := createLesson(t, f.db, course.ID, lessonOpts{order: 1})
	l2 := createLesson(t, f.db, course.ID, lessonOpts{order: 2})
	createLesson(t, f.db, course.ID, lessonOpts{order: 3})

	svc := f.completionService()
	progress, err := svc.CourseProgress(student.ID, course.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, progress)

	_, err = svc.MarkCompleted(student.ID, l1.ID, MarkCompleteRequest{})
	require.NoError(t, err)
	_, err = svc.MarkCompleted(student.ID, l2.ID, MarkCompleteRequest{})
	require.NoError(t, err)

	// 2/3 保留一位小数
	progress, err = svc.CourseProgress(student.ID, course.ID)
	require.NoError(t, err)
	assert.Equal(t, 66.7, progress)
}

func TestCourseProgressEmptyCourse(t *testing.T) {
	f, student, course := setupCompletionTest(t)

	progress, err := f.completionService().CourseProgress(student.ID, course.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, progress)
}

func TestCourseProgressDilutedByNewLesson(t *testing.T) {
	f, student, course := setupCompletionTest(t)
	l1 := createLesson(t, f.db, course.ID, lessonOpts{order: 1})

	svc := f.completionService()
	_, err := svc.MarkCompleted(student.ID, l1.ID, MarkCompleteRequest{})
	require.NoError(t, err)

	progress, err := svc.CourseProgress(student.ID, course.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, progress)

	// 老师新增课时后进度即时摊薄
	createLesson(t, f.db, course.ID, lessonOpts{order: 2})
	progress, err = svc.CourseProgress(student.ID, course.ID)
	require.NoError(t, err)
	assert.Equal(t, 50.0, progress)
}

func TestCertificateIssuedOnFullCompletion(t *testing.T) {
	f, student, course := setupCompletionTest(t)
	l1 := createLesson(t, f.db, course.ID, lessonOpts{order: 1})
	l2 := createLesson(t, f.db, course.ID, lessonOpts{order: 2})

	svc := f.completionService()
	_, err := svc.MarkCompleted(student.ID, l1.ID, MarkCompleteRequest{Score: 2.0})
	require.NoError(t, err)

	cert, err := f.certRepo.Find(student.ID, course.ID)
	require.NoError(t, err)
	assert.Nil(t, cert)

	result, err := svc.MarkCompleted(student.ID, l2.ID, MarkCompleteRequest{Score: 4.0})
	require.NoError(t, err)
	require.Equal(t, 100.0, result.CourseProgress)

	cert, err = f.certRepo.Find(student.ID, course.ID)
	require.NoError(t, err)
	require.NotNil(t, cert)
	assert.NotEmpty(t, cert.CertificateID)
	assert.Equal(t, 3.0, cert.Grade)

	// 报名状态推进为 completed
	enrollment, err := f.enrollmentRepo.Find(student.ID, course.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EnrollmentCompleted, enrollment.Status)
	assert.NotNil(t, enrollment.CompletedAt)
}

func TestMarkCompletedConcurrentRequests(t *testing.T) {
	f, student, course := setupCompletionTest(t)
	createLesson(t, f.db, course.ID, lessonOpts{order: 2})
	lesson := createLesson(t, f.db, course.ID, lessonOpts{order: 1})

	// 网络重试或连点会让同一课时的标记请求并发到达，
	// 锁加幂等检查要保证只有一次真正写入
	svc := f.completionService()
	results := make([]*MarkCompleteResult, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.MarkCompleted(student.ID, lesson.ID, MarkCompleteRequest{Score: 2.0})
		}(i)
	}
	wg.Wait()

	for i := 0; i < 2; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i].CompletedAt)
		assert.True(t, results[i].Completed)
	}
	assert.Equal(t, results[0].CompletedAt.UnixNano(), results[1].CompletedAt.UnixNano())

	var rows int64
	require.NoError(t, f.db.Model(&model.StudentExercise{}).
		Where("student_id = ? AND lesson_id = ?", student.ID, lesson.ID).
		Count(&rows).Error)
	assert.Equal(t, int64(1), rows)
}

func TestMarkCompletedCountsCompletionOnce(t *testing.T) {
	f, student, course := setupCompletionTest(t)
	createLesson(t, f.db, course.ID, lessonOpts{order: 2})
	lesson := createLesson(t, f.db, course.ID, lessonOpts{order: 1})

	counter := monitoring.LessonCompletions.WithLabelValues(fmt.Sprint(course.ID))
	before := testutil.ToFloat64(counter)

	svc := f.completionService()
	_, err := svc.MarkCompleted(student.ID, lesson.ID, MarkCompleteRequest{Score: 2.0})
	require.NoError(t, err)
	_, err = svc.MarkCompleted(student.ID, lesson.ID, MarkCompleteRequest{Score: 2.0})
	require.NoError(t, err)

	// 幂等重放不计入完成事件
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}
