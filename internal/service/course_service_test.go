package service

import (
	"encoding/json"
	"testing"

	"lms_backend/internal/model"
	"lms_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCourseTest(t *testing.T) (*testFixture, *CourseService, *model.User, *model.User, *model.Course) {
	f := newFixture(t)
	teacher := createUser(t, f.db, model.Teacher)
	student := createUser(t, f.db, model.Student)
	course := createCourse(t, f.db, teacher.ID)
	return f, f.courseService(), teacher, student, course
}

func TestEnrollCreatesPending(t *testing.T) {
	_, svc, _, student, course := setupCourseTest(t)

	enrollment, err := svc.Enroll(student.ID, course.ID, "please let me in")
	require.NoError(t, err)
	assert.Equal(t, model.EnrollmentPending, enrollment.Status)

	_, err = svc.Enroll(student.ID, course.ID, "")
	assert.ErrorIs(t, err, util.ErrAlreadyEnrolled)
}

func TestEnrollAgainAfterDecline(t *testing.T) {
	f, svc, teacher, student, course := setupCourseTest(t)

	enrollment, err := svc.Enroll(student.ID, course.ID, "")
	require.NoError(t, err)

	_, err = svc.ReviewEnrollment(teacher.ID, enrollment.ID, false)
	require.NoError(t, err)

	// 被拒绝后允许重新申请，回到 pending
	again, err := svc.Enroll(student.ID, course.ID, "second try")
	require.NoError(t, err)
	assert.Equal(t, model.EnrollmentPending, again.Status)
	assert.Equal(t, enrollment.ID, again.ID)

	saved, err := f.enrollmentRepo.Find(student.ID, course.ID)
	require.NoError(t, err)
	assert.Equal(t, "second try", saved.Notes)
}

func TestReviewEnrollmentApprove(t *testing.T) {
	_, svc, teacher, student, course := setupCourseTest(t)

	enrollment, err := svc.Enroll(student.ID, course.ID, "")
	require.NoError(t, err)

	approved, err := svc.ReviewEnrollment(teacher.ID, enrollment.ID, true)
	require.NoError(t, err)
	assert.Equal(t, model.EnrollmentApproved, approved.Status)
}

func TestReviewEnrollmentWrongTeacher(t *testing.T) {
	f, svc, _, student, course := setupCourseTest(t)

	enrollment, err := svc.Enroll(student.ID, course.ID, "")
	require.NoError(t, err)

	other := createUser(t, f.db, model.Teacher)
	_, err = svc.ReviewEnrollment(other.ID, enrollment.ID, true)
	assert.ErrorIs(t, err, util.ErrNotCourseTeacher)
}

func TestListLessonsWithCompletionFlags(t *testing.T) {
	f, svc, _, student, course := setupCourseTest(t)
	l1 := createLesson(t, f.db, course.ID, lessonOpts{order: 1, exercise: twoQuestionExercise})
	createLesson(t, f.db, course.ID, lessonOpts{order: 2, videoURL: "https://example.com/v.mp4"})
	enrollStudent(t, f.db, student.ID, course.ID, model.EnrollmentApproved)

	completeExercises(t, f, student.ID, l1)

	items, err := svc.ListLessons(student.ID, course.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, l1.ID, items[0].LessonID)
	assert.True(t, items[0].Completed)
	assert.True(t, items[0].HasExercises)
	assert.False(t, items[1].Completed)
	assert.True(t, items[1].HasVideo)
}

func TestListLessonsRequiresEnrollment(t *testing.T) {
	f, svc, _, student, course := setupCourseTest(t)
	createLesson(t, f.db, course.ID, lessonOpts{order: 1})

	_, err := svc.ListLessons(student.ID, course.ID)
	assert.ErrorIs(t, err, util.ErrNotEnrolled)
}

func TestCreateLessonOrderConflict(t *testing.T) {
	f, svc, teacher, _, course := setupCourseTest(t)
	createLesson(t, f.db, course.ID, lessonOpts{order: 1})

	_, err := svc.CreateLesson(teacher.ID, course.ID, LessonInput{Title: "dup", Order: 1})
	assert.ErrorIs(t, err, util.ErrOrderTaken)
}

func TestCreateLessonOnlyOwnCourse(t *testing.T) {
	f, svc, _, _, course := setupCourseTest(t)

	other := createUser(t, f.db, model.Teacher)
	_, err := svc.CreateLesson(other.ID, course.ID, LessonInput{Title: "x", Order: 1})
	assert.ErrorIs(t, err, util.ErrNotCourseTeacher)
}

func TestCreateLessonStoresExerciseAndRequirements(t *testing.T) {
	f, svc, teacher, _, course := setupCourseTest(t)

	lesson, err := svc.CreateLesson(teacher.ID, course.ID, LessonInput{
		Title:             "with content",
		Order:             1,
		Exercise:          json.RawMessage(twoQuestionExercise),
		VideoRequirements: map[string]interface{}{"min_watch_percentage": 95.0},
	})
	require.NoError(t, err)

	saved, err := f.lessonRepo.FindActiveByID(lesson.ID)
	require.NoError(t, err)
	assert.Len(t, ParseExercises(saved.Exercise), 2)
	assert.Equal(t, 95.0, saved.GetVideoRequirements().MinWatchPercentage)
	// 未覆盖的字段保持缺省值
	assert.Equal(t, 7.0, saved.GetVideoRequirements().MinEngagementScore)
}

func TestDeleteLessonRenumbersFollowers(t *testing.T) {
	f, svc, teacher, _, course := setupCourseTest(t)
	createLesson(t, f.db, course.ID, lessonOpts{order: 1})
	l2 := createLesson(t, f.db, course.ID, lessonOpts{order: 2})
	l3 := createLesson(t, f.db, course.ID, lessonOpts{order: 3})

	require.NoError(t, svc.DeleteLesson(teacher.ID, l2.ID))

	lessons, err := f.lessonRepo.ListActiveByCourse(course.ID)
	require.NoError(t, err)
	require.Len(t, lessons, 2)
	assert.Equal(t, 1, lessons[0].Order)
	// 后续课时补位
	assert.Equal(t, l3.ID, lessons[1].ID)
	assert.Equal(t, 2, lessons[1].Order)
}

func TestReorderLessons(t *testing.T) {
	f, svc, teacher, _, course := setupCourseTest(t)
	l1 := createLesson(t, f.db, course.ID, lessonOpts{order: 1})
	l2 := createLesson(t, f.db, course.ID, lessonOpts{order: 2})
	l3 := createLesson(t, f.db, course.ID, lessonOpts{order: 3})

	require.NoError(t, svc.ReorderLessons(teacher.ID, course.ID, []uint{l3.ID, l1.ID, l2.ID}))

	lessons, err := f.lessonRepo.ListActiveByCourse(course.ID)
	require.NoError(t, err)
	require.Len(t, lessons, 3)
	assert.Equal(t, []uint{l3.ID, l1.ID, l2.ID}, []uint{lessons[0].ID, lessons[1].ID, lessons[2].ID})
}

func TestGradesSummary(t *testing.T) {
	f, svc, _, student, course := setupCourseTest(t)
	l1 := createLesson(t, f.db, course.ID, lessonOpts{order: 1, exercise: twoQuestionExercise})
	enrollStudent(t, f.db, student.ID, course.ID, model.EnrollmentApproved)
	completeExercises(t, f, student.ID, l1)

	summary, err := svc.GradesSummary(student.ID, course.ID)
	require.NoError(t, err)
	require.Len(t, summary.Lessons, 1)
	assert.Equal(t, 2.0, summary.Lessons[0].Score)
	assert.True(t, summary.Lessons[0].Completed)
	assert.Equal(t, 2.0, summary.AverageScore)
}
