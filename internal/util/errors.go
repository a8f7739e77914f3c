package util

import "errors"

var (
	ErrUserNotFound       = errors.New("用户不存在")
	ErrEmailRegistered    = errors.New("该邮箱已被注册")
	ErrInvalidCredentials = errors.New("invalid email or password")

	ErrCourseNotFound     = errors.New("course not found")
	ErrLessonNotFound     = errors.New("lesson not found")
	ErrQuestionNotFound   = errors.New("question not found")
	ErrNotEnrolled        = errors.New("you are not enrolled in this course")
	ErrAlreadyEnrolled    = errors.New("already enrolled in this course")
	ErrEnrollmentNotFound = errors.New("enrollment not found")

	ErrAnswerRequired    = errors.New("answer is required")
	ErrAnswerCoercion    = errors.New("answer must be an option index")
	ErrMissingAnswerKey  = errors.New("question is missing answer configuration")
	ErrFollowUpNotFound  = errors.New("exercise or follow-up question not found")
	ErrRequirementsUnmet = errors.New("cannot complete lesson, requirements not met")

	ErrOrderTaken       = errors.New("a lesson with this order already exists for this course")
	ErrNotCourseTeacher = errors.New("only the course teacher can manage lessons")
)
