package controller

import (
	"errors"

	"lms_backend/internal/service"
	"lms_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type CourseController struct {
	CourseService *service.CourseService
}

func NewCourseController(courseService *service.CourseService) *CourseController {
	return &CourseController{CourseService: courseService}
}

// ListCourses godoc
// @Summary 公开课程列表
// @Tags 课程
// @Produce  json
// @Success 200 {object} util.Response{data=[]model.Course}
// @Router /api/courses [get]
func (c *CourseController) ListCourses(ctx *gin.Context) {
	courses, err := c.CourseService.ListPublicCourses()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, courses)
}

// GetCourse godoc
// @Summary 课程详情
// @Tags 课程
// @Produce  json
// @Param   id path int true "课程 ID"
// @Success 200 {object} util.Response{data=model.Course}
// @Failure 404 {object} util.Response "课程不存在"
// @Router /api/courses/{id} [get]
func (c *CourseController) GetCourse(ctx *gin.Context) {
	course, err := c.CourseService.GetCourse(util.MustParseUint(ctx.Param("id")))
	if err != nil {
		if errors.Is(err, util.ErrCourseNotFound) {
			util.NotFound(ctx, err.Error())
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, course)
}

// ListLessons godoc
// @Summary 课程课时列表（含当前学生完成标记）
// @Tags 课程
// @Produce  json
// @Param   id path int true "课程 ID"
// @Success 200 {object} util.Response{data=[]service.LessonListItem}
// @Failure 403 {object} util.Response "未报名该课程"
// @Failure 404 {object} util.Response "课程不存在"
// @Security BearerAuth
// @Router /api/courses/{id}/lessons [get]
func (c *CourseController) ListLessons(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	items, err := c.CourseService.ListLessons(user.UserID, util.MustParseUint(ctx.Param("id")))
	if err != nil {
		respondCourseError(ctx, err)
		return
	}
	util.Success(ctx, items)
}

// GetLesson godoc
// @Summary 课时详情
// @Tags 课程
// @Produce  json
// @Param   id path int true "课时 ID"
// @Success 200 {object} util.Response{data=model.Lesson}
// @Failure 403 {object} util.Response "未报名该课程"
// @Failure 404 {object} util.Response "课时不存在"
// @Security BearerAuth
// @Router /api/lessons/{id} [get]
func (c *CourseController) GetLesson(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	lesson, err := c.CourseService.GetLesson(user.UserID, util.MustParseUint(ctx.Param("id")))
	if err != nil {
		respondCourseError(ctx, err)
		return
	}
	util.Success(ctx, lesson)
}

type enrollRequest struct {
	Notes string `json:"notes"`
}

// Enroll godoc
// @Summary 报名课程
// @Description 创建 pending 状态的报名记录，等待老师审批；被拒绝后可重新申请
// @Tags 课程
// @Accept  json
// @Produce  json
// @Param   id path int true "课程 ID"
// @Param   body body enrollRequest false "报名备注"
// @Success 201 {object} util.Response{data=model.Enrollment}
// @Failure 409 {object} util.Response "已报名"
// @Security BearerAuth
// @Router /api/courses/{id}/enroll [post]
func (c *CourseController) Enroll(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	var req enrollRequest
	ctx.ShouldBindJSON(&req)

	enrollment, err := c.CourseService.Enroll(user.UserID, util.MustParseUint(ctx.Param("id")), req.Notes)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrCourseNotFound):
			util.NotFound(ctx, err.Error())
		case errors.Is(err, util.ErrAlreadyEnrolled):
			util.Error(ctx, 409, err.Error())
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Created(ctx, enrollment)
}

// ListEnrollments godoc
// @Summary 我的报名记录
// @Tags 课程
// @Produce  json
// @Success 200 {object} util.Response{data=[]model.Enrollment}
// @Security BearerAuth
// @Router /api/enrollments [get]
func (c *CourseController) ListEnrollments(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	enrollments, err := c.CourseService.ListEnrollments(user.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, enrollments)
}

// GradesSummary godoc
// @Summary 课程成绩汇总
// @Tags 课程
// @Produce  json
// @Param   id path int true "课程 ID"
// @Success 200 {object} util.Response{data=service.GradesSummary}
// @Failure 403 {object} util.Response "未报名该课程"
// @Security BearerAuth
// @Router /api/courses/{id}/grades [get]
func (c *CourseController) GradesSummary(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	summary, err := c.CourseService.GradesSummary(user.UserID, util.MustParseUint(ctx.Param("id")))
	if err != nil {
		respondCourseError(ctx, err)
		return
	}
	util.Success(ctx, summary)
}

// ListCertificates godoc
// @Summary 我的结业证书
// @Tags 课程
// @Produce  json
// @Success 200 {object} util.Response{data=[]model.Certificate}
// @Security BearerAuth
// @Router /api/certificates [get]
func (c *CourseController) ListCertificates(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	certs, err := c.CourseService.ListCertificates(user.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, certs)
}

// respondCourseError 课程访问类错误统一映射
func respondCourseError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrCourseNotFound), errors.Is(err, util.ErrLessonNotFound):
		util.NotFound(ctx, err.Error())
	case errors.Is(err, util.ErrNotEnrolled):
		util.Forbidden(ctx, err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}
