package controller

import (
	"errors"
	"net/http"

	"lms_backend/internal/service"
	"lms_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// LessonController 老师侧课时管理
type LessonController struct {
	CourseService *service.CourseService
}

func NewLessonController(courseService *service.CourseService) *LessonController {
	return &LessonController{CourseService: courseService}
}

// CreateLesson godoc
// @Summary 新增课时
// @Description 在课程内新增课时，order 在课程内唯一；本地视频自动探测时长
// @Tags 课时管理
// @Accept  json
// @Produce  json
// @Param   id path int true "课程 ID"
// @Param   body body service.LessonInput true "课时内容"
// @Success 201 {object} util.Response{data=model.Lesson}
// @Failure 400 {object} util.Response "order 冲突或参数错误"
// @Failure 403 {object} util.Response "非本课程老师"
// @Security BearerAuth
// @Router /api/teacher/courses/{id}/lessons [post]
func (c *LessonController) CreateLesson(ctx *gin.Context) {
	var input service.LessonInput
	if err := ctx.ShouldBindJSON(&input); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	user := util.GetUserFromContext(ctx)
	lesson, err := c.CourseService.CreateLesson(user.UserID, util.MustParseUint(ctx.Param("id")), input)
	if err != nil {
		respondLessonAdminError(ctx, err)
		return
	}
	util.Created(ctx, lesson)
}

// UpdateLesson godoc
// @Summary 修改课时
// @Tags 课时管理
// @Accept  json
// @Produce  json
// @Param   id path int true "课时 ID"
// @Param   body body service.LessonInput true "课时内容"
// @Success 200 {object} util.Response{data=model.Lesson}
// @Failure 400 {object} util.Response "order 冲突或参数错误"
// @Failure 403 {object} util.Response "非本课程老师"
// @Security BearerAuth
// @Router /api/teacher/lessons/{id} [put]
func (c *LessonController) UpdateLesson(ctx *gin.Context) {
	var input service.LessonInput
	if err := ctx.ShouldBindJSON(&input); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	user := util.GetUserFromContext(ctx)
	lesson, err := c.CourseService.UpdateLesson(user.UserID, util.MustParseUint(ctx.Param("id")), input)
	if err != nil {
		respondLessonAdminError(ctx, err)
		return
	}
	util.Success(ctx, lesson)
}

// DeleteLesson godoc
// @Summary 删除课时
// @Description 删除后同课程内后续课时的 order 自动前移补位
// @Tags 课时管理
// @Produce  json
// @Param   id path int true "课时 ID"
// @Success 200 {object} util.Response
// @Failure 403 {object} util.Response "非本课程老师"
// @Security BearerAuth
// @Router /api/teacher/lessons/{id} [delete]
func (c *LessonController) DeleteLesson(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if err := c.CourseService.DeleteLesson(user.UserID, util.MustParseUint(ctx.Param("id"))); err != nil {
		respondLessonAdminError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

type reorderRequest struct {
	LessonIDs []uint `json:"lessonIds" binding:"required,min=1"`
}

// ReorderLessons godoc
// @Summary 课时整体重排
// @Tags 课时管理
// @Accept  json
// @Produce  json
// @Param   id path int true "课程 ID"
// @Param   body body reorderRequest true "按新顺序排列的课时 ID"
// @Success 200 {object} util.Response
// @Failure 403 {object} util.Response "非本课程老师"
// @Security BearerAuth
// @Router /api/teacher/courses/{id}/lessons/reorder [put]
func (c *LessonController) ReorderLessons(ctx *gin.Context) {
	var req reorderRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	user := util.GetUserFromContext(ctx)
	if err := c.CourseService.ReorderLessons(user.UserID, util.MustParseUint(ctx.Param("id")), req.LessonIDs); err != nil {
		respondLessonAdminError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

type reviewEnrollmentRequest struct {
	Approve bool `json:"approve"`
}

// ReviewEnrollment godoc
// @Summary 审批报名
// @Tags 课时管理
// @Accept  json
// @Produce  json
// @Param   id path int true "报名记录 ID"
// @Param   body body reviewEnrollmentRequest true "审批结果"
// @Success 200 {object} util.Response{data=model.Enrollment}
// @Failure 403 {object} util.Response "非本课程老师"
// @Failure 404 {object} util.Response "报名记录不存在"
// @Security BearerAuth
// @Router /api/teacher/enrollments/{id}/review [put]
func (c *LessonController) ReviewEnrollment(ctx *gin.Context) {
	var req reviewEnrollmentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	user := util.GetUserFromContext(ctx)
	enrollment, err := c.CourseService.ReviewEnrollment(user.UserID, util.MustParseUint(ctx.Param("id")), req.Approve)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrEnrollmentNotFound), errors.Is(err, util.ErrCourseNotFound):
			util.NotFound(ctx, err.Error())
		case errors.Is(err, util.ErrNotCourseTeacher):
			util.Forbidden(ctx, err.Error())
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, enrollment)
}

func respondLessonAdminError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrCourseNotFound), errors.Is(err, util.ErrLessonNotFound):
		util.NotFound(ctx, err.Error())
	case errors.Is(err, util.ErrNotCourseTeacher):
		util.Forbidden(ctx, err.Error())
	case errors.Is(err, util.ErrOrderTaken):
		util.Error(ctx, http.StatusBadRequest, err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}
