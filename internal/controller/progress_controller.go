package controller

import (
	"errors"
	"net/http"

	"lms_backend/internal/service"
	"lms_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// ProgressController 学生侧答题、视频观看与课时完成
type ProgressController struct {
	LessonService     *service.LessonService
	VideoService      *service.VideoService
	CompletionService *service.CompletionService
}

func NewProgressController(
	lessonService *service.LessonService,
	videoService *service.VideoService,
	completionService *service.CompletionService,
) *ProgressController {
	return &ProgressController{
		LessonService:     lessonService,
		VideoService:      videoService,
		CompletionService: completionService,
	}
}

type submitAnswerRequest struct {
	QuestionID string      `json:"questionId" binding:"required"`
	Answer     interface{} `json:"answer"`
}

// SubmitAnswer godoc
// @Summary 提交练习答案
// @Description 提交单题答案并计分：新答对 +1，已答对改错 -1（下限 0）；全部答对后课时自动标记完成
// @Tags 学习进度
// @Accept  json
// @Produce  json
// @Param   id path int true "课时 ID"
// @Param   body body submitAnswerRequest true "题目 ID 与答案"
// @Success 200 {object} util.Response{data=service.SubmitAnswerResult}
// @Failure 400 {object} util.Response "答案缺失 / 答案格式错误 / 题目缺少答案配置"
// @Failure 403 {object} util.Response "未报名该课程"
// @Failure 404 {object} util.Response "课时或题目不存在"
// @Security BearerAuth
// @Router /api/lessons/{id}/submit [post]
func (c *ProgressController) SubmitAnswer(ctx *gin.Context) {
	var req submitAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	user := util.GetUserFromContext(ctx)
	result, err := c.LessonService.SubmitAnswer(user.UserID, util.MustParseUint(ctx.Param("id")), req.QuestionID, req.Answer)
	if err != nil {
		respondProgressError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// SubmitFollowUp godoc
// @Summary 提交追问题答案
// @Description 追问答对一次性 +0.5 附加分，重复提交不再累计
// @Tags 学习进度
// @Accept  json
// @Produce  json
// @Param   id path int true "课时 ID"
// @Param   body body submitAnswerRequest true "题目 ID 与答案"
// @Success 200 {object} util.Response{data=service.FollowUpResult}
// @Failure 403 {object} util.Response "未报名该课程"
// @Failure 404 {object} util.Response "追问题不存在"
// @Security BearerAuth
// @Router /api/lessons/{id}/followup [post]
func (c *ProgressController) SubmitFollowUp(ctx *gin.Context) {
	var req submitAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	user := util.GetUserFromContext(ctx)
	result, err := c.LessonService.SubmitFollowUp(user.UserID, util.MustParseUint(ctx.Param("id")), req.QuestionID, req.Answer)
	if err != nil {
		respondProgressError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// GetExerciseProgress godoc
// @Summary 练习进度快照
// @Tags 学习进度
// @Produce  json
// @Param   id path int true "课时 ID"
// @Success 200 {object} util.Response{data=service.ExerciseProgress}
// @Failure 403 {object} util.Response "未报名该课程"
// @Security BearerAuth
// @Router /api/lessons/{id}/exercises/progress [get]
func (c *ProgressController) GetExerciseProgress(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	progress, err := c.LessonService.GetExerciseProgress(user.UserID, util.MustParseUint(ctx.Param("id")))
	if err != nil {
		respondProgressError(ctx, err)
		return
	}
	util.Success(ctx, progress)
}

// ReportVideoProgress godoc
// @Summary 上报视频观看进度
// @Description 位置与时长只增不减；位置、覆盖率、互动评分三项同时达标后标记视频看完且不可回退
// @Tags 学习进度
// @Accept  json
// @Produce  json
// @Param   id path int true "课时 ID"
// @Param   body body service.VideoProgressReport true "播放器心跳数据"
// @Success 200 {object} util.Response{data=service.VideoProgressSnapshot}
// @Failure 403 {object} util.Response "未报名该课程"
// @Security BearerAuth
// @Router /api/lessons/{id}/video-progress [post]
func (c *ProgressController) ReportVideoProgress(ctx *gin.Context) {
	var report service.VideoProgressReport
	if err := ctx.ShouldBindJSON(&report); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	user := util.GetUserFromContext(ctx)
	snapshot, err := c.VideoService.ReportProgress(user.UserID, util.MustParseUint(ctx.Param("id")), report)
	if err != nil {
		respondProgressError(ctx, err)
		return
	}
	util.Success(ctx, snapshot)
}

// GetVideoProgress godoc
// @Summary 视频观看进度快照
// @Tags 学习进度
// @Produce  json
// @Param   id path int true "课时 ID"
// @Success 200 {object} util.Response{data=service.VideoProgressSnapshot}
// @Failure 403 {object} util.Response "未报名该课程"
// @Security BearerAuth
// @Router /api/lessons/{id}/video-progress [get]
func (c *ProgressController) GetVideoProgress(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	snapshot, err := c.VideoService.GetProgress(user.UserID, util.MustParseUint(ctx.Param("id")))
	if err != nil {
		respondProgressError(ctx, err)
		return
	}
	util.Success(ctx, snapshot)
}

// MarkCompleted godoc
// @Summary 标记课时完成
// @Description 校验视频与练习完成条件后标记完成；重复调用幂等返回首次结果
// @Tags 学习进度
// @Accept  json
// @Produce  json
// @Param   id path int true "课时 ID"
// @Param   body body service.MarkCompleteRequest false "分数与学习心得"
// @Success 200 {object} util.Response{data=service.MarkCompleteResult}
// @Failure 400 {object} util.Response "完成条件未满足，data 内携带 missing_requirements"
// @Failure 403 {object} util.Response "未报名该课程"
// @Security BearerAuth
// @Router /api/lessons/{id}/complete [post]
func (c *ProgressController) MarkCompleted(ctx *gin.Context) {
	var req service.MarkCompleteRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			util.BadRequest(ctx, err.Error())
			return
		}
	}

	user := util.GetUserFromContext(ctx)
	result, err := c.CompletionService.MarkCompleted(user.UserID, util.MustParseUint(ctx.Param("id")), req)
	if err != nil {
		var unmet *service.RequirementsNotMetError
		if errors.As(err, &unmet) {
			util.ErrorData(ctx, http.StatusBadRequest, util.ErrRequirementsUnmet.Error(), gin.H{
				"missing_requirements": unmet.Missing,
			})
			return
		}
		respondProgressError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// GetCourseProgress godoc
// @Summary 课程完成百分比
// @Description 已完成启用课时 / 启用课时总数，保留一位小数，按当前课时集合即时重算
// @Tags 学习进度
// @Produce  json
// @Param   id path int true "课程 ID"
// @Success 200 {object} util.Response{data=object}
// @Failure 403 {object} util.Response "未报名该课程"
// @Security BearerAuth
// @Router /api/courses/{id}/progress [get]
func (c *ProgressController) GetCourseProgress(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	progress, err := c.CompletionService.CourseProgressForStudent(user.UserID, util.MustParseUint(ctx.Param("id")))
	if err != nil {
		respondProgressError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"courseProgress": progress})
}

func respondProgressError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrLessonNotFound),
		errors.Is(err, util.ErrCourseNotFound),
		errors.Is(err, util.ErrQuestionNotFound),
		errors.Is(err, util.ErrFollowUpNotFound):
		util.NotFound(ctx, err.Error())
	case errors.Is(err, util.ErrNotEnrolled):
		util.Forbidden(ctx, err.Error())
	case errors.Is(err, util.ErrAnswerRequired),
		errors.Is(err, util.ErrAnswerCoercion),
		errors.Is(err, util.ErrMissingAnswerKey):
		util.BadRequest(ctx, err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}
