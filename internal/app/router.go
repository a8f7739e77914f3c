package app

import (
	"lms_backend/docs"
	"lms_backend/internal/config"
	"lms_backend/internal/middleware"
	"lms_backend/internal/model"
	"lms_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
		public.GET("/courses", c.course.ListCourses)
		public.GET("/courses/:id", c.course.GetCourse)
	}

	// 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg), middleware.ActivityMiddleware(repos.user))
	{
		// 学生接口
		authGroup.GET("/courses/:id/lessons", c.course.ListLessons)
		authGroup.POST("/courses/:id/enroll", c.course.Enroll)
		authGroup.GET("/courses/:id/progress", c.progress.GetCourseProgress)
		authGroup.GET("/courses/:id/grades", c.course.GradesSummary)
		authGroup.GET("/enrollments", c.course.ListEnrollments)
		authGroup.GET("/certificates", c.course.ListCertificates)

		authGroup.GET("/lessons/:id", c.course.GetLesson)
		authGroup.POST("/lessons/:id/submit", c.progress.SubmitAnswer)
		authGroup.POST("/lessons/:id/followup", c.progress.SubmitFollowUp)
		authGroup.GET("/lessons/:id/exercises/progress", c.progress.GetExerciseProgress)
		authGroup.POST("/lessons/:id/video-progress", c.progress.ReportVideoProgress)
		authGroup.GET("/lessons/:id/video-progress", c.progress.GetVideoProgress)
		authGroup.POST("/lessons/:id/complete", c.progress.MarkCompleted)

		// 教师接口
		teacher := authGroup.Group("/teacher")
		teacher.Use(middleware.RoleMiddleware(model.Teacher))
		{
			teacher.POST("/courses/:id/lessons", c.lesson.CreateLesson)
			teacher.PUT("/courses/:id/lessons/reorder", c.lesson.ReorderLessons)
			teacher.PUT("/lessons/:id", c.lesson.UpdateLesson)
			teacher.DELETE("/lessons/:id", c.lesson.DeleteLesson)
			teacher.PUT("/enrollments/:id/review", c.lesson.ReviewEnrollment)
		}
	}
}
