package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/config"
	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/internal/api/handler"
	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/internal/api/middleware"
	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/pkg/jwt"
	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/pkg/metrics"
	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/pkg/redis"
)

// Setup 初始化并返回 Gin 路由引擎
// rdb 可为 nil（限流降级放行）
func Setup(
	cfg *config.Config,
	h *handler.Handler,
	verifier *jwt.Verifier,
	rdb *redis.Client,
	guardians middleware.GuardianChecker,
	logger *zap.Logger,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(middleware.RequestID())
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.SecurityHeaders())

	// ── 健康检查 / 指标 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", metrics.Handler())

	adminOnly := middleware.RoleAuth(middleware.RoleAdmin)
	staffOrAdmin := middleware.RoleAuth(middleware.RoleAdmin, middleware.RoleStaff)

	// 上传接口：仅管理员，限制请求体大小并按用户限流
	bodyLimit := middleware.BodyLimit(cfg.Server.MaxUploadSize)
	rateLimit := middleware.RateLimit(rdb, cfg.Schedule.ImportRateMax, cfg.Schedule.ImportRateSpan, logger)
	upload := func(fn gin.HandlerFunc) []gin.HandlerFunc {
		return []gin.HandlerFunc{adminOnly, rateLimit, bodyLimit, fn}
	}

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(verifier))
	{
		// 学期模块
		semesters := v1.Group("/semesters")
		{
			semesters.GET("", h.Semester.ListSemesters)
			semesters.GET("/current", h.Semester.GetCurrentSemester)
			semesters.GET("/:id", h.Semester.GetSemester)
			semesters.POST("", adminOnly, h.Semester.CreateSemester)
			semesters.PUT("/:id", adminOnly, h.Semester.UpdateSemester)
			semesters.PUT("/:id/activate", adminOnly, h.Semester.ActivateSemester)
			semesters.DELETE("/:id", adminOnly, h.Semester.DeleteSemester)

			// 假期日历
			semesters.GET("/:id/vacations", h.Semester.ListVacations)
			semesters.POST("/:id/vacations", adminOnly, h.Semester.AddVacation)
			semesters.DELETE("/:id/vacations/:vacationId", adminOnly, h.Semester.DeleteVacation)
			semesters.POST("/:id/holidays/import", upload(h.Semester.ImportHolidays)...)

			// 周模板导入
			semesters.POST("/:id/schedule/preview", upload(h.Schedule.PreviewSchedule)...)
			semesters.POST("/:id/schedule/import", upload(h.Schedule.ImportSchedule)...)
			semesters.POST("/:id/schedule/revalidate", adminOnly, h.Schedule.RevalidateSchedule)
			semesters.GET("/:id/schedule/imports", adminOnly, h.Schedule.ListImports)

			// 日程查询
			semesters.GET("/:id/schedule", staffOrAdmin, h.Schedule.GetOverview)
			semesters.GET("/:id/schedule/staff/:staffId", staffOrAdmin, h.Schedule.GetStaffSchedule)
			semesters.GET("/:id/schedule/children/:childId", middleware.ChildAccess(guardians, "childId"), h.Schedule.GetChildSchedule)

			// 导出
			semesters.GET("/:id/export/overview", adminOnly, h.Export.ExportOverview)
			semesters.GET("/:id/export/staff/:staffId", staffOrAdmin, h.Export.ExportStaffCalendar)

			// 变更日志
			semesters.GET("/:id/change-logs", adminOnly, h.Entry.ListChangeLogs)
		}

		// 单条日程调整
		entries := v1.Group("/entries", adminOnly)
		{
			entries.PUT("/:id/cancel", h.Entry.SetCancelled)
			entries.POST("/:id/reassign", h.Entry.ReassignChildren)
			entries.POST("/:id/reassign-child", h.Entry.ReassignOneChild)
			entries.GET("/:id/alternatives", h.Entry.FindAlternatives)
		}
	}

	return r
}
