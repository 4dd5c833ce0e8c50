package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/internal/dto"
	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/internal/service"
	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/pkg/response"
)

// 周模板允许的扩展名
var templateExts = []string{".xlsx", ".xls"}

// TemplateArchive 导入成功后的模板归档
type TemplateArchive interface {
	Save(ctx context.Context, semesterID, fileName string, data []byte) error
}

// ScheduleHandler 周模板导入与日程查询 HTTP 处理器
type ScheduleHandler struct {
	scheduleSvc service.ScheduleService
	archive     TemplateArchive
	logger      *zap.Logger
}

// NewScheduleHandler 创建 ScheduleHandler
// archive 可为 nil（不归档，重新校验将不可用）
func NewScheduleHandler(scheduleSvc service.ScheduleService, archive TemplateArchive, logger *zap.Logger) *ScheduleHandler {
	return &ScheduleHandler{scheduleSvc: scheduleSvc, archive: archive, logger: logger}
}

// ════════════════════════════════════════════════════════════
// 导入
// ════════════════════════════════════════════════════════════

// PreviewSchedule 预览周模板展开结果（不落库）
// POST /api/v1/semesters/:id/schedule/preview
//
//   - 文件上传: multipart/form-data, field="file"（.xlsx / .xls）
func (h *ScheduleHandler) PreviewSchedule(c *gin.Context) {
	semesterID, ok := MustGetParam(c, "id", "学期ID")
	if !ok {
		return
	}

	fileName, data, ok := readUpload(c, templateExts...)
	if !ok {
		return
	}

	result, err := h.scheduleSvc.PreviewSchedule(c.Request.Context(), semesterID, fileName, data)
	if err != nil {
		h.handleScheduleError(c, err)
		return
	}

	response.OK(c, result)
}

// ImportSchedule 导入周模板并整体替换学期日程
// POST /api/v1/semesters/:id/schedule/import
func (h *ScheduleHandler) ImportSchedule(c *gin.Context) {
	semesterID, ok := MustGetParam(c, "id", "学期ID")
	if !ok {
		return
	}

	operatorID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	fileName, data, ok := readUpload(c, templateExts...)
	if !ok {
		return
	}

	result, err := h.scheduleSvc.ImportSchedule(c.Request.Context(), semesterID, fileName, data, operatorID)
	if err != nil {
		h.handleScheduleError(c, err)
		return
	}

	// 归档失败不影响导入结果
	if h.archive != nil {
		if err := h.archive.Save(c.Request.Context(), semesterID, fileName, data); err != nil {
			h.logger.Warn("归档周模板失败",
				zap.String("semester_id", semesterID),
				zap.String("file_name", fileName),
				zap.Error(err),
			)
		}
	}

	response.Created(c, result)
}

// RevalidateSchedule 以最新名册重新校验已归档的模板
// POST /api/v1/semesters/:id/schedule/revalidate
func (h *ScheduleHandler) RevalidateSchedule(c *gin.Context) {
	semesterID, ok := MustGetParam(c, "id", "学期ID")
	if !ok {
		return
	}

	report, err := h.scheduleSvc.RevalidateSchedule(c.Request.Context(), semesterID)
	if err != nil {
		h.handleScheduleError(c, err)
		return
	}

	response.OK(c, report)
}

// ListImports 导入记录
// GET /api/v1/semesters/:id/schedule/imports?page=1&page_size=20
func (h *ScheduleHandler) ListImports(c *gin.Context) {
	semesterID, ok := MustGetParam(c, "id", "学期ID")
	if !ok {
		return
	}

	var req dto.ScheduleImportListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	list, total, err := h.scheduleSvc.ListImports(c.Request.Context(), semesterID, &req)
	if err != nil {
		h.handleScheduleError(c, err)
		return
	}

	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

// ════════════════════════════════════════════════════════════
// 查询
// ════════════════════════════════════════════════════════════

// GetOverview 学期总览
// GET /api/v1/semesters/:id/schedule?from=2025-01-06&to=2025-01-10&include_cancelled=false
func (h *ScheduleHandler) GetOverview(c *gin.Context) {
	semesterID, ok := MustGetParam(c, "id", "学期ID")
	if !ok {
		return
	}

	q, ok := bindScheduleQuery(c)
	if !ok {
		return
	}

	list, err := h.scheduleSvc.GetOverview(c.Request.Context(), semesterID, q)
	if err != nil {
		h.handleScheduleError(c, err)
		return
	}

	response.OK(c, gin.H{"list": list})
}

// GetStaffSchedule 员工日程
// GET /api/v1/semesters/:id/schedule/staff/:staffId
func (h *ScheduleHandler) GetStaffSchedule(c *gin.Context) {
	semesterID, ok := MustGetParam(c, "id", "学期ID")
	if !ok {
		return
	}
	staffID, ok := MustGetParam(c, "staffId", "员工ID")
	if !ok {
		return
	}

	q, ok := bindScheduleQuery(c)
	if !ok {
		return
	}

	list, err := h.scheduleSvc.GetStaffSchedule(c.Request.Context(), semesterID, staffID, q)
	if err != nil {
		h.handleScheduleError(c, err)
		return
	}

	response.OK(c, gin.H{"list": list})
}

// GetChildSchedule 儿童日程（家长只能查看自己的孩子，由 ChildAccess 中间件把关）
// GET /api/v1/semesters/:id/schedule/children/:childId
func (h *ScheduleHandler) GetChildSchedule(c *gin.Context) {
	semesterID, ok := MustGetParam(c, "id", "学期ID")
	if !ok {
		return
	}
	childID, ok := MustGetParam(c, "childId", "儿童ID")
	if !ok {
		return
	}
	requesterID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	q, ok := bindScheduleQuery(c)
	if !ok {
		return
	}

	list, err := h.scheduleSvc.GetChildSchedule(c.Request.Context(), semesterID, childID, requesterID, q)
	if err != nil {
		h.handleScheduleError(c, err)
		return
	}

	response.OK(c, gin.H{"list": list})
}

func bindScheduleQuery(c *gin.Context) (*dto.ScheduleQuery, bool) {
	var q dto.ScheduleQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return nil, false
	}
	return &q, true
}

// handleScheduleError 统一处理日程模块业务错误
func (h *ScheduleHandler) handleScheduleError(c *gin.Context, err error) {
	var report *service.ValidationReport
	if errors.As(err, &report) {
		response.ErrorWithData(c, http.StatusUnprocessableEntity, 13002, "模板校验未通过",
			service.ToValidationReportResponse(report))
		return
	}

	if detail, ok := service.TemplateErrorDetail(err); ok {
		response.ErrorWithData(c, http.StatusBadRequest, 13003, err.Error(), detail)
		return
	}

	switch {
	case errors.Is(err, service.ErrSemesterNotFound):
		response.NotFound(c, 14001, "学期不存在")
	case errors.Is(err, service.ErrSpreadsheetUnreadable):
		response.BadRequest(c, 13001, "无法读取表格文件")
	case errors.Is(err, service.ErrNoWeekdaySheet):
		response.BadRequest(c, 13004, "模板中没有工作日工作表")
	case errors.Is(err, service.ErrImportInProgress):
		response.Conflict(c, 13005, "该学期正在导入日程，请稍后再试")
	case errors.Is(err, service.ErrTemplateNotArchived):
		response.NotFound(c, 13006, "该学期没有已归档的模板")
	case errors.Is(err, service.ErrStaffNotFound):
		response.NotFound(c, 13007, "员工不存在")
	case errors.Is(err, service.ErrChildNotFound):
		response.NotFound(c, 13008, "儿童不存在")
	case errors.Is(err, service.ErrQueryDateInvalid):
		response.BadRequest(c, 13009, service.ErrQueryDateInvalid.Error())
	default:
		response.InternalError(c)
	}
}
