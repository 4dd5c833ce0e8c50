package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/internal/service"
	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/pkg/response"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	icsContentType  = "text/calendar; charset=utf-8"
)

// ExportHandler 导出模块 HTTP 处理器
type ExportHandler struct {
	exportSvc service.ExportService
}

// NewExportHandler 创建 ExportHandler
func NewExportHandler(exportSvc service.ExportService) *ExportHandler {
	return &ExportHandler{exportSvc: exportSvc}
}

// ExportOverview 导出学期周模板（可重新导入）
// GET /api/v1/semesters/:id/export/overview
func (h *ExportHandler) ExportOverview(c *gin.Context) {
	semesterID, ok := MustGetParam(c, "id", "学期ID")
	if !ok {
		return
	}

	buf, filename, err := h.exportSvc.ExportOverview(c.Request.Context(), semesterID)
	if err != nil {
		h.handleExportError(c, err)
		return
	}

	sendAttachment(c, filename, xlsxContentType, buf.Bytes())
}

// ExportStaffCalendar 导出员工日历（iCalendar）
// GET /api/v1/semesters/:id/export/staff/:staffId
func (h *ExportHandler) ExportStaffCalendar(c *gin.Context) {
	semesterID, ok := MustGetParam(c, "id", "学期ID")
	if !ok {
		return
	}
	staffID, ok := MustGetParam(c, "staffId", "员工ID")
	if !ok {
		return
	}

	data, filename, err := h.exportSvc.ExportStaffCalendar(c.Request.Context(), semesterID, staffID)
	if err != nil {
		h.handleExportError(c, err)
		return
	}

	sendAttachment(c, filename, icsContentType, data)
}

// 设置下载响应头
func sendAttachment(c *gin.Context, filename, contentType string, data []byte) {
	encodedFilename := url.QueryEscape(filename)
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+encodedFilename)
	c.Data(http.StatusOK, contentType, data)
}

func (h *ExportHandler) handleExportError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrSemesterNotFound):
		response.NotFound(c, 14001, "学期不存在")
	case errors.Is(err, service.ErrStaffNotFound):
		response.NotFound(c, 13007, "员工不存在")
	case errors.Is(err, service.ErrExportNoSchedule):
		response.NotFound(c, 16101, "该学期暂无日程")
	case errors.Is(err, service.ErrExportGenerateFail):
		response.InternalError(c)
	default:
		response.InternalError(c)
	}
}
