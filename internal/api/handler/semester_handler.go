package handler

import (
	"bytes"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/internal/dto"
	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/internal/service"
	pkgerrors "github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/pkg/errors"
	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/pkg/response"
)

// SemesterHandler 学期与假期日历 HTTP 处理器
type SemesterHandler struct {
	semesterSvc service.SemesterService
}

// NewSemesterHandler 创建 SemesterHandler
func NewSemesterHandler(semesterSvc service.SemesterService) *SemesterHandler {
	return &SemesterHandler{semesterSvc: semesterSvc}
}

// ListSemesters 获取学期列表
// GET /api/v1/semesters
func (h *SemesterHandler) ListSemesters(c *gin.Context) {
	semesters, err := h.semesterSvc.List(c.Request.Context())
	if err != nil {
		response.InternalError(c)
		return
	}

	response.OK(c, gin.H{"list": semesters})
}

// GetSemester 获取学期详情（含假期）
// GET /api/v1/semesters/:id
func (h *SemesterHandler) GetSemester(c *gin.Context) {
	id, ok := MustGetParam(c, "id", "学期ID")
	if !ok {
		return
	}

	semester, err := h.semesterSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		h.handleSemesterError(c, err)
		return
	}

	response.OK(c, semester)
}

// GetCurrentSemester 获取当前学期
// GET /api/v1/semesters/current
func (h *SemesterHandler) GetCurrentSemester(c *gin.Context) {
	semester, err := h.semesterSvc.GetCurrent(c.Request.Context())
	if err != nil {
		h.handleSemesterError(c, err)
		return
	}

	response.OK(c, semester)
}

// CreateSemester 创建学期
// POST /api/v1/semesters
func (h *SemesterHandler) CreateSemester(c *gin.Context) {
	var req dto.CreateSemesterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	semester, err := h.semesterSvc.Create(c.Request.Context(), &req, callerID)
	if err != nil {
		h.handleSemesterError(c, err)
		return
	}

	response.Created(c, semester)
}

// UpdateSemester 更新学期
// PUT /api/v1/semesters/:id
func (h *SemesterHandler) UpdateSemester(c *gin.Context) {
	id, ok := MustGetParam(c, "id", "学期ID")
	if !ok {
		return
	}

	var req dto.UpdateSemesterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	semester, err := h.semesterSvc.Update(c.Request.Context(), id, &req, callerID)
	if err != nil {
		h.handleSemesterError(c, err)
		return
	}

	response.OK(c, semester)
}

// ActivateSemester 激活学期（设为当前学期）
// PUT /api/v1/semesters/:id/activate
func (h *SemesterHandler) ActivateSemester(c *gin.Context) {
	id, ok := MustGetParam(c, "id", "学期ID")
	if !ok {
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	if err := h.semesterSvc.Activate(c.Request.Context(), id, callerID); err != nil {
		h.handleSemesterError(c, err)
		return
	}

	response.OK(c, nil)
}

// DeleteSemester 删除学期
// DELETE /api/v1/semesters/:id
func (h *SemesterHandler) DeleteSemester(c *gin.Context) {
	id, ok := MustGetParam(c, "id", "学期ID")
	if !ok {
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	if err := h.semesterSvc.Delete(c.Request.Context(), id, callerID); err != nil {
		h.handleSemesterError(c, err)
		return
	}

	response.OK(c, nil)
}

// ── 假期 ──

// ListVacations 获取学期假期
// GET /api/v1/semesters/:id/vacations
func (h *SemesterHandler) ListVacations(c *gin.Context) {
	id, ok := MustGetParam(c, "id", "学期ID")
	if !ok {
		return
	}

	vacations, err := h.semesterSvc.ListVacations(c.Request.Context(), id)
	if err != nil {
		h.handleSemesterError(c, err)
		return
	}

	response.OK(c, gin.H{"list": vacations})
}

// AddVacation 新增假期
// POST /api/v1/semesters/:id/vacations
func (h *SemesterHandler) AddVacation(c *gin.Context) {
	id, ok := MustGetParam(c, "id", "学期ID")
	if !ok {
		return
	}

	var req dto.CreateVacationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	vacation, err := h.semesterSvc.AddVacation(c.Request.Context(), id, &req, callerID)
	if err != nil {
		h.handleSemesterError(c, err)
		return
	}

	response.Created(c, vacation)
}

// DeleteVacation 删除假期
// DELETE /api/v1/semesters/:id/vacations/:vacationId
func (h *SemesterHandler) DeleteVacation(c *gin.Context) {
	id, ok := MustGetParam(c, "id", "学期ID")
	if !ok {
		return
	}
	vacationID, ok := MustGetParam(c, "vacationId", "假期ID")
	if !ok {
		return
	}

	if err := h.semesterSvc.DeleteVacation(c.Request.Context(), id, vacationID); err != nil {
		h.handleSemesterError(c, err)
		return
	}

	response.OK(c, nil)
}

// ImportHolidays 导入节假日日历
// POST /api/v1/semesters/:id/holidays/import
//
//   - 文件上传: multipart/form-data, field="file"（.ics）
func (h *SemesterHandler) ImportHolidays(c *gin.Context) {
	id, ok := MustGetParam(c, "id", "学期ID")
	if !ok {
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	_, data, ok := readUpload(c, ".ics")
	if !ok {
		return
	}

	result, err := h.semesterSvc.ImportHolidays(c.Request.Context(), id, bytes.NewReader(data), callerID)
	if err != nil {
		h.handleSemesterError(c, err)
		return
	}

	response.Created(c, result)
}

// handleSemesterError 统一处理学期模块业务错误
func (h *SemesterHandler) handleSemesterError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrSemesterNotFound):
		response.NotFound(c, 14001, "学期不存在")
	case errors.Is(err, service.ErrSemesterDateInvalid):
		response.BadRequest(c, 14002, "学期日期无效")
	case errors.Is(err, service.ErrSemesterHasSchedule):
		response.Conflict(c, 14003, "学期已导入日程，不能删除")
	case errors.Is(err, pkgerrors.ErrOptimisticLock):
		response.Conflict(c, 14004, pkgerrors.ErrOptimisticLock.Error())
	case errors.Is(err, service.ErrVacationNotFound):
		response.NotFound(c, 14011, "假期不存在")
	case errors.Is(err, service.ErrVacationDateInvalid):
		response.BadRequest(c, 14012, "假期日期无效")
	case errors.Is(err, service.ErrVacationOutOfRange):
		response.BadRequest(c, 14013, "假期不在学期范围内")
	case errors.Is(err, service.ErrHolidayCalendarInvalid):
		response.BadRequest(c, 14014, "节假日日历无法解析")
	default:
		response.InternalError(c)
	}
}
