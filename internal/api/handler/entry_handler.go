package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/internal/dto"
	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/internal/service"
	pkgerrors "github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/pkg/errors"
	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/pkg/response"
)

// EntryHandler 单个日程条目 HTTP 处理器
type EntryHandler struct {
	entrySvc service.EntryService
}

// NewEntryHandler 创建 EntryHandler
func NewEntryHandler(entrySvc service.EntryService) *EntryHandler {
	return &EntryHandler{entrySvc: entrySvc}
}

// SetCancelled 取消或恢复条目
// PUT /api/v1/entries/:id/cancel
func (h *EntryHandler) SetCancelled(c *gin.Context) {
	id, ok := MustGetParam(c, "id", "条目ID")
	if !ok {
		return
	}

	var req dto.SetCancelledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	operatorID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	entry, err := h.entrySvc.SetCancelled(c.Request.Context(), id, &req, operatorID)
	if err != nil {
		h.handleEntryError(c, err)
		return
	}

	response.OK(c, entry)
}

// ReassignChildren 把条目中的全部儿童移到目标条目
// POST /api/v1/entries/:id/reassign
func (h *EntryHandler) ReassignChildren(c *gin.Context) {
	id, ok := MustGetParam(c, "id", "条目ID")
	if !ok {
		return
	}

	var req dto.ReassignChildrenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	operatorID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.entrySvc.ReassignChildren(c.Request.Context(), id, req.TargetEntryID, operatorID)
	if err != nil {
		h.handleEntryError(c, err)
		return
	}

	response.OK(c, result)
}

// ReassignOneChild 把条目中的一名儿童移到目标条目
// POST /api/v1/entries/:id/reassign-child
func (h *EntryHandler) ReassignOneChild(c *gin.Context) {
	id, ok := MustGetParam(c, "id", "条目ID")
	if !ok {
		return
	}

	var req dto.ReassignOneChildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	operatorID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.entrySvc.ReassignOneChild(c.Request.Context(), id, req.ChildID, req.TargetEntryID, operatorID)
	if err != nil {
		h.handleEntryError(c, err)
		return
	}

	response.OK(c, result)
}

// FindAlternatives 同一时间窗口内可接收儿童的其他条目
// GET /api/v1/entries/:id/alternatives
func (h *EntryHandler) FindAlternatives(c *gin.Context) {
	id, ok := MustGetParam(c, "id", "条目ID")
	if !ok {
		return
	}

	list, err := h.entrySvc.FindAlternatives(c.Request.Context(), id)
	if err != nil {
		h.handleEntryError(c, err)
		return
	}

	response.OK(c, gin.H{"list": list})
}

// ListChangeLogs 学期变更日志
// GET /api/v1/semesters/:id/change-logs?page=1&page_size=20
func (h *EntryHandler) ListChangeLogs(c *gin.Context) {
	semesterID, ok := MustGetParam(c, "id", "学期ID")
	if !ok {
		return
	}

	var req dto.ChangeLogListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	list, total, err := h.entrySvc.ListChangeLogs(c.Request.Context(), semesterID, &req)
	if err != nil {
		h.handleEntryError(c, err)
		return
	}

	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

// handleEntryError 统一处理条目模块业务错误
func (h *EntryHandler) handleEntryError(c *gin.Context, err error) {
	var cross *service.CrossContextReassignError
	if errors.As(err, &cross) {
		response.BadRequest(c, 17004, cross.Error())
		return
	}

	switch {
	case errors.Is(err, service.ErrSemesterNotFound):
		response.NotFound(c, 14001, "学期不存在")
	case errors.Is(err, service.ErrEntryNotFound):
		response.NotFound(c, 17001, "日程条目不存在")
	case errors.Is(err, service.ErrTargetEntryCancelled):
		response.BadRequest(c, 17002, "目标条目已取消")
	case errors.Is(err, service.ErrReassignSameEntry):
		response.BadRequest(c, 17003, "源条目与目标条目相同")
	case errors.Is(err, service.ErrChildNotInEntry):
		response.BadRequest(c, 17005, "该儿童不在源条目中")
	case errors.Is(err, pkgerrors.ErrOptimisticLock):
		response.Conflict(c, 17006, pkgerrors.ErrOptimisticLock.Error())
	default:
		response.InternalError(c)
	}
}
