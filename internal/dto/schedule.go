package dto

// ── 日程模块 DTO ──

// StaffBrief 员工简要信息
type StaffBrief struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
}

// ChildBrief 儿童简要信息
type ChildBrief struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
}

// ScheduleEntryResponse 日程条目响应
type ScheduleEntryResponse struct {
	ID         string       `json:"id"`
	SemesterID string       `json:"semester_id"`
	Staff      StaffBrief   `json:"staff"`
	DayOfWeek  int          `json:"day_of_week"`
	Date       string       `json:"date"`       // "2025-01-06"
	StartTime  string       `json:"start_time"` // RFC3339
	EndTime    string       `json:"end_time"`
	Activity   string       `json:"activity"`
	Cancelled  bool         `json:"cancelled"`
	Version    int          `json:"version"`
	Children   []ChildBrief `json:"children"`
}

// AlternativeEntryResponse 候选替代条目（按儿童数升序）
type AlternativeEntryResponse struct {
	ScheduleEntryResponse
	ChildCount int `json:"child_count"`
}

// ScheduleQuery 日程查询过滤条件
type ScheduleQuery struct {
	From             string `form:"from"`              // "2025-01-06"，含
	To               string `form:"to"`                // "2025-01-31"，含
	IncludeCancelled bool   `form:"include_cancelled"` // 默认不返回已取消条目
}

// SchedulePreviewResponse 预览结果：与正式导入将写入的内容完全一致
type SchedulePreviewResponse struct {
	SemesterID    string                  `json:"semester_id"`
	TemplateSlots int                     `json:"template_slots"`
	WeekCount     int                     `json:"week_count"`
	EntryCount    int                     `json:"entry_count"`
	Entries       []ScheduleEntryResponse `json:"entries"`
}

// ScheduleImportResponse 导入结果
type ScheduleImportResponse struct {
	ImportID      string `json:"import_id"`
	SemesterID    string `json:"semester_id"`
	FileName      string `json:"file_name"`
	TemplateSlots int    `json:"template_slots"`
	WeekCount     int    `json:"week_count"`
	EntryCount    int    `json:"entry_count"`
	ImportedAt    string `json:"imported_at"`
}

// ScheduleImportRecordResponse 历史导入记录
type ScheduleImportRecordResponse struct {
	ImportID      string `json:"import_id"`
	FileName      string `json:"file_name"`
	FileSHA256    string `json:"file_sha256"`
	TemplateSlots int    `json:"template_slots"`
	EntryCount    int    `json:"entry_count"`
	ImportedBy    string `json:"imported_by"`
	ImportedAt    string `json:"imported_at"`
}

// ScheduleImportListRequest 导入记录列表请求
type ScheduleImportListRequest struct {
	PaginationRequest
}

// ViolationResponse 校验问题
type ViolationResponse struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Name      string `json:"name,omitempty"`
	StaffName string `json:"staff_name,omitempty"`
	Day       int    `json:"day,omitempty"`
	SlotIndex int    `json:"slot_index,omitempty"`
	Row       int    `json:"row,omitempty"`
	Period    string `json:"period,omitempty"`
}

// ValidationReportResponse 校验报告
type ValidationReportResponse struct {
	Valid      bool                `json:"valid"`
	Counts     map[string]int      `json:"counts,omitempty"`
	Violations []ViolationResponse `json:"violations"`
}

// TemplateErrorResponse 模板结构错误（首个错误即终止）
type TemplateErrorResponse struct {
	Sheet string `json:"sheet,omitempty"`
	Row   int    `json:"row,omitempty"`
	Col   int    `json:"col,omitempty"`
	Cell  string `json:"cell,omitempty"`
	Value string `json:"value,omitempty"`
}

// ── 条目变更 ──

// SetCancelledRequest 取消/恢复条目
type SetCancelledRequest struct {
	Cancelled *bool `json:"cancelled" binding:"required"`
	Version   int   `json:"version"   binding:"omitempty,min=1"` // 传入时做乐观锁校验
}

// ReassignChildrenRequest 把源条目的全部儿童移到目标条目
type ReassignChildrenRequest struct {
	TargetEntryID string `json:"target_entry_id" binding:"required,uuid"`
}

// ReassignOneChildRequest 把源条目的一名儿童移到目标条目
type ReassignOneChildRequest struct {
	ChildID       string `json:"child_id"        binding:"required,uuid"`
	TargetEntryID string `json:"target_entry_id" binding:"required,uuid"`
}

// ChangeLogListRequest 变更日志列表请求
type ChangeLogListRequest struct {
	PaginationRequest
}

// ChangeLogResponse 变更日志响应
type ChangeLogResponse struct {
	ID            string  `json:"id"`
	SemesterID    string  `json:"semester_id"`
	EntryID       string  `json:"entry_id"`
	TargetEntryID *string `json:"target_entry_id,omitempty"`
	ChildID       *string `json:"child_id,omitempty"`
	ChangeType    string  `json:"change_type"`
	OperatorID    string  `json:"operator_id"`
	CreatedAt     string  `json:"created_at"`
}

// ReassignResponse 重新分配结果
type ReassignResponse struct {
	Source ScheduleEntryResponse `json:"source"`
	Target ScheduleEntryResponse `json:"target"`
	Moved  int                   `json:"moved"` // 实际移动的儿童数（目标条目已有的不计）
}
