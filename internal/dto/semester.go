package dto

// ── 学期模块 DTO ──

// CreateSemesterRequest 创建学期请求
type CreateSemesterRequest struct {
	Name      string `json:"name"       binding:"required,min=2,max=100"`
	StartDate string `json:"start_date" binding:"required"` // "2025-01-06"
	EndDate   string `json:"end_date"   binding:"required"` // "2025-06-27"
}

// UpdateSemesterRequest 更新学期请求
type UpdateSemesterRequest struct {
	Name      *string `json:"name"       binding:"omitempty,min=2,max=100"`
	StartDate *string `json:"start_date"`
	EndDate   *string `json:"end_date"`
}

// SemesterResponse 学期信息响应
type SemesterResponse struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	StartDate string             `json:"start_date"`
	EndDate   string             `json:"end_date"`
	IsActive  bool               `json:"is_active"`
	Version   int                `json:"version"`
	Vacations []VacationResponse `json:"vacations,omitempty"`
	CreatedAt string             `json:"created_at"`
	UpdatedAt string             `json:"updated_at"`
}

// ── 假期 ──

// CreateVacationRequest 新增假期请求
type CreateVacationRequest struct {
	Name      string `json:"name"       binding:"required,min=1,max=100"`
	StartDate string `json:"start_date" binding:"required"`
	EndDate   string `json:"end_date"   binding:"required"`
	Kind      string `json:"kind"       binding:"omitempty,oneof=vacation holiday"`
}

// VacationResponse 假期响应
type VacationResponse struct {
	ID         string `json:"id"`
	SemesterID string `json:"semester_id"`
	Name       string `json:"name"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	Kind       string `json:"kind"`
}

// HolidayImportResponse 节假日日历导入结果
type HolidayImportResponse struct {
	Imported []VacationResponse `json:"imported"`
	Skipped  int                `json:"skipped"` // 不在学期范围内或已存在
}
