package model

import "time"

// ScheduleEntry 日程条目表 — 对应 schedule_entries
// 每一行是某位员工在某个具体日期的一次活动，StartTime/EndTime 为绝对时间
type ScheduleEntry struct {
	EntryID    string    `gorm:"type:uuid;primaryKey"         json:"entry_id"`
	StaffID    string    `gorm:"type:uuid;not null;index"     json:"staff_id"`
	SemesterID string    `gorm:"type:uuid;not null;index"     json:"semester_id"`
	DayOfWeek  int       `gorm:"type:smallint;not null"       json:"day_of_week"` // 1-5
	StartTime  time.Time `gorm:"not null"                     json:"start_time"`
	EndTime    time.Time `gorm:"not null"                     json:"end_time"`
	Activity   string    `gorm:"type:varchar(200);not null"   json:"activity"`
	Cancelled  bool      `gorm:"not null;default:false"       json:"cancelled"`
	Version    int       `gorm:"not null;default:1"           json:"version"`
	BaseModel

	// 关联
	Staff    *Staff               `gorm:"foreignKey:StaffID;references:StaffID" json:"staff,omitempty"`
	Children []ScheduleEntryChild `gorm:"foreignKey:EntryID"                    json:"children,omitempty"`
}

func (ScheduleEntry) TableName() string { return "schedule_entries" }

// ScheduleEntryChild 条目-儿童关联表 — 对应 schedule_entry_children
// (entry_id, child_id) 为联合主键，同一儿童在同一条目中至多出现一次
type ScheduleEntryChild struct {
	EntryID string `gorm:"type:uuid;primaryKey" json:"entry_id"`
	ChildID string `gorm:"type:uuid;primaryKey" json:"child_id"`

	Child *Child `gorm:"foreignKey:ChildID;references:ChildID" json:"child,omitempty"`
}

func (ScheduleEntryChild) TableName() string { return "schedule_entry_children" }

// ScheduleImport 导入记录表 — 对应 schedule_imports（与替换操作同一事务写入）
type ScheduleImport struct {
	ImportID      string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"import_id"`
	SemesterID    string    `gorm:"type:uuid;not null;index"                       json:"semester_id"`
	FileName      string    `gorm:"type:varchar(255);not null"                     json:"file_name"`
	FileSHA256    string    `gorm:"column:file_sha256;type:char(64);not null"      json:"file_sha256"`
	TemplateSlots int       `gorm:"not null"                                       json:"template_slots"`
	EntryCount    int       `gorm:"not null"                                       json:"entry_count"`
	ImportedBy    string    `gorm:"type:uuid;not null"                             json:"imported_by"`
	ImportedAt    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"imported_at"`
}

func (ScheduleImport) TableName() string { return "schedule_imports" }

// 变更类型
const (
	ChangeTypeCancel      = "cancel"
	ChangeTypeReactivate  = "reactivate"
	ChangeTypeReassignAll = "reassign_all"
	ChangeTypeReassignOne = "reassign_one"
)

// ScheduleEntryChangeLog 条目变更记录表 — 对应 schedule_entry_change_logs（纯审计日志）
type ScheduleEntryChangeLog struct {
	ChangeLogID   string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"change_log_id"`
	SemesterID    string    `gorm:"type:uuid;not null;index"                       json:"semester_id"`
	EntryID       string    `gorm:"type:uuid;not null"                             json:"entry_id"`
	TargetEntryID *string   `gorm:"type:uuid"                                      json:"target_entry_id,omitempty"`
	ChildID       *string   `gorm:"type:uuid"                                      json:"child_id,omitempty"`
	ChangeType    string    `gorm:"type:varchar(20);not null"                      json:"change_type"` // cancel | reactivate | reassign_all | reassign_one
	OperatorID    string    `gorm:"type:uuid;not null"                             json:"operator_id"`
	CreatedAt     time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"created_at"`
}

func (ScheduleEntryChangeLog) TableName() string { return "schedule_entry_change_logs" }

// [自证通过] internal/model/schedule.go
