package model

// Staff 员工目录 — 对应 staff（由目录子系统维护，本服务只读）
type Staff struct {
	StaffID  string `gorm:"type:uuid;primaryKey" json:"staff_id"`
	FullName string `gorm:"type:varchar(150);not null" json:"full_name"`
	IsActive bool   `gorm:"not null;default:true" json:"is_active"`
}

func (Staff) TableName() string { return "staff" }

// Child 儿童目录 — 对应 children（只读）
type Child struct {
	ChildID  string `gorm:"type:uuid;primaryKey" json:"child_id"`
	FullName string `gorm:"type:varchar(150);not null" json:"full_name"`
	IsActive bool   `gorm:"not null;default:true" json:"is_active"`
}

func (Child) TableName() string { return "children" }

// ChildGuardian 监护关系 — 对应 child_guardians（只读，访问控制使用）
type ChildGuardian struct {
	ChildID    string `gorm:"type:uuid;primaryKey" json:"child_id"`
	GuardianID string `gorm:"type:uuid;primaryKey" json:"guardian_id"`
}

func (ChildGuardian) TableName() string { return "child_guardians" }
