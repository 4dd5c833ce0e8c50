package model

import (
	"time"

	"gorm.io/gorm"
)

// BaseModel 审计字段：谁在何时创建/最后修改
type BaseModel struct {
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	CreatedBy *string   `gorm:"type:uuid"                          json:"created_by,omitempty"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	UpdatedBy *string   `gorm:"type:uuid"                          json:"updated_by,omitempty"`
}

// StampCreated 新建记录时写入创建人与修改人
func (m *BaseModel) StampCreated(operatorID string) {
	m.CreatedBy = &operatorID
	m.UpdatedBy = &operatorID
}

// StampUpdated 记录最后修改人
func (m *BaseModel) StampUpdated(operatorID string) {
	m.UpdatedBy = &operatorID
}

// SoftDeleteModel 学期删除后保留审计痕迹
type SoftDeleteModel struct {
	BaseModel
	DeletedAt gorm.DeletedAt `gorm:"index"    json:"deleted_at,omitempty"`
	DeletedBy *string        `gorm:"type:uuid" json:"deleted_by,omitempty"`
}

// VersionedModel 带乐观锁版本号的软删除模型
type VersionedModel struct {
	SoftDeleteModel
	Version int `gorm:"not null;default:1" json:"version"`
}
