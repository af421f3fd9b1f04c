package models

import (
	"time"

	"gorm.io/gorm"
)

// UpdateSource 事件来源
type UpdateSource string

const (
	SourceHelper   UpdateSource = "helper"
	SourceCaller   UpdateSource = "caller"
	SourceAIAgent  UpdateSource = "ai_agent"
	SourceOfficial UpdateSource = "official"
	SourceSystem   UpdateSource = "system"
)

func (s UpdateSource) Valid() bool {
	switch s {
	case SourceHelper, SourceCaller, SourceAIAgent, SourceOfficial, SourceSystem:
		return true
	}
	return false
}

// 常用事件类型
const (
	UpdateTypeCaseCreated       = "case_created"
	UpdateTypeStatusChange      = "status_change"
	UpdateTypeAssignmentCreated = "assignment_created"
	UpdateTypeAssignmentStarted = "assignment_started"
	UpdateTypeAssignmentDone    = "assignment_completed"
	UpdateTypeGuidance          = "guidance"
	UpdateTypeProcessingError   = "processing_error"
)

// Update 只追加的审计记录，可引用实体层级的任意子集。
// 创建后永不修改或删除；时间线是"何时发生了什么"的唯一事实来源。
type Update struct {
	ID           uint         `json:"id" gorm:"primaryKey"`
	EmergencyID  *uint        `json:"emergencyId" gorm:"index"`
	CaseGroupID  *uint        `json:"caseGroupId" gorm:"index"`
	CaseID       *uint        `json:"caseId" gorm:"index"`
	AssignmentID *uint        `json:"assignmentId" gorm:"index"`
	Source       UpdateSource `json:"source" gorm:"size:32"`
	Type         string       `json:"type" gorm:"size:64"`
	Text         string       `json:"text" gorm:"size:2048"`
	CreatedAt    time.Time    `json:"createdAt" gorm:"autoCreateTime"`
}

// InsertUpdate 追加一条审计记录（校验在 timeline 包完成）
func InsertUpdate(db *gorm.DB, u *Update) error {
	return db.Create(u).Error
}

// UpdateFilter 时间线查询条件，零值字段不参与过滤
type UpdateFilter struct {
	EmergencyID  *uint
	CaseGroupID  *uint
	CaseID       *uint
	AssignmentID *uint
	Type         string
}

// QueryUpdates 按条件倒序分页查询；before 非零时仅返回更早的记录
func QueryUpdates(db *gorm.DB, f UpdateFilter, limit int, before time.Time) ([]Update, error) {
	q := db.Model(&Update{})
	if f.EmergencyID != nil {
		q = q.Where("emergency_id = ?", *f.EmergencyID)
	}
	if f.CaseGroupID != nil {
		q = q.Where("case_group_id = ?", *f.CaseGroupID)
	}
	if f.CaseID != nil {
		q = q.Where("case_id = ?", *f.CaseID)
	}
	if f.AssignmentID != nil {
		q = q.Where("assignment_id = ?", *f.AssignmentID)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if !before.IsZero() {
		q = q.Where("created_at < ?", before)
	}
	if limit <= 0 {
		limit = 50
	}
	var updates []Update
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&updates).Error; err != nil {
		return nil, err
	}
	return updates, nil
}
