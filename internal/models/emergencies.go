package models

import (
	"time"

	"gorm.io/gorm"
)

// EmergencyStatus 灾情状态
type EmergencyStatus string

const (
	EmergencyActive    EmergencyStatus = "active"
	EmergencyContained EmergencyStatus = "contained"
	EmergencyResolved  EmergencyStatus = "resolved"
)

func (s EmergencyStatus) Valid() bool {
	switch s {
	case EmergencyActive, EmergencyContained, EmergencyResolved:
		return true
	}
	return false
}

// Emergency 顶层灾害事件
type Emergency struct {
	ID          uint            `json:"id" gorm:"primaryKey"`
	Name        string          `json:"name" gorm:"size:255"`
	Description string          `json:"description" gorm:"size:1024"`
	Status      EmergencyStatus `json:"status" gorm:"size:32;default:active"`
	StartedAt   time.Time       `json:"startedAt"`
	EndedAt     *time.Time      `json:"endedAt"` // 未结束时为空
	CreatedAt   time.Time       `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt   time.Time       `json:"updatedAt" gorm:"autoUpdateTime"`
}

// GroupStatus 案件组状态
type GroupStatus string

const (
	GroupOpen       GroupStatus = "open"
	GroupInProgress GroupStatus = "in_progress"
	GroupResolved   GroupStatus = "resolved"
)

func (s GroupStatus) Valid() bool {
	switch s {
	case GroupOpen, GroupInProgress, GroupResolved:
		return true
	}
	return false
}

// CaseGroup 一个灾情内相关案件的逻辑聚类，案件可不属于任何组
type CaseGroup struct {
	ID          uint        `json:"id" gorm:"primaryKey"`
	EmergencyID uint        `json:"emergencyId" gorm:"index"`
	Name        string      `json:"name" gorm:"size:255"`
	Status      GroupStatus `json:"status" gorm:"size:32;default:open"`
	CreatedAt   time.Time   `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt   time.Time   `json:"updatedAt" gorm:"autoUpdateTime"`
}

// CreateEmergency 创建灾情
func CreateEmergency(db *gorm.DB, e *Emergency) (*Emergency, error) {
	if e.Status == "" {
		e.Status = EmergencyActive
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now()
	}
	if err := db.Create(e).Error; err != nil {
		return nil, err
	}
	return e, nil
}

// GetEmergency 获取灾情
func GetEmergency(db *gorm.DB, id uint) (*Emergency, error) {
	var e Emergency
	if err := db.First(&e, id).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateCaseGroup 创建案件组
func CreateCaseGroup(db *gorm.DB, g *CaseGroup) (*CaseGroup, error) {
	if g.Status == "" {
		g.Status = GroupOpen
	}
	if err := db.Create(g).Error; err != nil {
		return nil, err
	}
	return g, nil
}

// GetCaseGroup 获取案件组
func GetCaseGroup(db *gorm.DB, id uint) (*CaseGroup, error) {
	var g CaseGroup
	if err := db.First(&g, id).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

// GetCaseGroupsByEmergency 获取灾情下的所有案件组
func GetCaseGroupsByEmergency(db *gorm.DB, emergencyID uint) ([]CaseGroup, error) {
	var groups []CaseGroup
	if err := db.Where("emergency_id = ?", emergencyID).Find(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}
