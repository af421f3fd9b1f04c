package models

import (
	"time"

	"gorm.io/gorm"
)

// Outcome 指派结局，活跃期间为空
type Outcome string

const (
	OutcomeSuccessful Outcome = "successful"
	OutcomeFailed     Outcome = "failed"
	OutcomeReassigned Outcome = "reassigned"
	OutcomeCancelled  Outcome = "cancelled"
)

func (o Outcome) Valid() bool {
	switch o {
	case OutcomeSuccessful, OutcomeFailed, OutcomeReassigned, OutcomeCancelled:
		return true
	}
	return false
}

// Assignment 案件与帮助者的多对多关联，自带生命周期。
// 一个案件可有多条历史指派，一个帮助者可同时持有多个案件的指派。
type Assignment struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	CaseID       uint       `json:"caseId" gorm:"index"`
	HelperUserID uint       `json:"helperUserId" gorm:"index"`
	AssignedAt   time.Time  `json:"assignedAt" gorm:"autoCreateTime"`
	StartedAt    *time.Time `json:"startedAt"`   // 帮助者标记开始处置的时刻
	CompletedAt  *time.Time `json:"completedAt"` // 活跃期间为空
	Outcome      *Outcome   `json:"outcome" gorm:"size:32"`
	Notes        string     `json:"notes" gorm:"size:1024"`
}

// Active 指派是否仍在活跃（未终止）
func (a *Assignment) Active() bool { return a.CompletedAt == nil }

// GetAssignment 获取指派
func GetAssignment(db *gorm.DB, id uint) (*Assignment, error) {
	var a Assignment
	if err := db.First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// ActiveAssignments 案件的全部活跃指派
func ActiveAssignments(db *gorm.DB, caseID uint) ([]Assignment, error) {
	var list []Assignment
	if err := db.Where("case_id = ? AND completed_at IS NULL", caseID).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// HasActiveAssignment 帮助者在该案件上是否已有活跃指派
func HasActiveAssignment(db *gorm.DB, caseID, helperID uint) (bool, error) {
	var n int64
	err := db.Model(&Assignment{}).
		Where("case_id = ? AND helper_user_id = ? AND completed_at IS NULL", caseID, helperID).
		Count(&n).Error
	return n > 0, err
}

// AssignmentsByCase 案件的全部指派（含历史），指派时间倒序
func AssignmentsByCase(db *gorm.DB, caseID uint) ([]Assignment, error) {
	var list []Assignment
	if err := db.Where("case_id = ?", caseID).
		Order("assigned_at DESC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// AssignmentsByHelper 帮助者的指派，可选包含已完成的
func AssignmentsByHelper(db *gorm.DB, helperID uint, includeCompleted bool) ([]Assignment, error) {
	q := db.Where("helper_user_id = ?", helperID)
	if !includeCompleted {
		q = q.Where("completed_at IS NULL")
	}
	var list []Assignment
	if err := q.Order("assigned_at DESC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// HelperIDsEverAssigned 曾被指派到该案件的帮助者集合（重派时跳过）
func HelperIDsEverAssigned(db *gorm.DB, caseID uint) (map[uint]bool, error) {
	var ids []uint
	if err := db.Model(&Assignment{}).Where("case_id = ?", caseID).
		Pluck("helper_user_id", &ids).Error; err != nil {
		return nil, err
	}
	seen := make(map[uint]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	return seen, nil
}
