package models

import (
	"time"

	"gorm.io/gorm"
)

// CaseStatus 案件状态机：open → assigned → in_progress → resolved → closed，
// open 可直接 closed（重复/无效），失去全部活跃指派时回退 open。
type CaseStatus string

const (
	CaseOpen       CaseStatus = "open"
	CaseAssigned   CaseStatus = "assigned"
	CaseInProgress CaseStatus = "in_progress"
	CaseResolved   CaseStatus = "resolved"
	CaseClosed     CaseStatus = "closed"
)

func (s CaseStatus) Valid() bool {
	switch s {
	case CaseOpen, CaseAssigned, CaseInProgress, CaseResolved, CaseClosed:
		return true
	}
	return false
}

// Terminal resolved 与 closed 为终态
func (s CaseStatus) Terminal() bool { return s == CaseResolved || s == CaseClosed }

// Urgency 紧急程度
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

func (u Urgency) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return true
	}
	return false
}

// DangerLevel 危险等级
type DangerLevel string

const (
	DangerSafe            DangerLevel = "safe"
	DangerModerate        DangerLevel = "moderate"
	DangerSevere          DangerLevel = "severe"
	DangerLifeThreatening DangerLevel = "life_threatening"
)

func (d DangerLevel) Valid() bool {
	switch d {
	case DangerSafe, DangerModerate, DangerSevere, DangerLifeThreatening:
		return true
	}
	return false
}

// Case 原子求助请求
type Case struct {
	ID             uint        `json:"id" gorm:"primaryKey"`
	EmergencyID    *uint       `json:"emergencyId" gorm:"index"`
	CaseGroupID    *uint       `json:"caseGroupId" gorm:"index"`
	CallerUserID   *uint       `json:"callerUserId" gorm:"index"` // 匿名案件为空
	ReporterUserID *uint       `json:"reporterUserId"`            // 可与 caller 不同（第三方/自动检测）
	Latitude       float64     `json:"latitude"`
	Longitude      float64     `json:"longitude"`
	Description    string      `json:"description" gorm:"size:2048"`
	RawDescription string      `json:"rawDescription" gorm:"size:2048"` // 求助者原话
	PeopleCount    *int        `json:"peopleCount"`                     // 未知为空
	MobilityStatus string      `json:"mobilityStatus" gorm:"size:64"`
	Vulnerability  StringSet   `json:"vulnerability" gorm:"type:text"`
	Urgency        Urgency     `json:"urgency" gorm:"size:32"`
	DangerLevel    DangerLevel `json:"dangerLevel" gorm:"size:32"`
	Status         CaseStatus  `json:"status" gorm:"size:32;index;default:open"`
	ResolvedAt     *time.Time  `json:"resolvedAt"`
	Version        int64       `json:"-" gorm:"default:0"` // 乐观并发版本号，状态写入的条件键
	CreatedAt      time.Time   `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt      time.Time   `json:"updatedAt" gorm:"autoUpdateTime"`
}

// CreateCase 创建案件。紧急程度与危险等级缺省取安全侧默认值，
// 与原始上报未经研判时的处理一致。
func CreateCase(db *gorm.DB, c *Case) (*Case, error) {
	if c.Status == "" {
		c.Status = CaseOpen
	}
	if c.Urgency == "" {
		c.Urgency = UrgencyHigh
	}
	if c.DangerLevel == "" {
		c.DangerLevel = DangerSevere
	}
	if err := db.Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// GetCase 获取案件
func GetCase(db *gorm.DB, id uint) (*Case, error) {
	var c Case
	if err := db.First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCasesByStatus 按状态列出案件，创建时间倒序
func ListCasesByStatus(db *gorm.DB, statuses []CaseStatus) ([]Case, error) {
	var cases []Case
	if err := db.Where("status IN ?", statuses).
		Order("created_at DESC").Find(&cases).Error; err != nil {
		return nil, err
	}
	return cases, nil
}

// ListOpenCasesOlderThan 重扫候选：open 状态且创建早于给定时刻
func ListOpenCasesOlderThan(db *gorm.DB, cutoff time.Time) ([]Case, error) {
	var cases []Case
	if err := db.Where("status = ? AND created_at < ?", CaseOpen, cutoff).
		Find(&cases).Error; err != nil {
		return nil, err
	}
	return cases, nil
}

// CompareAndSetCaseStatus 条件更新案件状态：仅当版本号未变时写入。
// 返回 false 表示并发写入抢先，调用方应重读后重试或放弃。
func CompareAndSetCaseStatus(db *gorm.DB, id uint, version int64, updates map[string]any) (bool, error) {
	updates["version"] = version + 1
	res := db.Model(&Case{}).Where("id = ? AND version = ?", id, version).Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
