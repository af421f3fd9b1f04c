package timeline

import (
	"context"
	"time"

	"RescueHub/internal/models"
	"RescueHub/pkg/errors"

	"gorm.io/gorm"
)

// Recorder 唯一的审计时间线。只追加：既不改写也不重排历史。
// 其他组件不得自行保存并行历史。
type Recorder struct {
	db *gorm.DB
}

// NewRecorder 创建时间线记录器
func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

// Record 校验层级一致性后追加事件。引用已知上级实体时自动补全
// 缺失的上级引用；引用了不属于自己的上级则拒绝。
func (r *Recorder) Record(ctx context.Context, u *models.Update) error {
	return r.RecordTx(r.db.WithContext(ctx), u)
}

// RecordTx 在给定事务内追加事件，供状态转换与审计写入构成同一原子单元
func (r *Recorder) RecordTx(tx *gorm.DB, u *models.Update) error {
	if err := r.validate(tx, u); err != nil {
		return err
	}
	if err := models.InsertUpdate(tx, u); err != nil {
		return errors.Storage(err)
	}
	return nil
}

func (r *Recorder) validate(tx *gorm.DB, u *models.Update) error {
	if !u.Source.Valid() {
		return errors.InvalidReference("invalid update source %q", u.Source)
	}
	if u.Type == "" {
		return errors.InvalidReference("update type is required")
	}
	if u.EmergencyID == nil && u.CaseGroupID == nil && u.CaseID == nil && u.AssignmentID == nil {
		return errors.InvalidReference("update references no entity")
	}

	// 指派级事件：指派必须存在，案件引用须与之一致
	if u.AssignmentID != nil {
		a, err := models.GetAssignment(tx, *u.AssignmentID)
		if err != nil {
			return errors.InvalidReference("assignment %d not found", *u.AssignmentID)
		}
		if u.CaseID != nil && *u.CaseID != a.CaseID {
			return errors.InvalidReference("assignment %d does not belong to case %d", a.ID, *u.CaseID)
		}
		u.CaseID = &a.CaseID
	}

	// 案件级事件：携带已知的组/灾情引用，且不得指向别人的
	if u.CaseID != nil {
		c, err := models.GetCase(tx, *u.CaseID)
		if err != nil {
			return errors.InvalidReference("case %d not found", *u.CaseID)
		}
		if u.CaseGroupID != nil && (c.CaseGroupID == nil || *c.CaseGroupID != *u.CaseGroupID) {
			return errors.InvalidReference("case %d does not belong to group %d", c.ID, *u.CaseGroupID)
		}
		if u.EmergencyID != nil && (c.EmergencyID == nil || *c.EmergencyID != *u.EmergencyID) {
			return errors.InvalidReference("case %d does not belong to emergency %d", c.ID, *u.EmergencyID)
		}
		u.CaseGroupID = c.CaseGroupID
		u.EmergencyID = c.EmergencyID
	}

	// 组级事件：灾情引用须与组一致
	if u.CaseGroupID != nil && u.CaseID == nil {
		g, err := models.GetCaseGroup(tx, *u.CaseGroupID)
		if err != nil {
			return errors.InvalidReference("case group %d not found", *u.CaseGroupID)
		}
		if u.EmergencyID != nil && *u.EmergencyID != g.EmergencyID {
			return errors.InvalidReference("group %d does not belong to emergency %d", g.ID, *u.EmergencyID)
		}
		u.EmergencyID = &g.EmergencyID
	}

	if u.EmergencyID != nil && u.CaseGroupID == nil && u.CaseID == nil {
		if _, err := models.GetEmergency(tx, *u.EmergencyID); err != nil {
			return errors.InvalidReference("emergency %d not found", *u.EmergencyID)
		}
	}
	return nil
}

// Query 倒序分页查询；limit 1 即"最新状态"
func (r *Recorder) Query(ctx context.Context, f models.UpdateFilter, limit int, before time.Time) ([]models.Update, error) {
	updates, err := models.QueryUpdates(r.db.WithContext(ctx), f, limit, before)
	if err != nil {
		return nil, errors.Storage(err)
	}
	return updates, nil
}

// Latest 指定过滤条件下最近的一条事件，没有时返回 nil
func (r *Recorder) Latest(ctx context.Context, f models.UpdateFilter) (*models.Update, error) {
	updates, err := r.Query(ctx, f, 1, time.Time{})
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return nil, nil
	}
	return &updates[0], nil
}
