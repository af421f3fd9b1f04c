package ledger

import (
	"context"
	"fmt"
	"time"

	"RescueHub/internal/matching"
	"RescueHub/internal/models"
	"RescueHub/internal/timeline"
	"RescueHub/pkg/errors"
	"RescueHub/pkg/metrics"
	"RescueHub/pkg/signals"

	"gorm.io/gorm"
)

// SigAssignmentCreated 新指派信号，sender 为 *models.Assignment
const SigAssignmentCreated = "assignment.created"

// errLostRace 条件写入被并发抢先，整个操作重读重试
var errLostRace = errors.New("lost optimistic write race")

// Ledger 指派台账：唯一拥有案件状态机与指派生命周期的组件。
// 案件状态是指派集合的纯函数，不接受独立改动。
// 每次成功的状态转换与其审计事件在同一事务内落盘。
type Ledger struct {
	db         *gorm.DB
	match      *matching.Engine
	rec        *timeline.Recorder
	metrics    *metrics.Metrics
	casRetries int
}

// New 创建台账，m 可为 nil
func New(db *gorm.DB, match *matching.Engine, rec *timeline.Recorder, m *metrics.Metrics, casRetries int) *Ledger {
	if casRetries <= 0 {
		casRetries = 5
	}
	return &Ledger{db: db, match: match, rec: rec, metrics: m, casRetries: casRetries}
}

// retry 在乐观并发冲突下重跑整个操作，其余错误原样返回
func (l *Ledger) retry(fn func() error) error {
	for i := 0; i < l.casRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		if err == errLostRace {
			if l.metrics != nil {
				l.metrics.RecordConflict()
			}
			continue
		}
		return err
	}
	return errors.Conflict("case update lost %d optimistic write races, giving up", l.casRetries)
}

// transition 在事务内做一次条件状态写入并记录审计事件。
// extra 与状态一起写入（如 resolved_at），竞争失败返回 errLostRace。
func (l *Ledger) transition(tx *gorm.DB, c *models.Case, to models.CaseStatus, extra map[string]any, source models.UpdateSource) error {
	if !canTransition(c.Status, to) {
		return errors.Conflict("cannot transition case %d from %s to %s", c.ID, c.Status, to)
	}
	updates := map[string]any{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	ok, err := models.CompareAndSetCaseStatus(tx, c.ID, c.Version, updates)
	if err != nil {
		return errors.Storage(err)
	}
	if !ok {
		return errLostRace
	}
	if err := l.rec.RecordTx(tx, &models.Update{
		CaseID: &c.ID,
		Source: source,
		Type:   models.UpdateTypeStatusChange,
		Text:   fmt.Sprintf("Status changed from %s to %s", c.Status, to),
	}); err != nil {
		return err
	}
	if l.metrics != nil {
		l.metrics.RecordTransition(string(c.Status), string(to))
	}
	return nil
}

// CreateAssignment 为案件创建指派。
// 即使匹配引擎已经过滤，这里仍在服务端复核资格，
// 以关闭并发修改技能/范围造成的竞态窗口。
func (l *Ledger) CreateAssignment(ctx context.Context, caseID, helperID uint) (*models.Assignment, error) {
	var created *models.Assignment
	err := l.retry(func() error {
		created = nil
		return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			c, err := models.GetCase(tx, caseID)
			if err != nil {
				return errors.NotFound("case", caseID)
			}
			if c.Status.Terminal() {
				return errors.Conflict("cannot assign case %d in state %s", c.ID, c.Status)
			}

			helper, err := models.GetUser(tx, helperID)
			if err != nil {
				return errors.NotFound("user", helperID)
			}
			if _, ok := l.match.Eligible(c, helper); !ok {
				return errors.NotEligible("helper %d does not meet skill or range requirements for case %d", helperID, caseID).
					WithContext("case_status", string(c.Status))
			}

			dup, err := models.HasActiveAssignment(tx, caseID, helperID)
			if err != nil {
				return errors.Storage(err)
			}
			if dup {
				return errors.DuplicateActive(caseID, helperID)
			}

			a := &models.Assignment{CaseID: caseID, HelperUserID: helperID}
			if err := tx.Create(a).Error; err != nil {
				return errors.Storage(err)
			}

			// open 案件进入 assigned；已 assigned/in_progress 时仅追加并发指派。
			// 追加也要条件推进版本号，与并发终止事务串行化：
			// 输掉竞争的一方重读后看到终态，不会给已关闭案件留下活跃指派
			if c.Status == models.CaseOpen {
				if err := l.transition(tx, c, models.CaseAssigned, nil, models.SourceSystem); err != nil {
					return err
				}
			} else {
				ok, err := models.CompareAndSetCaseStatus(tx, c.ID, c.Version, map[string]any{"status": c.Status})
				if err != nil {
					return errors.Storage(err)
				}
				if !ok {
					return errLostRace
				}
			}

			if err := l.rec.RecordTx(tx, &models.Update{
				CaseID:       &caseID,
				AssignmentID: &a.ID,
				Source:       models.SourceHelper,
				Type:         models.UpdateTypeAssignmentCreated,
				Text:         fmt.Sprintf("Helper %d assigned to case", helperID),
			}); err != nil {
				return err
			}
			created = a
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if l.metrics != nil {
		l.metrics.RecordAssignment("created")
	}
	signals.Sig().Emit(SigAssignmentCreated, created)
	return created, nil
}

// StartProgress 帮助者标记开始处置，案件进入 in_progress
func (l *Ledger) StartProgress(ctx context.Context, assignmentID uint) (*models.Assignment, error) {
	var out *models.Assignment
	err := l.retry(func() error {
		return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			a, err := models.GetAssignment(tx, assignmentID)
			if err != nil {
				return errors.NotFound("assignment", assignmentID)
			}
			if !a.Active() {
				return errors.NotActive(assignmentID)
			}
			now := time.Now()
			if err := tx.Model(a).Updates(map[string]any{"started_at": now}).Error; err != nil {
				return errors.Storage(err)
			}
			a.StartedAt = &now

			c, err := models.GetCase(tx, a.CaseID)
			if err != nil {
				return errors.Storage(err)
			}
			if c.Status == models.CaseAssigned {
				if err := l.transition(tx, c, models.CaseInProgress, nil, models.SourceHelper); err != nil {
					return err
				}
			}
			if err := l.rec.RecordTx(tx, &models.Update{
				CaseID:       &a.CaseID,
				AssignmentID: &a.ID,
				Source:       models.SourceHelper,
				Type:         models.UpdateTypeAssignmentStarted,
				Text:         fmt.Sprintf("Helper %d started working on case", a.HelperUserID),
			}); err != nil {
				return err
			}
			out = a
			return nil
		})
	})
	return out, err
}

// CompleteAssignment 终止指派并按 §指派集合 重算案件状态：
//   - successful 且无其余活跃指派 ⇒ resolved（写 resolved_at）；
//   - 其余结局且无活跃指派 ⇒ 回退 open（除非案件已终态）；
//   - 仍有活跃指派但全部未开始处置 ⇒ in_progress 退回 assigned；
//   - 案件已 resolved/closed 时只记录结局，不再转换。
func (l *Ledger) CompleteAssignment(ctx context.Context, assignmentID uint, outcome models.Outcome, notes string) (*models.Assignment, error) {
	if !outcome.Valid() {
		return nil, errors.InvalidReference("invalid outcome %q", outcome)
	}
	var out *models.Assignment
	err := l.retry(func() error {
		return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			a, err := models.GetAssignment(tx, assignmentID)
			if err != nil {
				return errors.NotFound("assignment", assignmentID)
			}
			if !a.Active() {
				return errors.NotActive(assignmentID)
			}
			now := time.Now()
			updates := map[string]any{
				"completed_at": now,
				"outcome":      outcome,
			}
			if notes != "" {
				updates["notes"] = notes
				a.Notes = notes
			}
			if err := tx.Model(a).Updates(updates).Error; err != nil {
				return errors.Storage(err)
			}
			a.CompletedAt = &now
			a.Outcome = &outcome

			if err := l.reconcileCase(tx, a.CaseID, outcome); err != nil {
				return err
			}
			if err := l.rec.RecordTx(tx, &models.Update{
				CaseID:       &a.CaseID,
				AssignmentID: &a.ID,
				Source:       models.SourceHelper,
				Type:         models.UpdateTypeAssignmentDone,
				Text:         fmt.Sprintf("Assignment completed: %s", outcome),
			}); err != nil {
				return err
			}
			out = a
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if l.metrics != nil {
		l.metrics.RecordAssignment(string(outcome))
	}
	return out, nil
}

// reconcileCase 指派终止后的案件状态重算
func (l *Ledger) reconcileCase(tx *gorm.DB, caseID uint, outcome models.Outcome) error {
	c, err := models.GetCase(tx, caseID)
	if err != nil {
		return errors.Storage(err)
	}
	if c.Status.Terminal() {
		return nil
	}
	active, err := models.ActiveAssignments(tx, caseID)
	if err != nil {
		return errors.Storage(err)
	}
	if len(active) > 0 {
		// 剩余活跃指派全都未开始处置时，in_progress 退回 assigned
		if c.Status == models.CaseInProgress {
			for i := range active {
				if active[i].StartedAt != nil {
					return nil
				}
			}
			return l.transition(tx, c, models.CaseAssigned, nil, models.SourceSystem)
		}
		return nil
	}
	if outcome == models.OutcomeSuccessful {
		now := time.Now()
		return l.transition(tx, c, models.CaseResolved, map[string]any{"resolved_at": now}, models.SourceHelper)
	}
	// 最后一个活跃指派以非成功结局终止：回到可重新匹配的 open
	return l.transition(tx, c, models.CaseOpen, nil, models.SourceSystem)
}

// Reassign 原子地以 reassigned 终止给定指派并重新匹配替补。
// 没有替补时案件走"无活跃指派"分支（回退 open），返回 nil 指派。
func (l *Ledger) Reassign(ctx context.Context, assignmentID uint) (*models.Assignment, error) {
	old, err := l.CompleteAssignment(ctx, assignmentID, models.OutcomeReassigned, "")
	if err != nil {
		return nil, err
	}

	c, err := models.GetCase(l.db.WithContext(ctx), old.CaseID)
	if err != nil {
		return nil, errors.Storage(err)
	}
	candidates, err := l.match.FindCandidates(ctx, c)
	if err != nil {
		return nil, errors.Storage(err)
	}
	seen, err := models.HelperIDsEverAssigned(l.db.WithContext(ctx), old.CaseID)
	if err != nil {
		return nil, errors.Storage(err)
	}
	for _, cand := range candidates {
		if seen[cand.Helper.ID] {
			continue
		}
		next, err := l.CreateAssignment(ctx, old.CaseID, cand.Helper.ID)
		if err != nil {
			// 候选在此期间失格或抢先被占用，试下一位
			if errors.IsCode(err, errors.CodeNotEligible) || errors.IsCode(err, errors.CodeDuplicateActive) {
				continue
			}
			return nil, err
		}
		return next, nil
	}
	return nil, nil
}

// ResolveCase 求助者（或官方）确认需求已满足。
// 这是唯一允许在零指派下进行的转换；活跃指派以 successful 终止。
func (l *Ledger) ResolveCase(ctx context.Context, caseID uint, source models.UpdateSource) error {
	return l.terminateCase(ctx, caseID, models.CaseResolved, models.OutcomeSuccessful, source)
}

// CloseCase 行政关闭（重复、无效、撤回）。活跃指派以 cancelled 终止。
// 与并发 CreateAssignment 竞争时由版本号裁决：先提交者赢，后者拿到冲突。
func (l *Ledger) CloseCase(ctx context.Context, caseID uint, source models.UpdateSource) error {
	return l.terminateCase(ctx, caseID, models.CaseClosed, models.OutcomeCancelled, source)
}

func (l *Ledger) terminateCase(ctx context.Context, caseID uint, to models.CaseStatus, outcome models.Outcome, source models.UpdateSource) error {
	return l.retry(func() error {
		return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			c, err := models.GetCase(tx, caseID)
			if err != nil {
				return errors.NotFound("case", caseID)
			}
			if !canTransition(c.Status, to) {
				return errors.Conflict("cannot transition case %d from %s to %s", c.ID, c.Status, to)
			}

			active, err := models.ActiveAssignments(tx, caseID)
			if err != nil {
				return errors.Storage(err)
			}
			now := time.Now()
			for i := range active {
				a := &active[i]
				if err := tx.Model(a).Updates(map[string]any{
					"completed_at": now,
					"outcome":      outcome,
				}).Error; err != nil {
					return errors.Storage(err)
				}
				if err := l.rec.RecordTx(tx, &models.Update{
					CaseID:       &caseID,
					AssignmentID: &a.ID,
					Source:       models.SourceSystem,
					Type:         models.UpdateTypeAssignmentDone,
					Text:         fmt.Sprintf("Assignment completed: %s", outcome),
				}); err != nil {
					return err
				}
			}

			extra := map[string]any{}
			if to == models.CaseResolved {
				extra["resolved_at"] = now
			}
			return l.transition(tx, c, to, extra, source)
		})
	})
}
