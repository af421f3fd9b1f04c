package channel

import (
	"context"
	"time"

	"RescueHub/internal/models"
	"RescueHub/internal/timeline"
	"RescueHub/pkg/errors"
	"RescueHub/pkg/metrics"

	"gorm.io/gorm"
)

// sideRoles 某一方可用的发送角色
func sideRoles(side string) []models.SenderRole {
	if side == "helper" {
		return []models.SenderRole{models.SenderHelperAgent, models.SenderHelperUser}
	}
	return []models.SenderRole{models.SenderVictimAgent, models.SenderVictimUser}
}

// terminatingSide 由结局推断触发终止的一方：cancelled 出自求助方或官方的关闭，
// 其余结局由帮助方的完成动作产生
func terminatingSide(o *models.Outcome) string {
	if o != nil && *o == models.OutcomeCancelled {
		return "victim"
	}
	return "helper"
}

// Channel 指派线程内帮助方与求助方的异步问答通道。
// 双方各自轮询，消息只追加，已读标记 unread → read 单向翻转。
type Channel struct {
	db      *gorm.DB
	rec     *timeline.Recorder
	metrics *metrics.Metrics
	// grace 指派终止后仍接受收尾 status_update 的时间窗
	grace time.Duration
	batch int
}

// New 创建通道，m 可为 nil
func New(db *gorm.DB, rec *timeline.Recorder, m *metrics.Metrics, grace time.Duration, pollBatch int) *Channel {
	if pollBatch <= 0 {
		pollBatch = 50
	}
	return &Channel{db: db, rec: rec, metrics: m, grace: grace, batch: pollBatch}
}

// Post 校验协议后向线程追加一条消息。
// 指派终止后通道关闭；宽限窗内触发终止的一方还可发一条收尾 status_update。
func (ch *Channel) Post(ctx context.Context, m *models.AgentMessage) (*models.AgentMessage, error) {
	if !m.Sender.Valid() {
		return nil, errors.InvalidReference("invalid sender role %q", m.Sender)
	}
	if !m.Type.Valid() {
		return nil, errors.InvalidReference("invalid message type %q", m.Type)
	}
	if len(m.Options) > 0 {
		if m.Type != models.MessageQuestion {
			return nil, errors.InvalidReference("options are only allowed on questions")
		}
		if !m.Cardinality.Valid() {
			return nil, errors.InvalidReference("question with options requires a cardinality")
		}
	}

	err := ch.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := models.GetAssignment(tx, m.AssignmentID)
		if err != nil {
			return errors.NotFound("assignment", m.AssignmentID)
		}
		m.CaseID = a.CaseID

		if !a.Active() {
			if err := ch.allowFinalWord(tx, a, m); err != nil {
				return err
			}
		}

		if m.InResponseTo != nil {
			if err := ch.validateBackRef(tx, m); err != nil {
				return err
			}
		}
		if err := models.InsertMessage(tx, m); err != nil {
			return errors.Storage(err)
		}
		// 指导类消息同时进入审计时间线，事后可追溯给过哪些建议
		if m.Type == models.MessageGuidance {
			return ch.rec.RecordTx(tx, &models.Update{
				CaseID:       &m.CaseID,
				AssignmentID: &m.AssignmentID,
				Source:       models.SourceAIAgent,
				Type:         models.UpdateTypeGuidance,
				Text:         m.Text,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if ch.metrics != nil {
		ch.metrics.RecordMessage(string(m.Type))
	}
	return m, nil
}

// allowFinalWord 终止后的唯一例外：触发终止的一方在宽限窗内、
// 尚未发过终止后消息、且类型为 status_update（告别语/最终状态），其余一律拒绝
func (ch *Channel) allowFinalWord(tx *gorm.DB, a *models.Assignment, m *models.AgentMessage) error {
	if m.Type != models.MessageStatusUpdate {
		return errors.ChannelClosed(a.ID)
	}
	if m.Sender.Side() != terminatingSide(a.Outcome) {
		return errors.ChannelClosed(a.ID)
	}
	if a.CompletedAt == nil || time.Since(*a.CompletedAt) > ch.grace {
		return errors.ChannelClosed(a.ID)
	}
	var n int64
	err := tx.Model(&models.AgentMessage{}).
		Where("assignment_id = ? AND sender IN ? AND created_at >= ?",
			a.ID, sideRoles(m.Sender.Side()), *a.CompletedAt).
		Count(&n).Error
	if err != nil {
		return errors.Storage(err)
	}
	if n > 0 {
		return errors.ChannelClosed(a.ID)
	}
	return nil
}

// validateBackRef 回答必须指向同线程更早的、来自对方的问题
func (ch *Channel) validateBackRef(tx *gorm.DB, m *models.AgentMessage) error {
	ref, err := models.GetMessage(tx, *m.InResponseTo)
	if err != nil {
		return errors.InvalidReference("message %d not found", *m.InResponseTo)
	}
	if ref.AssignmentID != m.AssignmentID {
		return errors.InvalidReference("message %d belongs to another thread", ref.ID)
	}
	if m.Type == models.MessageAnswer {
		if ref.Type != models.MessageQuestion {
			return errors.InvalidReference("answers must reference a question, got %s", ref.Type)
		}
		if ref.Sender.SameSide(m.Sender) {
			return errors.InvalidReference("cannot answer a question from the same side")
		}
	}
	return nil
}

// ListUnread 读取对方发来的未读消息，sinceID 用于游标式轮询。
// 返回量受轮询批大小约束，一次读不完下次接着读。
func (ch *Channel) ListUnread(ctx context.Context, assignmentID uint, reader models.SenderRole, sinceID uint, limit int) ([]models.AgentMessage, error) {
	if !reader.Valid() {
		return nil, errors.InvalidReference("invalid reader role %q", reader)
	}
	if limit <= 0 || limit > ch.batch {
		limit = ch.batch
	}
	other := "victim"
	if reader.Side() == "victim" {
		other = "helper"
	}
	msgs, err := models.UnreadMessages(ch.db.WithContext(ctx), assignmentID, sideRoles(other), sinceID, limit)
	if err != nil {
		return nil, errors.Storage(err)
	}
	return msgs, nil
}

// History 线程全量历史，按时间升序
func (ch *Channel) History(ctx context.Context, assignmentID uint, limit int) ([]models.AgentMessage, error) {
	msgs, err := models.MessagesByAssignment(ch.db.WithContext(ctx), assignmentID, limit)
	if err != nil {
		return nil, errors.Storage(err)
	}
	return msgs, nil
}

// LatestOpenQuestion 对方最近一个尚无回答的问题，没有时返回 nil
func (ch *Channel) LatestOpenQuestion(ctx context.Context, assignmentID uint, reader models.SenderRole) (*models.AgentMessage, error) {
	if !reader.Valid() {
		return nil, errors.InvalidReference("invalid reader role %q", reader)
	}
	other := "victim"
	if reader.Side() == "victim" {
		other = "helper"
	}
	db := ch.db.WithContext(ctx)
	var q models.AgentMessage
	err := db.Where("assignment_id = ? AND type = ? AND sender IN ?",
		assignmentID, models.MessageQuestion, sideRoles(other)).
		Where("id NOT IN (?)", db.Model(&models.AgentMessage{}).
			Select("in_response_to").
			Where("assignment_id = ? AND type = ? AND in_response_to IS NOT NULL",
				assignmentID, models.MessageAnswer)).
		Order("created_at DESC, id DESC").First(&q).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Storage(err)
	}
	return &q, nil
}

// MarkRead 确认读者已处理给定消息。幂等：重复确认不改变 read_at。
// 只有对方发的消息会被翻转，读者不能替对方确认。
func (ch *Channel) MarkRead(ctx context.Context, reader models.SenderRole, ids []uint) (int64, error) {
	if !reader.Valid() {
		return 0, errors.InvalidReference("invalid reader role %q", reader)
	}
	other := "victim"
	if reader.Side() == "victim" {
		other = "helper"
	}
	n, err := models.MarkMessagesRead(ch.db.WithContext(ctx), ids, sideRoles(other))
	if err != nil {
		return 0, errors.Storage(err)
	}
	return n, nil
}
