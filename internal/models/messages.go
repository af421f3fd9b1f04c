package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// SenderRole 消息发送方
type SenderRole string

const (
	SenderHelperAgent SenderRole = "helper_agent"
	SenderVictimAgent SenderRole = "victim_agent"
	SenderHelperUser  SenderRole = "helper_user"
	SenderVictimUser  SenderRole = "victim_user"
)

func (r SenderRole) Valid() bool {
	switch r {
	case SenderHelperAgent, SenderVictimAgent, SenderHelperUser, SenderVictimUser:
		return true
	}
	return false
}

// Side 归属方：helper 或 victim。双方通道里每条消息恰有一个接收方，
// 单一已读标记因此可按"非发送方已读"解释。
func (r SenderRole) Side() string {
	switch r {
	case SenderHelperAgent, SenderHelperUser:
		return "helper"
	case SenderVictimAgent, SenderVictimUser:
		return "victim"
	}
	return ""
}

// SameSide 两个角色是否属于同一方
func (r SenderRole) SameSide(other SenderRole) bool { return r.Side() == other.Side() }

// MessageType 消息类型
type MessageType string

const (
	MessageQuestion     MessageType = "question"
	MessageAnswer       MessageType = "answer"
	MessageStatusUpdate MessageType = "status_update"
	MessageGuidance     MessageType = "guidance"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageQuestion, MessageAnswer, MessageStatusUpdate, MessageGuidance:
		return true
	}
	return false
}

// Cardinality 选择题可选数量
type Cardinality string

const (
	CardinalitySingle   Cardinality = "single"
	CardinalityMultiple Cardinality = "multiple"
)

func (c Cardinality) Valid() bool {
	return c == CardinalitySingle || c == CardinalityMultiple
}

// MessageOption 选择题的一个选项
type MessageOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Options 以 JSON 存储的选项列表
type Options []MessageOption

func (o Options) Value() (driver.Value, error) {
	if len(o) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (o *Options) Scan(src any) error {
	if src == nil {
		*o = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Options", src)
	}
	if len(data) == 0 {
		*o = nil
		return nil
	}
	return json.Unmarshal(data, o)
}

// AgentMessage 指派线程内的一条消息。唯一的可变状态是已读标记，
// unread → read 单向翻转。
type AgentMessage struct {
	ID              uint        `json:"id" gorm:"primaryKey"`
	AssignmentID    uint        `json:"assignmentId" gorm:"index"`
	CaseID          uint        `json:"caseId" gorm:"index"`
	Sender          SenderRole  `json:"sender" gorm:"size:32"`
	Type            MessageType `json:"type" gorm:"size:32"`
	Text            string      `json:"text" gorm:"size:4096"`
	Options         Options     `json:"options,omitempty" gorm:"type:text"`
	Cardinality     Cardinality `json:"cardinality,omitempty" gorm:"size:16"`
	InResponseTo    *uint       `json:"inResponseTo"` // 必须指向同线程更早的消息
	ReadByRecipient bool        `json:"readByRecipient" gorm:"default:false"`
	ReadAt          *time.Time  `json:"readAt"`
	CreatedAt       time.Time   `json:"createdAt" gorm:"autoCreateTime;index"`
}

// InsertMessage 追加消息（协议校验在 channel 包完成）
func InsertMessage(db *gorm.DB, m *AgentMessage) error {
	return db.Create(m).Error
}

// GetMessage 获取单条消息
func GetMessage(db *gorm.DB, id uint) (*AgentMessage, error) {
	var m AgentMessage
	if err := db.First(&m, id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// MessagesByAssignment 线程全量历史，按 (创建时间, ID) 升序
func MessagesByAssignment(db *gorm.DB, assignmentID uint, limit int) ([]AgentMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var msgs []AgentMessage
	if err := db.Where("assignment_id = ?", assignmentID).
		Order("created_at ASC, id ASC").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// UnreadMessages 对方发出且未读的消息；sinceID 非零时只取其后的
func UnreadMessages(db *gorm.DB, assignmentID uint, senders []SenderRole, sinceID uint, limit int) ([]AgentMessage, error) {
	q := db.Where("assignment_id = ? AND sender IN ? AND read_by_recipient = ?", assignmentID, senders, false)
	if sinceID > 0 {
		q = q.Where("id > ?", sinceID)
	}
	if limit <= 0 {
		limit = 50
	}
	var msgs []AgentMessage
	if err := q.Order("created_at ASC, id ASC").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// MarkMessagesRead 翻转已读标记，幂等：已读的不再更新
func MarkMessagesRead(db *gorm.DB, ids []uint, senders []SenderRole) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	now := time.Now()
	res := db.Model(&AgentMessage{}).
		Where("id IN ? AND sender IN ? AND read_by_recipient = ?", ids, senders, false).
		Updates(map[string]any{"read_by_recipient": true, "read_at": now})
	return res.RowsAffected, res.Error
}
