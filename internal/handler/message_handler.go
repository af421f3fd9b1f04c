package handler

import (
	"RescueHub/internal/models"
	"RescueHub/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

type postMessageRequest struct {
	Sender       string                 `json:"sender" binding:"required"`
	Type         string                 `json:"type" binding:"required"`
	Text         string                 `json:"text"`
	Options      []models.MessageOption `json:"options"`
	Cardinality  string                 `json:"cardinality"`
	InResponseTo *uint                  `json:"inResponseTo"`
}

// PostMessage 向指派线程发消息
func (h *Handlers) PostMessage(c *gin.Context) {
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request body", nil)
		return
	}
	m := &models.AgentMessage{
		AssignmentID: cast.ToUint(c.Param("id")),
		Sender:       models.SenderRole(req.Sender),
		Type:         models.MessageType(req.Type),
		Text:         req.Text,
		Options:      req.Options,
		Cardinality:  models.Cardinality(req.Cardinality),
		InResponseTo: req.InResponseTo,
	}
	m, err := h.co.PostMessage(c.Request.Context(), m)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "message posted", m)
}

// MessageHistory 线程全量历史，时间升序
func (h *Handlers) MessageHistory(c *gin.Context) {
	limit := cast.ToInt(c.DefaultQuery("limit", "100"))
	msgs, err := h.co.MessageHistory(c.Request.Context(), cast.ToUint(c.Param("id")), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "ok", msgs)
}

// PollMessages 读者轮询对方发来的未读消息
func (h *Handlers) PollMessages(c *gin.Context) {
	reader := models.SenderRole(c.Query("reader"))
	sinceID := cast.ToUint(c.Query("sinceId"))
	limit := cast.ToInt(c.Query("limit"))
	msgs, err := h.co.PollMessages(c.Request.Context(), cast.ToUint(c.Param("id")), reader, sinceID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "ok", msgs)
}

type markReadRequest struct {
	Reader string `json:"reader" binding:"required"`
	IDs    []uint `json:"ids" binding:"required"`
}

// MarkMessagesRead 确认已读，幂等
func (h *Handlers) MarkMessagesRead(c *gin.Context) {
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request body", nil)
		return
	}
	n, err := h.co.MarkMessagesRead(c.Request.Context(), models.SenderRole(req.Reader), req.IDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "ok", gin.H{"marked": n})
}

// LatestOpenQuestion 对方最近一个尚无回答的问题
func (h *Handlers) LatestOpenQuestion(c *gin.Context) {
	reader := models.SenderRole(c.Query("reader"))
	q, err := h.co.LatestOpenQuestion(c.Request.Context(), cast.ToUint(c.Param("id")), reader)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "ok", q)
}
