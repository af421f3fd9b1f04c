package handler

import (
	"time"

	"RescueHub/internal/models"
	"RescueHub/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

type createEmergencyRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// CreateEmergency 登记灾情
func (h *Handlers) CreateEmergency(c *gin.Context) {
	var req createEmergencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request body", nil)
		return
	}
	e, err := h.co.CreateEmergency(c.Request.Context(), &models.Emergency{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "emergency created", e)
}

// GetEmergency 获取灾情
func (h *Handlers) GetEmergency(c *gin.Context) {
	e, err := h.co.GetEmergency(c.Request.Context(), cast.ToUint(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "ok", e)
}

type createGroupRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreateCaseGroup 在灾情下建立案件组
func (h *Handlers) CreateCaseGroup(c *gin.Context) {
	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request body", nil)
		return
	}
	g, err := h.co.CreateCaseGroup(c.Request.Context(), &models.CaseGroup{
		EmergencyID: cast.ToUint(c.Param("id")),
		Name:        req.Name,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "case group created", g)
}

// ListCaseGroups 灾情下的案件组列表
func (h *Handlers) ListCaseGroups(c *gin.Context) {
	groups, err := h.co.CaseGroups(c.Request.Context(), cast.ToUint(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "ok", groups)
}

// --- 时间线 ---

// CaseTimeline 案件审计时间线，倒序分页
func (h *Handlers) CaseTimeline(c *gin.Context) {
	caseID := cast.ToUint(c.Param("id"))
	limit := cast.ToInt(c.DefaultQuery("limit", "50"))
	var before time.Time
	if v := c.Query("before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.Fail(c, "invalid before timestamp, want RFC3339", nil)
			return
		}
		before = t
	}
	f := models.UpdateFilter{CaseID: &caseID, Type: c.Query("type")}
	updates, err := h.co.Timeline(c.Request.Context(), f, limit, before)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "ok", updates)
}

type recordUpdateRequest struct {
	EmergencyID  *uint  `json:"emergencyId"`
	CaseGroupID  *uint  `json:"caseGroupId"`
	CaseID       *uint  `json:"caseId"`
	AssignmentID *uint  `json:"assignmentId"`
	Source       string `json:"source" binding:"required"`
	Type         string `json:"type" binding:"required"`
	Text         string `json:"text"`
}

// RecordUpdate 外部来源直接追加审计事件（官方通报、现场笔记）
func (h *Handlers) RecordUpdate(c *gin.Context) {
	var req recordUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request body", nil)
		return
	}
	u := &models.Update{
		EmergencyID:  req.EmergencyID,
		CaseGroupID:  req.CaseGroupID,
		CaseID:       req.CaseID,
		AssignmentID: req.AssignmentID,
		Source:       models.UpdateSource(req.Source),
		Type:         req.Type,
		Text:         req.Text,
	}
	if err := h.co.RecordUpdate(c.Request.Context(), u); err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "update recorded", u)
}
