package handler

import (
	"RescueHub/internal/models"
	"RescueHub/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

type submitCaseRequest struct {
	EmergencyID    *uint    `json:"emergencyId"`
	CaseGroupID    *uint    `json:"caseGroupId"`
	CallerUserID   *uint    `json:"callerUserId"`
	ReporterUserID *uint    `json:"reporterUserId"`
	Latitude       float64  `json:"latitude" binding:"required"`
	Longitude      float64  `json:"longitude" binding:"required"`
	Description    string   `json:"description" binding:"required"`
	RawDescription string   `json:"rawDescription"`
	PeopleCount    *int     `json:"peopleCount"`
	MobilityStatus string   `json:"mobilityStatus"`
	Vulnerability  []string `json:"vulnerability"`
	Urgency        string   `json:"urgency"`
	DangerLevel    string   `json:"dangerLevel"`
	AutoAssign     bool     `json:"autoAssign"`
}

// SubmitCase 受理求助。autoAssign 为真时受理后立即匹配指派
func (h *Handlers) SubmitCase(c *gin.Context) {
	var req submitCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request body", nil)
		return
	}
	ca := &models.Case{
		EmergencyID:    req.EmergencyID,
		CaseGroupID:    req.CaseGroupID,
		CallerUserID:   req.CallerUserID,
		ReporterUserID: req.ReporterUserID,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		Description:    req.Description,
		RawDescription: req.RawDescription,
		PeopleCount:    req.PeopleCount,
		MobilityStatus: req.MobilityStatus,
		Vulnerability:  req.Vulnerability,
		Urgency:        models.Urgency(req.Urgency),
		DangerLevel:    models.DangerLevel(req.DangerLevel),
	}
	ca, err := h.co.SubmitCase(c.Request.Context(), ca)
	if err != nil {
		response.Error(c, err)
		return
	}
	if req.AutoAssign {
		assigned, err := h.co.FindAndAssign(c.Request.Context(), ca.ID)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Created(c, "case created", gin.H{"case": ca, "assignments": assigned})
		return
	}
	response.Created(c, "case created", ca)
}

// GetCase 案件详情（含指派历史）
func (h *Handlers) GetCase(c *gin.Context) {
	detail, err := h.co.GetCase(c.Request.Context(), cast.ToUint(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "ok", detail)
}

// MatchCase 触发匹配与指派，无候选时返回空列表
func (h *Handlers) MatchCase(c *gin.Context) {
	assigned, err := h.co.FindAndAssign(c.Request.Context(), cast.ToUint(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "ok", assigned)
}

// ListCandidates 只读的候选列表，不指派
func (h *Handlers) ListCandidates(c *gin.Context) {
	candidates, err := h.co.Candidates(c.Request.Context(), cast.ToUint(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "ok", candidates)
}

// NearbyCases 帮助者浏览附近未终结案件
func (h *Handlers) NearbyCases(c *gin.Context) {
	lat := cast.ToFloat64(c.Query("lat"))
	lon := cast.ToFloat64(c.Query("lon"))
	radius := cast.ToFloat64(c.DefaultQuery("radius", "10000"))
	cases, err := h.co.NearbyCases(c.Request.Context(), lat, lon, radius)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "ok", cases)
}

type terminateCaseRequest struct {
	Source string `json:"source"`
}

// ResolveCase 求助者或官方确认需求已满足
func (h *Handlers) ResolveCase(c *gin.Context) {
	var req terminateCaseRequest
	_ = c.ShouldBindJSON(&req)
	source := models.UpdateSource(req.Source)
	if source == "" {
		source = models.SourceCaller
	}
	if err := h.co.ResolveCase(c.Request.Context(), cast.ToUint(c.Param("id")), source); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "case resolved", nil)
}

// CloseCase 行政关闭（重复、无效、撤回）
func (h *Handlers) CloseCase(c *gin.Context) {
	var req terminateCaseRequest
	_ = c.ShouldBindJSON(&req)
	source := models.UpdateSource(req.Source)
	if source == "" {
		source = models.SourceOfficial
	}
	if err := h.co.CloseCase(c.Request.Context(), cast.ToUint(c.Param("id")), source); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "case closed", nil)
}
