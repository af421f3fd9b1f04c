package handler

import (
	"RescueHub/internal/models"
	"RescueHub/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

type claimRequest struct {
	HelperUserID uint `json:"helperUserId" binding:"required"`
}

// ClaimAssignment 帮助者主动认领案件，服务端复核资格
func (h *Handlers) ClaimAssignment(c *gin.Context) {
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request body", nil)
		return
	}
	a, err := h.co.ClaimAssignment(c.Request.Context(), cast.ToUint(c.Param("id")), req.HelperUserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "assignment created", a)
}

// ListCaseAssignments 案件的指派列表（含历史）
func (h *Handlers) ListCaseAssignments(c *gin.Context) {
	list, err := h.co.CaseAssignments(c.Request.Context(), cast.ToUint(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "ok", list)
}

// StartProgress 帮助者标记开始处置
func (h *Handlers) StartProgress(c *gin.Context) {
	a, err := h.co.StartProgress(c.Request.Context(), cast.ToUint(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "assignment started", a)
}

type completeRequest struct {
	Outcome string `json:"outcome" binding:"required"`
	Notes   string `json:"notes"`
}

// CompleteAssignment 终止指派并重算案件状态
func (h *Handlers) CompleteAssignment(c *gin.Context) {
	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request body", nil)
		return
	}
	a, err := h.co.CompleteAssignment(c.Request.Context(), cast.ToUint(c.Param("id")), models.Outcome(req.Outcome), req.Notes)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "assignment completed", a)
}

// Reassign 终止当前指派并指派下一位未试过的候选
func (h *Handlers) Reassign(c *gin.Context) {
	next, err := h.co.Reassign(c.Request.Context(), cast.ToUint(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}
	if next == nil {
		response.Success(c, "no replacement available, case reopened", nil)
		return
	}
	response.Created(c, "reassigned", next)
}
