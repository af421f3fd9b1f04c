package handler

import (
	"RescueHub/internal/models"
	"RescueHub/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

type registerUserRequest struct {
	ExternalID     string   `json:"externalId"`
	Name           string   `json:"name"`
	ContactInfo    string   `json:"contactInfo"`
	Latitude       float64  `json:"latitude"`
	Longitude      float64  `json:"longitude"`
	Skills         []string `json:"skills"`
	MaxRangeMeters *float64 `json:"maxRangeMeters"`
}

// RegisterUser 注册用户（求助者或帮助者，取决于技能集）
func (h *Handlers) RegisterUser(c *gin.Context) {
	var req registerUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request body", nil)
		return
	}
	u := &models.User{
		ExternalID:     req.ExternalID,
		Name:           req.Name,
		ContactInfo:    req.ContactInfo,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		Skills:         req.Skills,
		MaxRangeMeters: req.MaxRangeMeters,
	}
	u, err := h.co.RegisterUser(c.Request.Context(), u)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "user registered", u)
}

// GetUser 获取用户
func (h *Handlers) GetUser(c *gin.Context) {
	u, err := h.co.GetUser(c.Request.Context(), cast.ToUint(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "ok", u)
}

// LookupUser 按外部标识查用户，客户端重装后凭本地标识找回身份
func (h *Handlers) LookupUser(c *gin.Context) {
	externalID := c.Query("externalId")
	if externalID == "" {
		response.Fail(c, "externalId is required", nil)
		return
	}
	u, err := h.co.UserByExternalID(c.Request.Context(), externalID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "ok", u)
}

// UpdateUserProfile 更新姓名、联系方式、技能与活动范围
func (h *Handlers) UpdateUserProfile(c *gin.Context) {
	var req registerUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request body", nil)
		return
	}
	u := &models.User{
		ID:             cast.ToUint(c.Param("id")),
		Name:           req.Name,
		ContactInfo:    req.ContactInfo,
		Skills:         req.Skills,
		MaxRangeMeters: req.MaxRangeMeters,
	}
	if err := h.co.UpdateUserProfile(c.Request.Context(), u); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "profile updated", nil)
}

type locationRequest struct {
	Latitude  float64 `json:"latitude" binding:"required"`
	Longitude float64 `json:"longitude" binding:"required"`
}

// UpdateUserLocation 上报位置
func (h *Handlers) UpdateUserLocation(c *gin.Context) {
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request body", nil)
		return
	}
	id := cast.ToUint(c.Param("id"))
	if err := h.co.UpdateUserLocation(c.Request.Context(), id, req.Latitude, req.Longitude); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "location updated", nil)
}

// GetLocationHistory 位置历史，时间倒序
func (h *Handlers) GetLocationHistory(c *gin.Context) {
	id := cast.ToUint(c.Param("id"))
	limit := cast.ToInt(c.DefaultQuery("limit", "50"))
	pings, err := h.co.LocationHistory(c.Request.Context(), id, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "ok", pings)
}

// ListHelperAssignments 帮助者的指派列表
func (h *Handlers) ListHelperAssignments(c *gin.Context) {
	id := cast.ToUint(c.Param("id"))
	includeCompleted := cast.ToBool(c.DefaultQuery("includeCompleted", "false"))
	list, err := h.co.HelperAssignments(c.Request.Context(), id, includeCompleted)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "ok", list)
}
