package handler

import (
	"net/http"

	"RescueHub/internal/coord"

	"github.com/gin-gonic/gin"
)

// Handlers HTTP 处理器集合，全部业务经由协调器
type Handlers struct {
	co *coord.Coordinator
}

// NewHandlers 创建处理器集合
func NewHandlers(co *coord.Coordinator) *Handlers {
	return &Handlers{co: co}
}

// Register 注册全部路由
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/health", h.Health)

	users := r.Group("/users")
	{
		users.POST("", h.RegisterUser)
		users.GET("/lookup", h.LookupUser)
		users.GET("/:id", h.GetUser)
		users.PUT("/:id", h.UpdateUserProfile)
		users.PUT("/:id/location", h.UpdateUserLocation)
		users.GET("/:id/locations", h.GetLocationHistory)
		users.GET("/:id/assignments", h.ListHelperAssignments)
	}

	emergencies := r.Group("/emergencies")
	{
		emergencies.POST("", h.CreateEmergency)
		emergencies.GET("/:id", h.GetEmergency)
		emergencies.POST("/:id/groups", h.CreateCaseGroup)
		emergencies.GET("/:id/groups", h.ListCaseGroups)
	}

	cases := r.Group("/cases")
	{
		cases.POST("", h.SubmitCase)
		cases.GET("/nearby", h.NearbyCases)
		cases.GET("/:id", h.GetCase)
		cases.POST("/:id/match", h.MatchCase)
		cases.GET("/:id/candidates", h.ListCandidates)
		cases.POST("/:id/assignments", h.ClaimAssignment)
		cases.GET("/:id/assignments", h.ListCaseAssignments)
		cases.POST("/:id/resolve", h.ResolveCase)
		cases.POST("/:id/close", h.CloseCase)
		cases.GET("/:id/timeline", h.CaseTimeline)
	}

	assignments := r.Group("/assignments")
	{
		assignments.POST("/:id/start", h.StartProgress)
		assignments.POST("/:id/complete", h.CompleteAssignment)
		assignments.POST("/:id/reassign", h.Reassign)
		assignments.POST("/:id/messages", h.PostMessage)
		assignments.GET("/:id/messages", h.MessageHistory)
		assignments.GET("/:id/messages/unread", h.PollMessages)
		assignments.POST("/:id/messages/read", h.MarkMessagesRead)
		assignments.GET("/:id/messages/open-question", h.LatestOpenQuestion)
	}

	r.POST("/updates", h.RecordUpdate)
}

// Health 健康检查
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
