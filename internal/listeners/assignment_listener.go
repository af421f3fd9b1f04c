package listeners

import (
	"context"
	"fmt"
	"time"

	"RescueHub/internal/ledger"
	"RescueHub/internal/models"
	"RescueHub/pkg/logger"
	"RescueHub/pkg/notification"
	"RescueHub/pkg/signals"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RegisterAssignmentListeners 订阅指派事件：新指派时向帮助者推送提醒。
// 推送走后台协程，失败只记日志，绝不反向影响指派路径。
func RegisterAssignmentListeners(db *gorm.DB, notifier notification.Notifier) {
	if notifier == nil {
		notifier = notification.NoopNotifier{}
	}
	signals.Sig().Connect(ledger.SigAssignmentCreated, func(sender any, params ...any) {
		a, ok := sender.(*models.Assignment)
		if !ok || a == nil {
			return
		}
		go notifyHelper(db, notifier, a)
	})
}

func notifyHelper(db *gorm.DB, notifier notification.Notifier, a *models.Assignment) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	helper, err := models.GetUser(db, a.HelperUserID)
	if err != nil {
		logger.Warn("assignment notify: helper not found",
			zap.Uint("helper_id", a.HelperUserID), zap.Error(err))
		return
	}
	if helper.ContactInfo == "" {
		return
	}
	c, err := models.GetCase(db, a.CaseID)
	if err != nil {
		logger.Warn("assignment notify: case not found",
			zap.Uint("case_id", a.CaseID), zap.Error(err))
		return
	}
	summary := fmt.Sprintf("New assignment #%d: %s (urgency %s, danger %s)",
		a.ID, c.Description, c.Urgency, c.DangerLevel)
	if err := notifier.NotifyAssignment(ctx, helper.ContactInfo, summary); err != nil {
		logger.Warn("assignment notify failed",
			zap.Uint("assignment_id", a.ID), zap.Error(err))
	}
}
