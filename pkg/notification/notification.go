package notification

import "context"

// Notifier 指派提醒发送方。客户端可注入（SMS 网关、推送服务），
// 未配置时发送为 no-op，引擎不因此失败。
type Notifier interface {
	NotifyAssignment(ctx context.Context, contact, caseSummary string) error
}

// NoopNotifier 未配置时的占位实现
type NoopNotifier struct{}

func (NoopNotifier) NotifyAssignment(ctx context.Context, contact, caseSummary string) error {
	return nil
}
