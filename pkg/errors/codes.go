package errors

// 协调引擎错误码。NoCandidate 不设码：无候选人以空列表返回，不是错误。
const (
	CodeNotFound         = 40400 // 实体不存在
	CodeInvalidReference = 40010 // 时间线事件引用了不一致的上级实体
	CodeNotEligible      = 40020 // 帮助者缺少技能或超出活动范围
	CodeDuplicateActive  = 40920 // 同一帮助者在同一案件上已有未完成的指派
	CodeNotActive        = 40930 // 指派已完成，无法再次操作
	CodeConflict         = 40910 // 状态机冲突（非法转换或并发写入失败）
	CodeChannelClosed    = 41000 // 指派已终止，消息通道关闭
	CodeStorage          = 50010 // 存储层错误（重试耗尽后）
)

// NotFound 实体不存在
func NotFound(entity string, id any) *Error {
	return WithCodef(CodeNotFound, "%s %v not found", entity, id)
}

// InvalidReference 时间线事件的实体引用与层级不符
func InvalidReference(format string, args ...interface{}) *Error {
	return WithCodef(CodeInvalidReference, format, args...)
}

// NotEligible 帮助者不满足指派条件
func NotEligible(format string, args ...interface{}) *Error {
	return WithCodef(CodeNotEligible, format, args...)
}

// DuplicateActive 帮助者已持有该案件的活跃指派
func DuplicateActive(caseID, helperID uint) *Error {
	return WithCodef(CodeDuplicateActive, "helper %d already holds an active assignment on case %d", helperID, caseID)
}

// NotActive 指派已完成
func NotActive(assignmentID uint) *Error {
	return WithCodef(CodeNotActive, "assignment %d is not active", assignmentID)
}

// Conflict 非法或竞争失败的状态转换，消息中带出当前与目标状态
func Conflict(format string, args ...interface{}) *Error {
	return WithCodef(CodeConflict, format, args...)
}

// ChannelClosed 指派终止后的发信被拒绝
func ChannelClosed(assignmentID uint) *Error {
	return WithCodef(CodeChannelClosed, "assignment %d is terminated, channel closed", assignmentID)
}

// Storage 存储层错误
func Storage(err error) *Error {
	if err == nil {
		return nil
	}
	e := Wrap(err, "storage error")
	e.Code = CodeStorage
	return e
}

// IsCode 判断错误是否携带指定错误码
func IsCode(err error, code int) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if e.Code == code {
				return true
			}
			err = e.Err
			continue
		}
		return false
	}
	return false
}
