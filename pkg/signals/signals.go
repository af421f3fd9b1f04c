package signals

import "sync"

// Handler 信号处理函数
type Handler func(sender any, params ...any)

// Hub 进程内信号分发器，监听器注册后按序同步调用
type Hub struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

var defaultHub = &Hub{handlers: make(map[string][]Handler)}

// Sig 返回默认分发器
func Sig() *Hub { return defaultHub }

// Connect 注册监听器
func (h *Hub) Connect(signal string, fn Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[signal] = append(h.handlers[signal], fn)
}

// Emit 触发信号
func (h *Hub) Emit(signal string, sender any, params ...any) {
	h.mu.RLock()
	fns := append([]Handler(nil), h.handlers[signal]...)
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(sender, params...)
	}
}
