package auth

import "sync"

// Session 已认证用户的显式会话值。
//
// 认证由外部服务完成，这里只把校验后的用户标识作为不透明字符串
// 携带；零值表示未登录。编排层接收 Session 参数而不是读取任何
// 全局状态。
type Session struct {
	UserID string
	Email  string
}

// Authenticated 判断会话是否对应已登录用户。
func (s Session) Authenticated() bool {
	return s.UserID != ""
}

// EventKind 会话变更事件类型
type EventKind string

const (
	EventSignedIn  EventKind = "signed_in"
	EventSignedOut EventKind = "signed_out"
)

// Event 一次会话状态变更。
type Event struct {
	Kind    EventKind
	Session Session
}

// Notifier 会话变更事件流。外部认证服务的回调（登录、登出、令牌
// 失效）通过 Publish 进入，编排层通过 Subscribe 观察。
type Notifier struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewNotifier 创建事件流。
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]chan Event)}
}

// Subscribe 订阅会话变更，返回事件通道和取消函数。取消是幂等的。
func (n *Notifier) Subscribe() (<-chan Event, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.next
	n.next++
	ch := make(chan Event, 16)
	n.subs[id] = ch

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if sub, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish 向所有订阅者广播事件。订阅者处理过慢时丢弃事件而不是
// 阻塞发布方。
func (n *Notifier) Publish(event Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- event:
		default:
		}
	}
}
