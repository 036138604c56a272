package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"tempmail/portal/internal/domain"
)

// Fetcher 拉取收件箱的最小接口，由上游客户端实现。
type Fetcher interface {
	ListInbox(ctx context.Context, address string) ([]domain.MessageSummary, error)
}

// UpdateFunc 在邮件列表发生变化时被调用（用于向前端推送）。
type UpdateFunc func(address string, messages []domain.MessageSummary)

// Observer 接收轮询观测数据。实现必须是并发安全的。
type Observer interface {
	RecordPollTick()
	RecordPollError()
}

// Session 持有"当前邮箱"及其收件箱，并在启用时按固定间隔刷新。
//
// 状态机：地址为空时为 Idle；Replace 绑定新地址进入 Active 并整体
// 丢弃旧邮件列表；Active 下轮询由 SetPolling 显式开关。每次 Replace
// 递增代号，晚到的旧地址刷新结果按代号丢弃，不会覆盖新会话。
// 同一时刻最多一个刷新在途，轮询触发的刷新在途时直接跳过。
type Session struct {
	fetcher  Fetcher
	interval time.Duration
	log      *zap.Logger
	onUpdate UpdateFunc
	observer Observer

	mu         sync.Mutex
	address    string
	domainHint string
	createdAt  time.Time
	messages   []domain.MessageSummary
	generation uint64
	refreshing bool
	polling    bool
	cancelPoll context.CancelFunc
	closed     bool
}

// New 创建一个 Idle 状态的会话。
func New(fetcher Fetcher, interval time.Duration, log *zap.Logger, onUpdate UpdateFunc) *Session {
	return &Session{
		fetcher:  fetcher,
		interval: interval,
		log:      log,
		onUpdate: onUpdate,
	}
}

// SetObserver 注册轮询指标观察者。必须在 SetPolling 之前调用。
func (s *Session) SetObserver(observer Observer) {
	s.observer = observer
}

// Replace 用新创建的邮箱整体替换会话：清空邮件列表并使所有在途
// 刷新失效。不改变轮询开关状态，是否开始轮询由调用方决定。
func (s *Session) Replace(address, domainHint string, createdAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.address = address
	s.domainHint = domainHint
	s.createdAt = createdAt
	s.messages = nil
	s.generation++
}

// Refresh 拉取收件箱并整体替换邮件列表（上游每次返回完整集合）。
//
// Idle 时是空操作；已有刷新在途时跳过；请求发出后会话被 Replace
// 替换的，结果直接丢弃。
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.closed || s.address == "" {
		s.mu.Unlock()
		return nil
	}
	if s.refreshing {
		s.mu.Unlock()
		return nil
	}
	s.refreshing = true
	address := s.address
	generation := s.generation
	s.mu.Unlock()

	messages, err := s.fetcher.ListInbox(ctx, address)

	s.mu.Lock()
	s.refreshing = false
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if generation != s.generation || s.closed {
		// 会话已被更新的 create 替换，丢弃过期结果
		s.mu.Unlock()
		return nil
	}
	changed := !sameMessages(s.messages, messages)
	s.messages = messages
	onUpdate := s.onUpdate
	s.mu.Unlock()

	if changed && onUpdate != nil {
		onUpdate(address, messages)
	}
	return nil
}

// SetPolling 开关周期刷新。开启时启动单个定时循环，关闭时确定性
// 取消；重复设置同一状态是空操作，多次关闭不报错。
func (s *Session) SetPolling(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || enabled == s.polling {
		return
	}

	if enabled {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancelPoll = cancel
		s.polling = true
		go s.pollLoop(ctx)
		return
	}

	s.cancelPoll()
	s.cancelPoll = nil
	s.polling = false
}

// Polling 返回当前轮询开关状态。
func (s *Session) Polling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polling
}

// Snapshot 返回会话当前状态的副本。Idle 时返回 nil。
func (s *Session) Snapshot() *domain.MailboxSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.address == "" {
		return nil
	}
	messages := make([]domain.MessageSummary, len(s.messages))
	copy(messages, s.messages)
	return &domain.MailboxSession{
		Address:    s.address,
		DomainHint: s.domainHint,
		CreatedAt:  s.createdAt,
		Messages:   messages,
	}
}

// Address 返回当前绑定的邮箱地址，Idle 时为空串。
func (s *Session) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

// Close 终结会话并取消轮询定时器。可重复调用。
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.polling = false
	if s.cancelPoll != nil {
		s.cancelPoll()
		s.cancelPoll = nil
	}
}

// pollLoop 单个轮询定时循环，随 ctx 取消退出。
func (s *Session) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.observer != nil {
				s.observer.RecordPollTick()
			}
			tickCtx, cancel := context.WithTimeout(ctx, s.interval)
			if err := s.Refresh(tickCtx); err != nil {
				if s.observer != nil {
					s.observer.RecordPollError()
				}
				s.log.Warn("inbox poll tick failed",
					zap.String("address", s.Address()),
					zap.Error(err),
				)
			}
			cancel()
		}
	}
}

// sameMessages 按 id 序列比较两份邮件列表。
func sameMessages(a, b []domain.MessageSummary) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}
