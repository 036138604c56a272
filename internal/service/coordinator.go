package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"tempmail/portal/internal/auth"
	"tempmail/portal/internal/cache"
	"tempmail/portal/internal/domain"
	"tempmail/portal/internal/provider"
	"tempmail/portal/internal/quota"
	"tempmail/portal/internal/session"
	"tempmail/portal/internal/storage"
)

// 域名列表变化很少，缓存 5 分钟。
const domainCacheTTL = 5 * time.Minute

// MailboxProvider 上游临时邮箱服务的操作接口。
type MailboxProvider interface {
	ListDomains(ctx context.Context) ([]string, error)
	CreateMailbox(ctx context.Context, domainHint string) (*provider.Mailbox, error)
	ListInbox(ctx context.Context, address string) ([]domain.MessageSummary, error)
	FetchMessage(ctx context.Context, address, messageID string) (*domain.MessageDetail, error)
}

// InboxUpdateFunc 在某个用户的收件箱内容变化时被调用。
type InboxUpdateFunc func(userID, address string, messages []domain.MessageSummary)

// MetricsRecorder 接收编排层的业务观测数据。实现必须是并发安全的。
type MetricsRecorder interface {
	RecordMailboxCreated()
	RecordQuotaDenial()
	RecordUsageIncrement()
	RecordPollTick()
	RecordPollError()
	UpdateSessionsActive(count int)
}

// PlanSummary 面向前端的套餐概要。
type PlanSummary struct {
	PlanType        domain.PlanType `json:"planType"`
	EmailsUsedToday int             `json:"emailsUsedToday"`
	Remaining       int             `json:"remaining"` // Unlimited 时为 -1
	Unlimited       bool            `json:"unlimited"`
	Premium         bool            `json:"premium"`
}

// Coordinator 编排配额检查、上游调用和轮询会话。
//
// 这是唯一允许改写配额状态的组件。每个用户最多持有一个活动的
// 邮箱会话，新的创建请求整体替换旧会话。
type Coordinator struct {
	provider MailboxProvider
	plans    storage.PlanStore
	interval time.Duration
	log      *zap.Logger
	onUpdate InboxUpdateFunc
	domains  *cache.DomainCache
	metrics  MetricsRecorder

	mu       sync.Mutex
	sessions map[string]*session.Session // userID -> 活动会话
	closed   bool
}

// NewCoordinator 创建会话编排器。onUpdate 可以为 nil。
func NewCoordinator(
	mailboxProvider MailboxProvider,
	plans storage.PlanStore,
	pollInterval time.Duration,
	log *zap.Logger,
	onUpdate InboxUpdateFunc,
) *Coordinator {
	return &Coordinator{
		provider: mailboxProvider,
		plans:    plans,
		interval: pollInterval,
		log:      log,
		onUpdate: onUpdate,
		domains:  cache.NewDomainCache(domainCacheTTL),
		sessions: make(map[string]*session.Session),
	}
}

// SetMetrics 注册业务指标记录器。必须在处理第一个请求前调用。
func (c *Coordinator) SetMetrics(metrics MetricsRecorder) {
	c.metrics = metrics
}

// RequestMailbox 处理"创建新邮箱"请求。
//
// 顺序固定：登录检查 → 配额检查 → 上游创建 → 记账 → 启动轮询。
// 配额不足时不触发上游调用；上游创建失败时配额保持不变；创建
// 成功后的套餐重读是尽力而为，失败只记日志，不回滚邮箱。
func (c *Coordinator) RequestMailbox(ctx context.Context, sess auth.Session, domainHint string) (*domain.MailboxSession, error) {
	if !sess.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}

	plan, err := c.loadPlan(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}

	if !quota.CanCreate(plan) {
		if c.metrics != nil {
			c.metrics.RecordQuotaDenial()
		}
		return nil, fmt.Errorf("daily limit of %d reached: %w", domain.FreeDailyLimit, domain.ErrQuotaExceeded)
	}

	mailbox, err := c.provider.CreateMailbox(ctx, domainHint)
	if err != nil {
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.RecordMailboxCreated()
	}

	if !plan.IsPremium() {
		today := domain.Today()
		if err := c.plans.IncrementUsage(ctx, sess.UserID, today); err != nil {
			// 邮箱已经创建，计数失败无法回滚，只能记录
			c.log.Warn("usage increment failed after mailbox creation",
				zap.String("user_id", sess.UserID),
				zap.Error(err),
			)
		} else {
			if c.metrics != nil {
				c.metrics.RecordUsageIncrement()
			}
			if updated, err := c.plans.GetPlan(ctx, sess.UserID); err != nil {
				// 重读只为让后续读取拿到新计数，失败可以容忍
				c.log.Warn("plan reload failed after usage increment",
					zap.String("user_id", sess.UserID),
					zap.Error(err),
				)
			} else {
				plan = updated
			}
		}
	}

	inbox := c.sessionFor(sess.UserID)
	if inbox == nil {
		return nil, fmt.Errorf("coordinator is shut down")
	}
	inbox.Replace(mailbox.Email, domainHint, mailbox.CreatedAt)
	inbox.SetPolling(true)

	c.log.Info("mailbox created",
		zap.String("user_id", sess.UserID),
		zap.String("address", mailbox.Email),
		zap.String("domain_hint", domainHint),
		zap.Int("remaining_today", quota.Remaining(plan)),
	)

	return inbox.Snapshot(), nil
}

// CurrentSession 返回用户当前会话快照及轮询状态。没有活动会话时
// 快照为 nil。
func (c *Coordinator) CurrentSession(userID string) (*domain.MailboxSession, bool) {
	c.mu.Lock()
	inbox, ok := c.sessions[userID]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	return inbox.Snapshot(), inbox.Polling()
}

// RefreshInbox 立即刷新用户当前会话的收件箱并返回最新快照。
func (c *Coordinator) RefreshInbox(ctx context.Context, userID string) (*domain.MailboxSession, error) {
	c.mu.Lock()
	inbox, ok := c.sessions[userID]
	c.mu.Unlock()
	if !ok || !inbox.Snapshot().Active() {
		return nil, domain.ErrNotFound
	}

	if err := inbox.Refresh(ctx); err != nil {
		return nil, err
	}
	return inbox.Snapshot(), nil
}

// SetPolling 开关用户当前会话的自动刷新。
func (c *Coordinator) SetPolling(userID string, enabled bool) error {
	c.mu.Lock()
	inbox, ok := c.sessions[userID]
	c.mu.Unlock()
	if !ok {
		return domain.ErrNotFound
	}
	inbox.SetPolling(enabled)
	return nil
}

// OpenMessage 拉取当前会话中一封邮件的正文。
// 没有活动会话或上游报告邮件不存在都返回 ErrNotFound。
func (c *Coordinator) OpenMessage(ctx context.Context, userID, messageID string) (*domain.MessageDetail, error) {
	if messageID == "" {
		return nil, domain.ErrInvalidArgument
	}

	c.mu.Lock()
	inbox, ok := c.sessions[userID]
	c.mu.Unlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	address := inbox.Address()
	if address == "" {
		return nil, domain.ErrNotFound
	}

	detail, err := c.provider.FetchMessage(ctx, address, messageID)
	if err != nil {
		return nil, err
	}
	if detail == nil {
		return nil, domain.ErrNotFound
	}
	return detail, nil
}

// Domains 返回上游可用域名列表。列表短暂缓存以减少上游调用。
func (c *Coordinator) Domains(ctx context.Context) ([]string, error) {
	if cached, ok := c.domains.Get(); ok {
		return cached, nil
	}

	domains, err := c.provider.ListDomains(ctx)
	if err != nil {
		return nil, err
	}
	if len(domains) > 0 {
		c.domains.Set(domains)
	}
	return domains, nil
}

// PlanSummary 返回用户套餐概要。
func (c *Coordinator) PlanSummary(ctx context.Context, sess auth.Session) (*PlanSummary, error) {
	if !sess.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}

	plan, err := c.loadPlan(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}

	remaining := quota.Remaining(plan)
	return &PlanSummary{
		PlanType:        plan.PlanType,
		EmailsUsedToday: plan.UsedOn(domain.Today()),
		Remaining:       remaining,
		Unlimited:       remaining == quota.Unlimited,
		Premium:         plan.IsPremium(),
	}, nil
}

// Watch 消费认证事件流：用户登出时结束其邮箱会话。
// 随 ctx 取消或事件通道关闭退出。
func (c *Coordinator) Watch(ctx context.Context, events <-chan auth.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.Kind == auth.EventSignedOut {
				c.dropSession(event.Session.UserID)
			}
		}
	}
}

// Close 结束所有活动会话并取消它们的轮询定时器。
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for _, inbox := range c.sessions {
		inbox.Close()
	}
	c.sessions = make(map[string]*session.Session)
	if c.metrics != nil {
		c.metrics.UpdateSessionsActive(0)
	}
}

// loadPlan 读取用户套餐。没有记录的用户视为全新免费用户。
func (c *Coordinator) loadPlan(ctx context.Context, userID string) (*domain.UserPlan, error) {
	plan, err := c.plans.GetPlan(ctx, userID)
	if err == nil {
		return plan, nil
	}
	if errors.Is(err, domain.ErrPlanNotFound) {
		return &domain.UserPlan{
			UserID:   userID,
			PlanType: domain.PlanFree,
		}, nil
	}
	return nil, fmt.Errorf("failed to load user plan: %w", err)
}

// sessionFor 返回用户的会话，没有则创建。编排器已关闭时返回 nil。
func (c *Coordinator) sessionFor(userID string) *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	if inbox, ok := c.sessions[userID]; ok {
		return inbox
	}
	var onUpdate session.UpdateFunc
	if c.onUpdate != nil {
		uid := userID
		onUpdate = func(address string, messages []domain.MessageSummary) {
			c.onUpdate(uid, address, messages)
		}
	}
	inbox := session.New(c.provider, c.interval, c.log, onUpdate)
	if c.metrics != nil {
		inbox.SetObserver(c.metrics)
	}
	c.sessions[userID] = inbox
	if c.metrics != nil {
		c.metrics.UpdateSessionsActive(len(c.sessions))
	}
	return inbox
}

// dropSession 结束并移除用户的会话。
func (c *Coordinator) dropSession(userID string) {
	c.mu.Lock()
	inbox, ok := c.sessions[userID]
	if ok {
		delete(c.sessions, userID)
		if c.metrics != nil {
			c.metrics.UpdateSessionsActive(len(c.sessions))
		}
	}
	c.mu.Unlock()

	if ok {
		inbox.Close()
		c.log.Info("mailbox session closed on sign-out", zap.String("user_id", userID))
	}
}
