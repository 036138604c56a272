package httptransport

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempmail/portal/internal/auth"
	"tempmail/portal/internal/domain"
	"tempmail/portal/internal/middleware"
	"tempmail/portal/internal/service"
)

// Handler 聚合所有 HTTP 处理逻辑。
type Handler struct {
	coordinator *service.Coordinator
	notifier    *auth.Notifier
	log         *zap.Logger
}

// NewHandler 创建 HTTP 处理器
func NewHandler(coordinator *service.Coordinator, notifier *auth.Notifier, log *zap.Logger) *Handler {
	return &Handler{
		coordinator: coordinator,
		notifier:    notifier,
		log:         log,
	}
}

type createMailboxRequest struct {
	Domain string `json:"domain"`
}

type messageSummaryResponse struct {
	ID      string    `json:"id"`
	From    string    `json:"from"`
	Subject string    `json:"subject"`
	Date    time.Time `json:"date"`
	Preview string    `json:"preview,omitempty"`
}

type mailboxResponse struct {
	Address   string                   `json:"address"`
	CreatedAt time.Time                `json:"createdAt"`
	Polling   bool                     `json:"polling"`
	Messages  []messageSummaryResponse `json:"messages"`
	Count     int                      `json:"count"`
}

type messageDetailResponse struct {
	ID       string    `json:"id"`
	From     string    `json:"from"`
	Subject  string    `json:"subject"`
	Date     time.Time `json:"date"`
	BodyHTML string    `json:"bodyHtml,omitempty"`
	BodyText string    `json:"bodyText,omitempty"`
}

type planResponse struct {
	PlanType        string `json:"planType"`
	EmailsUsedToday int    `json:"emailsUsedToday"`
	Remaining       int    `json:"remaining"`
	Unlimited       bool   `json:"unlimited"`
	Premium         bool   `json:"premium"`
}

type domainListResponse struct {
	Items []string `json:"items"`
	Count int      `json:"count"`
}

// createMailbox 申请新的临时邮箱，替换当前会话并自动开启轮询。
func (h *Handler) createMailbox(c *gin.Context) {
	var req createMailboxRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, MsgInvalidRequest)
			return
		}
	}

	sess := middleware.SessionFromContext(c)
	mailbox, err := h.coordinator.RequestMailbox(c.Request.Context(), sess, req.Domain)
	if err != nil {
		writeError(c, err)
		return
	}

	Created(c, toMailboxResponse(mailbox, true))
}

// currentMailbox 返回当前会话快照。
func (h *Handler) currentMailbox(c *gin.Context) {
	sess := middleware.SessionFromContext(c)
	mailbox, polling := h.coordinator.CurrentSession(sess.UserID)
	if mailbox == nil {
		NotFound(c, MsgMailboxNotFound)
		return
	}

	Success(c, toMailboxResponse(mailbox, polling))
}

// refreshInbox 立即刷新当前邮箱的收件箱。
func (h *Handler) refreshInbox(c *gin.Context) {
	sess := middleware.SessionFromContext(c)
	mailbox, err := h.coordinator.RefreshInbox(c.Request.Context(), sess.UserID)
	if err != nil {
		writeError(c, err)
		return
	}

	_, polling := h.coordinator.CurrentSession(sess.UserID)
	Success(c, toMailboxResponse(mailbox, polling))
}

type setPollingRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// setPolling 开启或关闭自动刷新。
func (h *Handler) setPolling(c *gin.Context) {
	var req setPollingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	sess := middleware.SessionFromContext(c)
	if err := h.coordinator.SetPolling(sess.UserID, *req.Enabled); err != nil {
		writeError(c, err)
		return
	}

	Success(c, gin.H{"polling": *req.Enabled})
}

// openMessage 获取单封邮件详情。
func (h *Handler) openMessage(c *gin.Context) {
	sess := middleware.SessionFromContext(c)
	detail, err := h.coordinator.OpenMessage(c.Request.Context(), sess.UserID, c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			NotFound(c, MsgMessageNotFound)
			return
		}
		writeError(c, err)
		return
	}

	Success(c, messageDetailResponse{
		ID:       detail.ID,
		From:     detail.From,
		Subject:  detail.Subject,
		Date:     detail.Date,
		BodyHTML: detail.BodyHTML,
		BodyText: detail.BodyText,
	})
}

// listDomains 返回可用域名列表，上游失败时降级为空列表。
func (h *Handler) listDomains(c *gin.Context) {
	domains, err := h.coordinator.Domains(c.Request.Context())
	if err != nil {
		h.log.Warn("list domains failed", zap.Error(err))
		domains = []string{}
	}

	Success(c, domainListResponse{
		Items: domains,
		Count: len(domains),
	})
}

// getPlan 返回当前用户的套餐与配额信息。
func (h *Handler) getPlan(c *gin.Context) {
	sess := middleware.SessionFromContext(c)
	summary, err := h.coordinator.PlanSummary(c.Request.Context(), sess)
	if err != nil {
		writeError(c, err)
		return
	}

	Success(c, planResponse{
		PlanType:        string(summary.PlanType),
		EmailsUsedToday: summary.EmailsUsedToday,
		Remaining:       summary.Remaining,
		Unlimited:       summary.Unlimited,
		Premium:         summary.Premium,
	})
}

// signOut 广播登出事件，释放该用户的邮箱会话。
func (h *Handler) signOut(c *gin.Context) {
	sess := middleware.SessionFromContext(c)
	if h.notifier != nil {
		h.notifier.Publish(auth.Event{
			Kind:    auth.EventSignedOut,
			Session: sess,
		})
	}

	Success(c, gin.H{"signedOut": true})
}

// toMailboxResponse 转换会话快照为响应体。
func toMailboxResponse(mailbox *domain.MailboxSession, polling bool) mailboxResponse {
	messages := make([]messageSummaryResponse, 0, len(mailbox.Messages))
	for _, msg := range mailbox.Messages {
		messages = append(messages, messageSummaryResponse{
			ID:      msg.ID,
			From:    msg.From,
			Subject: msg.Subject,
			Date:    msg.Date,
			Preview: msg.Preview,
		})
	}

	return mailboxResponse{
		Address:   mailbox.Address,
		CreatedAt: mailbox.CreatedAt,
		Polling:   polling,
		Messages:  messages,
		Count:     len(messages),
	}
}
