package provider

import (
	"time"

	"tempmail/portal/internal/domain"
)

// Mailbox 上游创建邮箱接口的归一化结果。
type Mailbox struct {
	Email     string
	CreatedAt time.Time
}

// 上游接口的原始响应结构。字段缺失或类型不符在解码层处理，
// 不允许未定义字段向上渗透。
type domainsResponse struct {
	Domains []string `json:"domains"`
}

type createResponse struct {
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

type inboxResponse struct {
	Messages []wireMessage `json:"messages"`
}

type messageResponse struct {
	Message *wireMessageDetail `json:"message"`
}

type wireMessage struct {
	ID      string `json:"id"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Date    string `json:"date"`
	Preview string `json:"preview"`
}

type wireMessageDetail struct {
	ID      string `json:"id"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Text    string `json:"text"`
	Date    string `json:"date"`
}

// parseTime 解析上游的 ISO-8601 时间串。解析失败返回零值时间，
// 时间展示是非关键路径，不值得因此让整封邮件不可见。
func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (m wireMessage) toSummary() domain.MessageSummary {
	return domain.MessageSummary{
		ID:      m.ID,
		From:    m.From,
		Subject: m.Subject,
		Date:    parseTime(m.Date),
		Preview: m.Preview,
	}
}

func (m *wireMessageDetail) toDetail() *domain.MessageDetail {
	return &domain.MessageDetail{
		ID:       m.ID,
		From:     m.From,
		Subject:  m.Subject,
		Date:     parseTime(m.Date),
		BodyHTML: m.Body,
		BodyText: m.Text,
	}
}
