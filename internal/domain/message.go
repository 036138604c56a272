package domain

import "time"

// MessageSummary 表示收件箱列表中的一封邮件摘要。
// 由上游服务返回后不再变更；同一会话内 id 的唯一性以上游为准。
type MessageSummary struct {
	ID      string    `json:"id"`
	From    string    `json:"from"`
	Subject string    `json:"subject,omitempty"`
	Date    time.Time `json:"date"`
	Preview string    `json:"preview,omitempty"`
}

// MessageDetail 表示按需拉取的邮件正文。
// 不做缓存，重复查看会重新向上游请求。
type MessageDetail struct {
	ID       string    `json:"id"`
	From     string    `json:"from"`
	Subject  string    `json:"subject"`
	Date     time.Time `json:"date"`
	BodyHTML string    `json:"bodyHtml,omitempty"`
	BodyText string    `json:"bodyText,omitempty"`
}
