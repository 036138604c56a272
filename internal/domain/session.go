package domain

import "time"

// MailboxSession 表示当前激活的临时邮箱及其收件箱快照。
// 地址为空时处于 Idle 状态；每次创建新邮箱会整体替换旧会话，
// 旧邮件列表直接丢弃，不做合并。
type MailboxSession struct {
	Address    string           `json:"address"`
	DomainHint string           `json:"domainHint,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
	Messages   []MessageSummary `json:"messages"`
}

// Active 判断会话是否已绑定邮箱地址。
func (s *MailboxSession) Active() bool {
	return s != nil && s.Address != ""
}
