package domain

import "time"

// PlanType 套餐类型
type PlanType string

const (
	PlanFree    PlanType = "free"
	PlanPremium PlanType = "premium"
)

// FreeDailyLimit 免费用户每日可创建邮箱数量上限。业务常量，不可配置派生。
const FreeDailyLimit = 10

// UserPlan 表示一个用户的套餐记录，由配额存储持有。
// EmailsUsedToday 只统计 LastEmailDate 当天的用量；读取方必须容忍
// 该计数过期（日期不是今天时按 0 处理）。
type UserPlan struct {
	UserID          string    `json:"userId" gorm:"primaryKey;type:varchar(36)"`
	PlanType        PlanType  `json:"planType" gorm:"type:varchar(20);default:'free';index"`
	EmailsUsedToday int       `json:"emailsUsedToday" gorm:"default:0"`
	LastEmailDate   string    `json:"lastEmailDate" gorm:"type:varchar(10)"` // "2006-01-02"
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// IsPremium 判断是否为付费套餐
func (p *UserPlan) IsPremium() bool {
	return p != nil && p.PlanType == PlanPremium
}

// UsedOn 返回指定日期的已用量。记录中的日期与查询日期不一致时按 0 计，
// 这样跨天的陈旧计数不会泄漏到新的一天。
func (p *UserPlan) UsedOn(date string) int {
	if p == nil || p.LastEmailDate != date {
		return 0
	}
	return p.EmailsUsedToday
}

// Today 返回配额记账用的日期串（UTC）。
func Today() string {
	return time.Now().UTC().Format("2006-01-02")
}
