package storage

import (
	"context"

	"tempmail/portal/internal/domain"
)

// PlanStore 定义配额存储操作。
//
// IncrementUsage 必须是按用户原子的"自增或初始化"：同一用户的并发
// 创建请求不允许丢失计数。date 参数是记账日（"2006-01-02"），
// 跨天重置通过日期键控实现，存储层不需要定时任务。
type PlanStore interface {
	// GetPlan 读取用户套餐记录，不存在时返回 domain.ErrPlanNotFound。
	GetPlan(ctx context.Context, userID string) (*domain.UserPlan, error)
	// IncrementUsage 原子地为指定日期的用量加一，记录不存在则初始化。
	IncrementUsage(ctx context.Context, userID, date string) error
	// SetPlanType 设置用户套餐类型（支付回调使用）。
	SetPlanType(ctx context.Context, userID string, planType domain.PlanType) error
	// Health 探测存储是否可用。
	Health() error
	// Close 释放底层连接。
	Close() error
}
