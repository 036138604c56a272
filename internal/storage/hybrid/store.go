package hybrid

import (
	"context"

	"go.uber.org/zap"

	"tempmail/portal/internal/domain"
	"tempmail/portal/internal/storage"
	"tempmail/portal/internal/storage/redis"
)

// Store 组合 SQL 持久化与 Redis 计数的配额存储。
//
// 套餐记录以 SQL 为准；当日用量的原子自增走 Redis（INCR），
// SQL 里的计数只作为持久化镜像异步追平。同一用户真正并发的创建
// 请求由 Redis 保证不丢计数。
type Store struct {
	persistent storage.PlanStore
	counter    *redis.Store
	log        *zap.Logger
}

// NewStore 创建混合配额存储。
func NewStore(persistent storage.PlanStore, counter *redis.Store, log *zap.Logger) *Store {
	return &Store{
		persistent: persistent,
		counter:    counter,
		log:        log,
	}
}

// GetPlan 读取套餐记录，当日用量以 Redis 计数为准（取较大值，
// SQL 镜像可能滞后）。
func (s *Store) GetPlan(ctx context.Context, userID string) (*domain.UserPlan, error) {
	plan, err := s.persistent.GetPlan(ctx, userID)
	if err != nil {
		return nil, err
	}

	today := domain.Today()
	used, cerr := s.counter.GetUsage(ctx, userID, today)
	if cerr != nil {
		s.log.Warn("redis usage read failed, falling back to persistent count",
			zap.String("user_id", userID),
			zap.Error(cerr),
		)
		return plan, nil
	}

	if used > plan.UsedOn(today) {
		plan.EmailsUsedToday = used
		plan.LastEmailDate = today
	}
	return plan, nil
}

// IncrementUsage 先走 Redis 原子自增，再把计数镜像进 SQL。
// 镜像失败只记日志，不回滚已生效的计数。
func (s *Store) IncrementUsage(ctx context.Context, userID, date string) error {
	if err := s.counter.IncrementUsage(ctx, userID, date); err != nil {
		return err
	}

	if err := s.persistent.IncrementUsage(ctx, userID, date); err != nil {
		s.log.Warn("failed to mirror usage increment to sql",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
	return nil
}

// SetPlanType 设置套餐类型，以 SQL 为准。
func (s *Store) SetPlanType(ctx context.Context, userID string, planType domain.PlanType) error {
	return s.persistent.SetPlanType(ctx, userID, planType)
}

// Health 两个后端都健康才算健康。
func (s *Store) Health() error {
	if err := s.persistent.Health(); err != nil {
		return err
	}
	return s.counter.Health()
}

// Close 关闭两个后端连接。
func (s *Store) Close() error {
	err := s.persistent.Close()
	if cerr := s.counter.Close(); err == nil {
		err = cerr
	}
	return err
}
