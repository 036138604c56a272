package memory

import (
	"context"
	"sync"
	"time"

	"tempmail/portal/internal/domain"
)

// Store 使用内存保存套餐与用量数据，主要用于开发验证和测试。
type Store struct {
	mu    sync.RWMutex
	plans map[string]*domain.UserPlan // userID -> plan
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		plans: make(map[string]*domain.UserPlan),
	}
}

// GetPlan 读取用户套餐记录。
func (s *Store) GetPlan(ctx context.Context, userID string) (*domain.UserPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plan, ok := s.plans[userID]
	if !ok {
		return nil, domain.ErrPlanNotFound
	}
	copied := *plan
	return &copied, nil
}

// IncrementUsage 原子地为指定日期的用量加一。
// 记录中的日期与记账日不同说明跨天了，计数从 1 重新开始。
func (s *Store) IncrementUsage(ctx context.Context, userID, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	plan, ok := s.plans[userID]
	if !ok {
		s.plans[userID] = &domain.UserPlan{
			UserID:          userID,
			PlanType:        domain.PlanFree,
			EmailsUsedToday: 1,
			LastEmailDate:   date,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		return nil
	}

	if plan.LastEmailDate == date {
		plan.EmailsUsedToday++
	} else {
		plan.EmailsUsedToday = 1
		plan.LastEmailDate = date
	}
	plan.UpdatedAt = now
	return nil
}

// SetPlanType 设置用户套餐类型，记录不存在则创建。
func (s *Store) SetPlanType(ctx context.Context, userID string, planType domain.PlanType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	plan, ok := s.plans[userID]
	if !ok {
		s.plans[userID] = &domain.UserPlan{
			UserID:    userID,
			PlanType:  planType,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return nil
	}
	plan.PlanType = planType
	plan.UpdatedAt = now
	return nil
}

// Health 内存存储始终可用。
func (s *Store) Health() error {
	return nil
}

// Close 内存存储无需释放资源。
func (s *Store) Close() error {
	return nil
}
