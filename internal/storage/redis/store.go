package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"tempmail/portal/internal/domain"
)

// 用量计数键保留两天，跨天重置靠日期入键实现，不需要清理任务。
const usageTTL = 48 * time.Hour

// Store Redis 配额存储。
//
// 每日用量是按 (用户, 日期) 键控的独立计数器，INCR 保证重复触发的
// 并发创建请求不会丢失计数。
type Store struct {
	rdb *goredis.Client
}

// NewStore 创建 Redis 配额存储。
func NewStore(addr, password string, db int) (*Store, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Store{rdb: rdb}, nil
}

func typeKey(userID string) string {
	return fmt.Sprintf("plan:type:%s", userID)
}

func usageKey(userID, date string) string {
	return fmt.Sprintf("plan:usage:%s:%s", userID, date)
}

// GetPlan 读取用户套餐记录。类型与当日计数都不存在时视为未找到。
func (s *Store) GetPlan(ctx context.Context, userID string) (*domain.UserPlan, error) {
	today := domain.Today()

	pipe := s.rdb.Pipeline()
	typeCmd := pipe.Get(ctx, typeKey(userID))
	usageCmd := pipe.Get(ctx, usageKey(userID, today))
	if _, err := pipe.Exec(ctx); err != nil && err != goredis.Nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}

	planType, typeErr := typeCmd.Result()
	used, usageErr := usageCmd.Int()

	if typeErr == goredis.Nil && usageErr == goredis.Nil {
		return nil, domain.ErrPlanNotFound
	}
	if planType == "" {
		planType = string(domain.PlanFree)
	}
	if usageErr == goredis.Nil {
		used = 0
	}

	return &domain.UserPlan{
		UserID:          userID,
		PlanType:        domain.PlanType(planType),
		EmailsUsedToday: used,
		LastEmailDate:   today,
	}, nil
}

// GetUsage 读取指定日期的用量计数，键不存在返回 0。
func (s *Store) GetUsage(ctx context.Context, userID, date string) (int, error) {
	used, err := s.rdb.Get(ctx, usageKey(userID, date)).Int()
	if err == goredis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read usage: %w", err)
	}
	return used, nil
}

// IncrementUsage 原子地为指定日期的用量加一。
func (s *Store) IncrementUsage(ctx context.Context, userID, date string) error {
	pipe := s.rdb.Pipeline()
	pipe.Incr(ctx, usageKey(userID, date))
	pipe.Expire(ctx, usageKey(userID, date), usageTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to increment usage: %w", err)
	}
	return nil
}

// SetPlanType 设置用户套餐类型。
func (s *Store) SetPlanType(ctx context.Context, userID string, planType domain.PlanType) error {
	if err := s.rdb.Set(ctx, typeKey(userID), string(planType), 0).Err(); err != nil {
		return fmt.Errorf("failed to set plan type: %w", err)
	}
	return nil
}

// Health 探测 Redis 连接。
func (s *Store) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.rdb.Ping(ctx).Err()
}

// Close 关闭 Redis 连接。
func (s *Store) Close() error {
	return s.rdb.Close()
}
