package quota

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"tempmail/portal/internal/domain"
)

func freePlan(used int, date string) *domain.UserPlan {
	return &domain.UserPlan{
		UserID:          "u1",
		PlanType:        domain.PlanFree,
		EmailsUsedToday: used,
		LastEmailDate:   date,
	}
}

func TestCanCreate(t *testing.T) {
	today := domain.Today()

	t.Run("未加载套餐时拒绝创建", func(t *testing.T) {
		assert.False(t, CanCreate(nil))
	})

	t.Run("付费套餐不受用量影响", func(t *testing.T) {
		for _, used := range []int{0, 9, 10, 9999} {
			plan := &domain.UserPlan{
				UserID:          "u1",
				PlanType:        domain.PlanPremium,
				EmailsUsedToday: used,
				LastEmailDate:   today,
			}
			assert.True(t, CanCreate(plan))
		}
	})

	t.Run("免费套餐受每日上限约束", func(t *testing.T) {
		for used := 0; used <= 12; used++ {
			t.Run(fmt.Sprintf("used=%d", used), func(t *testing.T) {
				assert.Equal(t, used < domain.FreeDailyLimit, CanCreate(freePlan(used, today)))
			})
		}
	})

	t.Run("跨天的陈旧计数按零处理", func(t *testing.T) {
		assert.True(t, CanCreate(freePlan(10, "2020-01-01")))
	})
}

func TestRemaining(t *testing.T) {
	today := domain.Today()

	t.Run("未加载套餐剩余为零", func(t *testing.T) {
		assert.Equal(t, 0, Remaining(nil))
	})

	t.Run("付费套餐不限量", func(t *testing.T) {
		plan := &domain.UserPlan{
			UserID:          "u1",
			PlanType:        domain.PlanPremium,
			EmailsUsedToday: 1000,
			LastEmailDate:   today,
		}
		assert.Equal(t, Unlimited, Remaining(plan))
	})

	t.Run("免费套餐按上限递减且不为负", func(t *testing.T) {
		assert.Equal(t, 10, Remaining(freePlan(0, today)))
		assert.Equal(t, 6, Remaining(freePlan(4, today)))
		assert.Equal(t, 0, Remaining(freePlan(10, today)))
		assert.Equal(t, 0, Remaining(freePlan(15, today)))
	})

	t.Run("跨天的陈旧计数重新给满额度", func(t *testing.T) {
		assert.Equal(t, 10, Remaining(freePlan(10, "2020-01-01")))
	})
}
