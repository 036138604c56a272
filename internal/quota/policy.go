package quota

import "tempmail/portal/internal/domain"

// Unlimited 付费用户的剩余额度哨兵值。
const Unlimited = -1

// CanCreate 判断当前是否允许为该套餐创建新邮箱。
//
// 套餐尚未加载（nil）时拒绝创建（fail closed）；付费套餐不限量；
// 免费套餐受每日上限约束，跨天的陈旧计数按 0 处理。
func CanCreate(plan *domain.UserPlan) bool {
	return CanCreateOn(plan, domain.Today())
}

// CanCreateOn 与 CanCreate 相同，但以显式日期计算（测试和记账用）。
func CanCreateOn(plan *domain.UserPlan, date string) bool {
	if plan == nil {
		return false
	}
	if plan.IsPremium() {
		return true
	}
	return plan.UsedOn(date) < domain.FreeDailyLimit
}

// Remaining 返回今日剩余可创建数量。付费套餐返回 Unlimited，
// 套餐未加载返回 0。
func Remaining(plan *domain.UserPlan) int {
	return RemainingOn(plan, domain.Today())
}

// RemainingOn 与 Remaining 相同，但以显式日期计算。
func RemainingOn(plan *domain.UserPlan, date string) int {
	if plan == nil {
		return 0
	}
	if plan.IsPremium() {
		return Unlimited
	}
	left := domain.FreeDailyLimit - plan.UsedOn(date)
	if left < 0 {
		return 0
	}
	return left
}
