package service

import (
	"time"

	"payoutengine/internal/model"
)

// 各订阅套餐的月费（最小货币单位）
var monthlySubscriptionFees = map[string]int64{
	model.TierFree:       0,
	model.TierBasic:      9900,
	model.TierPro:        19900,
	model.TierEnterprise: 49900,
}

// 量级折扣：当月累计 GMV 达到门槛后，之后的打款单按 gross 的 0.5% 返还
const (
	VolumeDiscountThreshold = int64(10000000)
	volumeDiscountBps       = int64(50) // 万分之五十 = 0.5%
)

// 订阅费按 30 天折算
const prorationBaseDays = 30

// FeeCalculator 费用计算器
// 订阅费折算和量级折扣都是纯算术，唯一的状态是排程上的月度 GMV 桶，
// 桶的持久化跟随打款生成事务，这里只负责算
type FeeCalculator struct{}

func NewFeeCalculator() *FeeCalculator {
	return &FeeCalculator{}
}

// SubscriptionFee 按账期天数折算订阅费，四舍五入（0.5 进位）
// 折算不封顶：31 天的账期就收 31/30 的月费，压款越久订阅费越多
func (c *FeeCalculator) SubscriptionFee(tier string, periodDays int) int64 {
	monthlyFee, ok := monthlySubscriptionFees[tier]
	if !ok || monthlyFee == 0 || periodDays <= 0 {
		return 0
	}
	return roundHalfUp(monthlyFee*int64(periodDays), prorationBaseDays)
}

// ApplyVolumeDiscount 累加本期 GMV 并计算量级折扣
//
// 月份变化时先重置桶和达标标记；把本期 gross 计入后判断是否达标。
// 折扣只作用于本单和当月之后的打款单，绝不回溯已生成的打款单 ——
// 达标前已经出账的单子不补折扣。
// 会修改 schedule 的 GMV 桶字段，调用方负责在打款生成事务里持久化
func (c *FeeCalculator) ApplyVolumeDiscount(schedule *model.PayoutSchedule, periodGross int64, now time.Time) int64 {
	monthKey := model.GMVMonthKey(now)
	if schedule.GMVMonth != monthKey {
		schedule.GMVMonth = monthKey
		schedule.MonthGMV = 0
		schedule.DiscountEligible = false
	}

	schedule.MonthGMV += periodGross
	if schedule.MonthGMV >= VolumeDiscountThreshold {
		schedule.DiscountEligible = true
	}

	if !schedule.DiscountEligible {
		return 0
	}
	return roundHalfUp(periodGross*volumeDiscountBps, 10000)
}

// PeriodDays 账期天数，不足一天按一天计
func PeriodDays(periodStart, periodEnd time.Time) int {
	if !periodEnd.After(periodStart) {
		return 1
	}
	const day = 24 * time.Hour
	days := int((periodEnd.Sub(periodStart) + day - 1) / day)
	if days < 1 {
		return 1
	}
	return days
}

// roundHalfUp 整数相除，0.5 进位
func roundHalfUp(numerator, denominator int64) int64 {
	return (numerator + denominator/2) / denominator
}
