package model

import (
	"time"
)

// 打款频率
const (
	FrequencyDaily   = "DAILY"
	FrequencyWeekly  = "WEEKLY"
	FrequencyMonthly = "MONTHLY"
)

// 新建排程的默认配置：每周一打款，起付金额 50000（最小货币单位），最长压款 7 天
const (
	DefaultFrequency    = FrequencyWeekly
	DefaultWeeklyDay    = int(time.Monday)
	DefaultMinThreshold = int64(50000)
	DefaultMaxHoldDays  = 7
	DefaultMonthlyDay   = 1
)

// 月度日期上限固定为 28，避免大小月和闰年的边界问题
const MaxMonthlyDay = 28

// PayoutSchedule 打款排程表
// 每个（商户, 支付渠道）组合一行，记录打款节奏配置和未结算余额
//
// 【重要】current_balance 是支付成功事件累加出来的未结算净额，
// 只在生成打款单的同一事务里清零；任何读-改-写式的更新都会在并发下丢账
type PayoutSchedule struct {
	ID               int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	MerchantID       int64      `gorm:"uniqueIndex:uk_merchant_processor;not null" json:"merchant_id"`
	Processor        string     `gorm:"type:varchar(32);uniqueIndex:uk_merchant_processor;not null" json:"processor"` // 支付渠道
	Frequency        string     `gorm:"type:varchar(20);not null" json:"frequency"`                                   // 打款频率
	WeeklyDay        int        `gorm:"not null;default:1" json:"weekly_day"`                                         // 每周打款日（0=周日）
	MonthlyDay       int        `gorm:"not null;default:1" json:"monthly_day"`                                        // 每月打款日（1-28）
	MinThreshold     int64      `gorm:"not null;default:50000" json:"min_threshold"`                                  // 起付金额
	MaxHoldDays      int        `gorm:"not null;default:7" json:"max_hold_days"`                                      // 最长压款天数
	IsManuallyHeld   bool       `gorm:"not null;default:false" json:"is_manually_held"`                               // 人工冻结
	CurrentBalance   int64      `gorm:"not null;default:0" json:"current_balance"`                                    // 未结算余额（净额）
	LastPayoutAt     *time.Time `json:"last_payout_at"`                                                               // 上次打款时间
	NextPayoutDate   time.Time  `gorm:"index;not null" json:"next_payout_date"`                                       // 下次打款日期
	GMVMonth         string     `gorm:"type:varchar(7);not null;default:''" json:"gmv_month"`                         // 月度 GMV 桶的月份键 YYYY-MM
	MonthGMV         int64      `gorm:"not null;default:0" json:"month_gmv"`                                          // 当月累计 GMV
	DiscountEligible bool       `gorm:"not null;default:false" json:"discount_eligible"`                              // 当月是否已达到量级折扣门槛
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PayoutSchedule) TableName() string {
	return "payout_schedule"
}

// PeriodStart 本期账单的起点：上次打款时间，首次打款用排程创建时间
func (s *PayoutSchedule) PeriodStart() time.Time {
	if s.LastPayoutAt != nil {
		return *s.LastPayoutAt
	}
	return s.CreatedAt
}

// NextPayoutDate 根据频率配置计算下一个打款日期，纯函数，结果归一到当天零点
//
// 规则：
//   - DAILY: 次日，落在周六/周日则顺延到下一个工作日
//   - WEEKLY: 下一个 weeklyDay；当天恰好是 weeklyDay 时取 7 天后，不取当天
//   - MONTHLY: 下个自然月，日期取 min(monthlyDay, 28)
func NextPayoutDate(frequency string, weeklyDay int, monthlyDay int, now time.Time) time.Time {
	switch frequency {
	case FrequencyDaily:
		d := now.AddDate(0, 0, 1)
		for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			d = d.AddDate(0, 0, 1)
		}
		return truncateToDay(d)

	case FrequencyMonthly:
		day := ClampMonthlyDay(monthlyDay)
		year, month, _ := now.Date()
		return time.Date(year, month+1, day, 0, 0, 0, 0, now.Location())

	default: // WEEKLY
		offset := (weeklyDay - int(now.Weekday()) + 7) % 7
		if offset == 0 {
			offset = 7
		}
		return truncateToDay(now.AddDate(0, 0, offset))
	}
}

// ClampMonthlyDay 将每月打款日限制在 1-28
func ClampMonthlyDay(day int) int {
	if day < 1 {
		return 1
	}
	if day > MaxMonthlyDay {
		return MaxMonthlyDay
	}
	return day
}

func IsValidFrequency(frequency string) bool {
	switch frequency {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	default:
		return false
	}
}

func truncateToDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// GMVMonthKey 月度 GMV 桶的键，例如 2024-07
func GMVMonthKey(t time.Time) string {
	return t.Format("2006-01")
}
