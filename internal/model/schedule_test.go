package model

import (
	"testing"
	"time"
)

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func TestNextPayoutDate_Daily(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"周四到周五", time.Date(2024, 7, 11, 15, 30, 0, 0, time.UTC), date(2024, 7, 12)},
		{"周五跳过周末", time.Date(2024, 7, 12, 9, 0, 0, 0, time.UTC), date(2024, 7, 15)},
		{"周六顺延到周一", time.Date(2024, 7, 13, 9, 0, 0, 0, time.UTC), date(2024, 7, 15)},
		{"周日顺延到周一", time.Date(2024, 7, 14, 9, 0, 0, 0, time.UTC), date(2024, 7, 15)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextPayoutDate(FrequencyDaily, 0, 0, tt.now)
			if !got.Equal(tt.want) {
				t.Fatalf("期望 %v, 实际 %v", tt.want, got)
			}
		})
	}
}

func TestNextPayoutDate_DailyNeverOnWeekend(t *testing.T) {
	// 从任意起点连续推一年，结果不允许落在周六/周日
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 365; i++ {
		next := NextPayoutDate(FrequencyDaily, 0, 0, now)
		if next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
			t.Fatalf("打款日落在周末: now=%v, next=%v", now, next)
		}
		if !next.After(now.Truncate(24 * time.Hour)) {
			t.Fatalf("打款日没有前进: now=%v, next=%v", now, next)
		}
		now = next.Add(12 * time.Hour)
	}
}

func TestNextPayoutDate_Weekly(t *testing.T) {
	tests := []struct {
		name      string
		now       time.Time
		weeklyDay int
		want      time.Time
	}{
		{"周三到下周一", time.Date(2024, 7, 10, 8, 0, 0, 0, time.UTC), int(time.Monday), date(2024, 7, 15)},
		{"当天就是目标日取七天后", time.Date(2024, 7, 8, 8, 0, 0, 0, time.UTC), int(time.Monday), date(2024, 7, 15)},
		{"周一到周五", time.Date(2024, 7, 8, 8, 0, 0, 0, time.UTC), int(time.Friday), date(2024, 7, 12)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextPayoutDate(FrequencyWeekly, tt.weeklyDay, 0, tt.now)
			if !got.Equal(tt.want) {
				t.Fatalf("期望 %v, 实际 %v", tt.want, got)
			}
			if got.Weekday() != time.Weekday(tt.weeklyDay) {
				t.Fatalf("落点星期不对: %v", got.Weekday())
			}
		})
	}
}

func TestNextPayoutDate_Monthly(t *testing.T) {
	tests := []struct {
		name       string
		now        time.Time
		monthlyDay int
		want       time.Time
	}{
		{"普通月份", time.Date(2024, 7, 20, 8, 0, 0, 0, time.UTC), 15, date(2024, 8, 15)},
		{"配置31号钳到28号", time.Date(2024, 1, 31, 8, 0, 0, 0, time.UTC), 31, date(2024, 2, 28)},
		{"跨年", time.Date(2024, 12, 15, 8, 0, 0, 0, time.UTC), 10, date(2025, 1, 10)},
		{"配置0兜底到1号", time.Date(2024, 7, 20, 8, 0, 0, 0, time.UTC), 0, date(2024, 8, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextPayoutDate(FrequencyMonthly, 0, tt.monthlyDay, tt.now)
			if !got.Equal(tt.want) {
				t.Fatalf("期望 %v, 实际 %v", tt.want, got)
			}
		})
	}
}

func TestClampMonthlyDay(t *testing.T) {
	if got := ClampMonthlyDay(31); got != 28 {
		t.Fatalf("期望 28, 实际 %d", got)
	}
	if got := ClampMonthlyDay(0); got != 1 {
		t.Fatalf("期望 1, 实际 %d", got)
	}
	if got := ClampMonthlyDay(15); got != 15 {
		t.Fatalf("期望 15, 实际 %d", got)
	}
}

func TestPeriodStart(t *testing.T) {
	created := date(2024, 7, 1)
	s := &PayoutSchedule{CreatedAt: created}
	if got := s.PeriodStart(); !got.Equal(created) {
		t.Fatalf("首次打款应以创建时间为账期起点, 实际 %v", got)
	}

	last := date(2024, 7, 8)
	s.LastPayoutAt = &last
	if got := s.PeriodStart(); !got.Equal(last) {
		t.Fatalf("应以上次打款时间为账期起点, 实际 %v", got)
	}
}
