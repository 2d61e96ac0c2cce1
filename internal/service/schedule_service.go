package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payoutengine/internal/model"
)

var ErrInvalidScheduleConfig = errors.New("排程配置不合法")

// ScheduleService 打款排程配置管理
type ScheduleService struct {
	scheduleRepo ScheduleRepo
	now          func() time.Time
}

func NewScheduleService(scheduleRepo ScheduleRepo) *ScheduleService {
	return &ScheduleService{
		scheduleRepo: scheduleRepo,
		now:          time.Now,
	}
}

func (s *ScheduleService) GetSchedule(ctx context.Context, merchantID int64, processor string) (*model.PayoutSchedule, error) {
	return s.scheduleRepo.GetByMerchantProcessor(ctx, merchantID, processor)
}

// UpdateConfigRequest 排程配置更新，nil 字段不变更
type UpdateConfigRequest struct {
	Frequency    *string `json:"frequency"`
	WeeklyDay    *int    `json:"weekly_day"`
	MonthlyDay   *int    `json:"monthly_day"`
	MinThreshold *int64  `json:"min_threshold"`
	MaxHoldDays  *int    `json:"max_hold_days"`
}

// UpdateConfig 更新排程配置
// 频率相关字段（frequency / weekly_day / monthly_day）变更时立即重算下次打款日期，
// 保证 next_payout_date 始终和配置一致
func (s *ScheduleService) UpdateConfig(ctx context.Context, merchantID int64, processor string, req *UpdateConfigRequest) (*model.PayoutSchedule, error) {
	schedule, err := s.scheduleRepo.GetByMerchantProcessor(ctx, merchantID, processor)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	cadenceChanged := false

	if req.Frequency != nil {
		if !model.IsValidFrequency(*req.Frequency) {
			return nil, fmt.Errorf("%w: frequency=%s", ErrInvalidScheduleConfig, *req.Frequency)
		}
		schedule.Frequency = *req.Frequency
		updates["frequency"] = *req.Frequency
		cadenceChanged = true
	}
	if req.WeeklyDay != nil {
		if *req.WeeklyDay < 0 || *req.WeeklyDay > 6 {
			return nil, fmt.Errorf("%w: weekly_day=%d", ErrInvalidScheduleConfig, *req.WeeklyDay)
		}
		schedule.WeeklyDay = *req.WeeklyDay
		updates["weekly_day"] = *req.WeeklyDay
		cadenceChanged = true
	}
	if req.MonthlyDay != nil {
		day := model.ClampMonthlyDay(*req.MonthlyDay)
		schedule.MonthlyDay = day
		updates["monthly_day"] = day
		cadenceChanged = true
	}
	if req.MinThreshold != nil {
		if *req.MinThreshold < 0 {
			return nil, fmt.Errorf("%w: min_threshold=%d", ErrInvalidScheduleConfig, *req.MinThreshold)
		}
		schedule.MinThreshold = *req.MinThreshold
		updates["min_threshold"] = *req.MinThreshold
	}
	if req.MaxHoldDays != nil {
		if *req.MaxHoldDays < 1 {
			return nil, fmt.Errorf("%w: max_hold_days=%d", ErrInvalidScheduleConfig, *req.MaxHoldDays)
		}
		schedule.MaxHoldDays = *req.MaxHoldDays
		updates["max_hold_days"] = *req.MaxHoldDays
	}

	if len(updates) == 0 {
		return schedule, nil
	}

	if cadenceChanged {
		schedule.NextPayoutDate = model.NextPayoutDate(schedule.Frequency, schedule.WeeklyDay, schedule.MonthlyDay, s.now())
		updates["next_payout_date"] = schedule.NextPayoutDate
	}

	if err := s.scheduleRepo.UpdateConfig(ctx, schedule.ID, updates); err != nil {
		return nil, err
	}
	return schedule, nil
}

// Hold 人工冻结打款，冻结期间生成扫描跳过该排程
func (s *ScheduleService) Hold(ctx context.Context, merchantID int64, processor string) error {
	return s.setHeld(ctx, merchantID, processor, true)
}

// Release 解除人工冻结
func (s *ScheduleService) Release(ctx context.Context, merchantID int64, processor string) error {
	return s.setHeld(ctx, merchantID, processor, false)
}

func (s *ScheduleService) setHeld(ctx context.Context, merchantID int64, processor string, held bool) error {
	schedule, err := s.scheduleRepo.GetByMerchantProcessor(ctx, merchantID, processor)
	if err != nil {
		return err
	}
	return s.scheduleRepo.UpdateConfig(ctx, schedule.ID, map[string]interface{}{
		"is_manually_held": held,
	})
}
