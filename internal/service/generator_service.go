package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"payoutengine/internal/config"
	"payoutengine/internal/model"
	"payoutengine/internal/repository"
	"payoutengine/pkg/idgen"

	"gorm.io/gorm"
)

var ErrMerchantConfigDefect = errors.New("商户配置缺失，排程无法结算")

// GeneratorService 打款单生成
// 周期性扫描到期排程，套用起付/压款策略，把账期内未结算的支付
// 一次性认领进新的打款单
type GeneratorService struct {
	txer         Txer
	scheduleRepo ScheduleRepo
	paymentRepo  PaymentRepo
	payoutRepo   PayoutRepo
	merchantRepo MerchantRepo
	locker       ScheduleLocker
	fees         *FeeCalculator
	cfg          *config.Config
	now          func() time.Time
}

func NewGeneratorService(
	txer Txer,
	scheduleRepo ScheduleRepo,
	paymentRepo PaymentRepo,
	payoutRepo PayoutRepo,
	merchantRepo MerchantRepo,
	locker ScheduleLocker,
	cfg *config.Config,
) *GeneratorService {
	return &GeneratorService{
		txer:         txer,
		scheduleRepo: scheduleRepo,
		paymentRepo:  paymentRepo,
		payoutRepo:   payoutRepo,
		merchantRepo: merchantRepo,
		locker:       locker,
		fees:         NewFeeCalculator(),
		cfg:          cfg,
		now:          time.Now,
	}
}

// GenerateScheduledPayouts 扫描一轮到期排程，返回本轮生成的打款单数量
// 单个排程出错只记日志不中断整轮扫描
func (s *GeneratorService) GenerateScheduledPayouts(ctx context.Context) (int, error) {
	schedules, err := s.scheduleRepo.GetDueSchedules(ctx, s.now(), s.cfg.Payout.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("查询到期排程失败: %w", err)
	}

	generated := 0
	for _, schedule := range schedules {
		ok, err := s.generateForSchedule(ctx, schedule.ID)
		if err != nil {
			log.Printf("[Generator] 排程结算失败: scheduleID=%d, merchantID=%d, err=%v",
				schedule.ID, schedule.MerchantID, err)
			continue
		}
		if ok {
			generated++
		}
	}
	return generated, nil
}

// generateForSchedule 对单个排程跑一次完整的生成流程
//
// 排程粒度加分布式锁，避免多实例重复扫描同一排程做无用功；
// 正确性不依赖锁 —— 认领事务里的条件更新才是并发安全的底线
func (s *GeneratorService) generateForSchedule(ctx context.Context, scheduleID int64) (bool, error) {
	var generated bool
	err := s.locker.WithLock(ctx, scheduleID, func() error {
		ok, err := s.generateLocked(ctx, scheduleID)
		generated = ok
		return err
	})
	return generated, err
}

func (s *GeneratorService) generateLocked(ctx context.Context, scheduleID int64) (bool, error) {
	// 拿到锁后重读排程，扫描快照可能已经过期
	schedule, err := s.scheduleRepo.GetByID(ctx, scheduleID)
	if err != nil {
		return false, err
	}

	now := s.now()
	if schedule.IsManuallyHeld || schedule.NextPayoutDate.After(now) {
		return false, nil
	}
	if !s.isEligible(schedule, now) {
		// 不满足起付条件时不推进 next_payout_date：
		// 余额随时可能补够门槛，压款天数也在增长，下一轮扫描继续判断
		return false, nil
	}

	merchant, err := s.merchantRepo.GetByID(ctx, schedule.MerchantID)
	if err != nil {
		if errors.Is(err, repository.ErrMerchantNotFound) {
			// 配置缺陷，重试没有意义，留给运维排查
			return false, fmt.Errorf("%w: merchantID=%d", ErrMerchantConfigDefect, schedule.MerchantID)
		}
		return false, err
	}

	periodStart := schedule.PeriodStart()
	payments, err := s.paymentRepo.GetUnsettled(ctx, schedule.MerchantID, schedule.Processor, periodStart, now)
	if err != nil {
		return false, fmt.Errorf("查询未结算支付失败: %w", err)
	}
	if len(payments) == 0 {
		return false, nil
	}

	var gross, processorFee int64
	paymentIDs := make([]int64, 0, len(payments))
	for _, p := range payments {
		gross += p.Amount
		processorFee += p.ProcessorFee
		paymentIDs = append(paymentIDs, p.ID)
	}

	subscriptionFee := s.fees.SubscriptionFee(merchant.SubscriptionTier, PeriodDays(periodStart, now))
	volumeDiscount := s.fees.ApplyVolumeDiscount(schedule, gross, now)
	net := gross - processorFee - subscriptionFee + volumeDiscount
	if net <= 0 {
		log.Printf("[Generator] 本期净额不为正，暂不出账: scheduleID=%d, gross=%d, net=%d",
			schedule.ID, gross, net)
		return false, nil
	}

	payout := &model.Payout{
		PayoutNo:        idgen.GeneratePayoutNo(),
		MerchantID:      schedule.MerchantID,
		Processor:       schedule.Processor,
		PeriodStart:     periodStart,
		PeriodEnd:       now,
		Gross:           gross,
		ProcessorFee:    processorFee,
		SubscriptionFee: subscriptionFee,
		VolumeDiscount:  volumeDiscount,
		Net:             net,
		Status:          model.PayoutStatusPending,
	}
	if err := payout.EncodePaymentIDs(paymentIDs); err != nil {
		return false, fmt.Errorf("编码支付记录列表失败: %w", err)
	}
	// 金额恒等式校验，不一致说明费用计算有缺陷，绝不能出账
	if err := payout.CheckAmounts(gross, processorFee); err != nil {
		return false, err
	}

	nextDate := model.NextPayoutDate(schedule.Frequency, schedule.WeeklyDay, schedule.MonthlyDay, now)

	// 认领事务：建单、置位结算指针、排程结转，任何一步失败全部回滚，
	// 不会出现半个打款单或没有归属的认领
	err = s.txer.Transaction(func(tx *gorm.DB) error {
		if err := s.payoutRepo.Create(ctx, tx, payout); err != nil {
			return fmt.Errorf("创建打款单失败: %w", err)
		}

		if err := s.paymentRepo.ClaimForPayout(ctx, tx, paymentIDs, payout.ID); err != nil {
			return fmt.Errorf("认领支付记录失败: %w", err)
		}

		if err := s.scheduleRepo.SettleBalance(ctx, tx, schedule, now, nextDate); err != nil {
			return fmt.Errorf("排程结转失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	log.Printf("[Generator] 打款单已生成: payoutNo=%s, merchantID=%d, processor=%s, payments=%d, net=%d",
		payout.PayoutNo, payout.MerchantID, payout.Processor, payout.PaymentCount, payout.Net)
	return true, nil
}

// isEligible 起付判断：余额达到门槛，或距上次打款已超过最长压款天数
// 后者保证小流水商户不会被无限期压款
func (s *GeneratorService) isEligible(schedule *model.PayoutSchedule, now time.Time) bool {
	if schedule.CurrentBalance >= schedule.MinThreshold {
		return true
	}
	held := now.Sub(schedule.PeriodStart())
	return held >= time.Duration(schedule.MaxHoldDays)*24*time.Hour
}
