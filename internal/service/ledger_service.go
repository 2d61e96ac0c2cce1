package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"payoutengine/internal/config"
	"payoutengine/internal/model"

	"gorm.io/gorm"
)

var (
	ErrInvalidProcessor = errors.New("不支持的支付渠道")
	ErrInvalidAmount    = errors.New("支付金额不合法")
)

// LedgerService 未结算余额账本
// 消费支付成功事件：支付记录幂等落库，并把净额原子累加到所属排程的未结算余额
type LedgerService struct {
	txer         Txer
	scheduleRepo ScheduleRepo
	paymentRepo  PaymentRepo
	cfg          *config.Config
	now          func() time.Time
}

func NewLedgerService(txer Txer, scheduleRepo ScheduleRepo, paymentRepo PaymentRepo, cfg *config.Config) *LedgerService {
	return &LedgerService{
		txer:         txer,
		scheduleRepo: scheduleRepo,
		paymentRepo:  paymentRepo,
		cfg:          cfg,
		now:          time.Now,
	}
}

// PaymentSucceededEvent 支付成功事件，来自平台侧的支付结果 topic
type PaymentSucceededEvent struct {
	PaymentNo    string    `json:"payment_no"`
	MerchantID   int64     `json:"merchant_id"`
	Processor    string    `json:"processor"`
	OrderNo      string    `json:"order_no"`
	Amount       int64     `json:"amount"`
	ProcessorFee int64     `json:"processor_fee"`
	SucceededAt  time.Time `json:"succeeded_at"`
}

// OnPaymentSucceeded 处理一条支付成功事件
//
// 【关键点】
//  1. 首笔支付触发排程懒创建（默认每周一打款）
//  2. 落库和余额累加在同一事务里，余额累加走 SQL 原子自增
//  3. 事件可能重复投递，按 payment_no 去重，重复事件不会二次计入余额
func (s *LedgerService) OnPaymentSucceeded(ctx context.Context, event *PaymentSucceededEvent) error {
	if !model.IsValidProcessor(event.Processor) {
		return fmt.Errorf("%w: %s", ErrInvalidProcessor, event.Processor)
	}
	if event.Amount <= 0 || event.ProcessorFee < 0 || event.ProcessorFee > event.Amount {
		return fmt.Errorf("%w: amount=%d, fee=%d", ErrInvalidAmount, event.Amount, event.ProcessorFee)
	}

	now := s.now()
	schedule, err := s.scheduleRepo.GetOrCreate(ctx, nil, &model.PayoutSchedule{
		MerchantID:     event.MerchantID,
		Processor:      event.Processor,
		Frequency:      model.DefaultFrequency,
		WeeklyDay:      model.DefaultWeeklyDay,
		MonthlyDay:     model.DefaultMonthlyDay,
		MinThreshold:   model.DefaultMinThreshold,
		MaxHoldDays:    model.DefaultMaxHoldDays,
		NextPayoutDate: model.NextPayoutDate(model.DefaultFrequency, model.DefaultWeeklyDay, model.DefaultMonthlyDay, now),
	})
	if err != nil {
		return fmt.Errorf("获取打款排程失败: %w", err)
	}

	payment := &model.Payment{
		PaymentNo:    event.PaymentNo,
		MerchantID:   event.MerchantID,
		Processor:    event.Processor,
		OrderNo:      event.OrderNo,
		Amount:       event.Amount,
		ProcessorFee: event.ProcessorFee,
		Status:       model.PaymentStatusSucceeded,
		SucceededAt:  event.SucceededAt,
	}

	return s.txer.Transaction(func(tx *gorm.DB) error {
		inserted, err := s.paymentRepo.InsertIgnoreDuplicate(ctx, tx, payment)
		if err != nil {
			return fmt.Errorf("支付记录落库失败: %w", err)
		}
		if !inserted {
			log.Printf("[Ledger] 重复的支付事件，跳过: paymentNo=%s", event.PaymentNo)
			return nil
		}

		if err := s.scheduleRepo.IncrementBalance(ctx, tx, schedule.ID, payment.NetContribution()); err != nil {
			return fmt.Errorf("累加未结算余额失败: %w", err)
		}
		return nil
	})
}
