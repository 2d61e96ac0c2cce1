package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"payoutengine/internal/infrastructure/settlement"
	"payoutengine/internal/model"
	"payoutengine/internal/repository"

	"gorm.io/gorm"
)

// 服务层测试共用的桩实现，行为尽量贴近真实仓储的条件更新语义

type stubTxer struct {
	err error
}

func (s *stubTxer) Transaction(fc func(tx *gorm.DB) error, opts ...*sql.TxOptions) error {
	if s.err != nil {
		return s.err
	}
	return fc(nil)
}

type stubScheduleRepo struct {
	schedules   []*model.PayoutSchedule
	nextID      int64
	settleCalls int
	increments  []int64
}

func (s *stubScheduleRepo) GetByID(ctx context.Context, id int64) (*model.PayoutSchedule, error) {
	for _, sched := range s.schedules {
		if sched.ID == id {
			return sched, nil
		}
	}
	return nil, repository.ErrScheduleNotFound
}

func (s *stubScheduleRepo) GetByMerchantProcessor(ctx context.Context, merchantID int64, processor string) (*model.PayoutSchedule, error) {
	for _, sched := range s.schedules {
		if sched.MerchantID == merchantID && sched.Processor == processor {
			return sched, nil
		}
	}
	return nil, repository.ErrScheduleNotFound
}

func (s *stubScheduleRepo) GetOrCreate(ctx context.Context, tx *gorm.DB, schedule *model.PayoutSchedule) (*model.PayoutSchedule, error) {
	if existing, err := s.GetByMerchantProcessor(ctx, schedule.MerchantID, schedule.Processor); err == nil {
		return existing, nil
	}
	s.nextID++
	schedule.ID = s.nextID
	s.schedules = append(s.schedules, schedule)
	return schedule, nil
}

func (s *stubScheduleRepo) IncrementBalance(ctx context.Context, tx *gorm.DB, scheduleID int64, delta int64) error {
	sched, err := s.GetByID(ctx, scheduleID)
	if err != nil {
		return err
	}
	sched.CurrentBalance += delta
	s.increments = append(s.increments, delta)
	return nil
}

func (s *stubScheduleRepo) GetDueSchedules(ctx context.Context, now time.Time, limit int) ([]*model.PayoutSchedule, error) {
	var due []*model.PayoutSchedule
	for _, sched := range s.schedules {
		if !sched.IsManuallyHeld && !sched.NextPayoutDate.After(now) {
			due = append(due, sched)
		}
	}
	return due, nil
}

func (s *stubScheduleRepo) SettleBalance(ctx context.Context, tx *gorm.DB, schedule *model.PayoutSchedule, now time.Time, nextDate time.Time) error {
	sched, err := s.GetByID(ctx, schedule.ID)
	if err != nil {
		return err
	}
	last := now
	sched.CurrentBalance = 0
	sched.LastPayoutAt = &last
	sched.NextPayoutDate = nextDate
	sched.GMVMonth = schedule.GMVMonth
	sched.MonthGMV = schedule.MonthGMV
	sched.DiscountEligible = schedule.DiscountEligible
	s.settleCalls++
	return nil
}

func (s *stubScheduleRepo) UpdateConfig(ctx context.Context, scheduleID int64, updates map[string]interface{}) error {
	sched, err := s.GetByID(ctx, scheduleID)
	if err != nil {
		return err
	}
	if v, ok := updates["frequency"]; ok {
		sched.Frequency = v.(string)
	}
	if v, ok := updates["weekly_day"]; ok {
		sched.WeeklyDay = v.(int)
	}
	if v, ok := updates["monthly_day"]; ok {
		sched.MonthlyDay = v.(int)
	}
	if v, ok := updates["min_threshold"]; ok {
		sched.MinThreshold = v.(int64)
	}
	if v, ok := updates["max_hold_days"]; ok {
		sched.MaxHoldDays = v.(int)
	}
	if v, ok := updates["next_payout_date"]; ok {
		sched.NextPayoutDate = v.(time.Time)
	}
	if v, ok := updates["is_manually_held"]; ok {
		sched.IsManuallyHeld = v.(bool)
	}
	return nil
}

type stubPaymentRepo struct {
	payments     []*model.Payment
	nextID       int64
	claimErr     error
	settledCalls []int64
}

func (s *stubPaymentRepo) InsertIgnoreDuplicate(ctx context.Context, tx *gorm.DB, payment *model.Payment) (bool, error) {
	for _, p := range s.payments {
		if p.PaymentNo == payment.PaymentNo {
			return false, nil
		}
	}
	s.nextID++
	payment.ID = s.nextID
	s.payments = append(s.payments, payment)
	return true, nil
}

func (s *stubPaymentRepo) GetUnsettled(ctx context.Context, merchantID int64, processor string, periodStart, periodEnd time.Time) ([]*model.Payment, error) {
	var result []*model.Payment
	for _, p := range s.payments {
		if p.MerchantID == merchantID && p.Processor == processor &&
			p.Status == model.PaymentStatusSucceeded &&
			p.SucceededAt.After(periodStart) && !p.SucceededAt.After(periodEnd) &&
			p.SettlementPayoutID == nil {
			result = append(result, p)
		}
	}
	return result, nil
}

func (s *stubPaymentRepo) ClaimForPayout(ctx context.Context, tx *gorm.DB, paymentIDs []int64, payoutID int64) error {
	if s.claimErr != nil {
		return s.claimErr
	}
	for _, id := range paymentIDs {
		for _, p := range s.payments {
			if p.ID == id {
				if p.SettlementPayoutID != nil {
					return repository.ErrPaymentAlreadyClaimed
				}
				pid := payoutID
				p.SettlementPayoutID = &pid
				p.SettlementStatus = model.SettlementStatusPending
			}
		}
	}
	return nil
}

func (s *stubPaymentRepo) MarkSettled(ctx context.Context, tx *gorm.DB, payoutID int64) error {
	for _, p := range s.payments {
		if p.SettlementPayoutID != nil && *p.SettlementPayoutID == payoutID {
			p.SettlementStatus = model.SettlementStatusSettled
		}
	}
	s.settledCalls = append(s.settledCalls, payoutID)
	return nil
}

type stubPayoutRepo struct {
	payouts []*model.Payout
	nextID  int64
}

func (s *stubPayoutRepo) Create(ctx context.Context, tx *gorm.DB, payout *model.Payout) error {
	s.nextID++
	payout.ID = s.nextID
	s.payouts = append(s.payouts, payout)
	return nil
}

func (s *stubPayoutRepo) GetByPayoutNo(ctx context.Context, payoutNo string) (*model.Payout, error) {
	for _, p := range s.payouts {
		if p.PayoutNo == payoutNo {
			return p, nil
		}
	}
	return nil, repository.ErrPayoutNotFound
}

func (s *stubPayoutRepo) GetRetryablePending(ctx context.Context, now time.Time, limit int) ([]*model.Payout, error) {
	var result []*model.Payout
	for _, p := range s.payouts {
		if p.Status == model.PayoutStatusPending &&
			(p.NextRetryDate == nil || !p.NextRetryDate.After(now)) {
			result = append(result, p)
		}
	}
	return result, nil
}

func (s *stubPayoutRepo) GetStaleProcessing(ctx context.Context, before time.Time, limit int) ([]*model.Payout, error) {
	var result []*model.Payout
	for _, p := range s.payouts {
		if p.Status == model.PayoutStatusProcessing && !p.UpdatedAt.After(before) {
			result = append(result, p)
		}
	}
	return result, nil
}

func (s *stubPayoutRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, payoutNo string, fromStatus, toStatus string) error {
	if !model.CanPayoutTransitionTo(fromStatus, toStatus) {
		return repository.ErrPayoutStatusInvalid
	}
	p, err := s.GetByPayoutNo(ctx, payoutNo)
	if err != nil {
		return err
	}
	if p.Status != fromStatus {
		return repository.ErrPayoutStatusInvalid
	}
	p.Status = toStatus
	return nil
}

func (s *stubPayoutRepo) MarkCompleted(ctx context.Context, tx *gorm.DB, payoutNo string, externalRef string, settledAt time.Time) error {
	p, err := s.GetByPayoutNo(ctx, payoutNo)
	if err != nil {
		return err
	}
	if p.Status != model.PayoutStatusProcessing {
		return repository.ErrPayoutStatusInvalid
	}
	p.Status = model.PayoutStatusCompleted
	p.ExternalRef = externalRef
	p.SettledAt = &settledAt
	return nil
}

func (s *stubPayoutRepo) MarkRetry(ctx context.Context, payoutNo string, nextRetryDate time.Time, remark string) error {
	p, err := s.GetByPayoutNo(ctx, payoutNo)
	if err != nil {
		return err
	}
	if p.Status != model.PayoutStatusProcessing {
		return repository.ErrPayoutStatusInvalid
	}
	p.Status = model.PayoutStatusPending
	p.RetryCount++
	p.NextRetryDate = &nextRetryDate
	p.Remark = remark
	return nil
}

func (s *stubPayoutRepo) MarkFailed(ctx context.Context, payoutNo string, remark string) error {
	p, err := s.GetByPayoutNo(ctx, payoutNo)
	if err != nil {
		return err
	}
	if p.Status != model.PayoutStatusProcessing {
		return repository.ErrPayoutStatusInvalid
	}
	p.Status = model.PayoutStatusFailed
	p.RetryCount++
	p.Remark = remark
	return nil
}

func (s *stubPayoutRepo) MarkReconcile(ctx context.Context, payoutNo string, remark string) error {
	p, err := s.GetByPayoutNo(ctx, payoutNo)
	if err != nil {
		return err
	}
	if p.Status != model.PayoutStatusProcessing {
		return repository.ErrPayoutStatusInvalid
	}
	p.Status = model.PayoutStatusReconcile
	p.Remark = remark
	return nil
}

func (s *stubPayoutRepo) Requeue(ctx context.Context, payoutNo string, remark string) error {
	p, err := s.GetByPayoutNo(ctx, payoutNo)
	if err != nil {
		return err
	}
	if p.Status != model.PayoutStatusFailed && p.Status != model.PayoutStatusReconcile {
		return repository.ErrPayoutStatusInvalid
	}
	p.Status = model.PayoutStatusPending
	p.RetryCount = 0
	p.NextRetryDate = nil
	p.Remark = remark
	return nil
}

func (s *stubPayoutRepo) ListByMerchant(ctx context.Context, merchantID int64, page, pageSize int) ([]*model.Payout, int64, error) {
	var result []*model.Payout
	for _, p := range s.payouts {
		if p.MerchantID == merchantID {
			result = append(result, p)
		}
	}
	return result, int64(len(result)), nil
}

type stubMerchantRepo struct {
	merchants map[int64]*model.Merchant
}

func (s *stubMerchantRepo) Create(ctx context.Context, merchant *model.Merchant) error {
	if s.merchants == nil {
		s.merchants = make(map[int64]*model.Merchant)
	}
	merchant.ID = int64(len(s.merchants) + 1)
	s.merchants[merchant.ID] = merchant
	return nil
}

func (s *stubMerchantRepo) GetByID(ctx context.Context, id int64) (*model.Merchant, error) {
	merchant, ok := s.merchants[id]
	if !ok {
		return nil, repository.ErrMerchantNotFound
	}
	return merchant, nil
}

func (s *stubMerchantRepo) UpdateTier(ctx context.Context, id int64, tier string) error {
	merchant, ok := s.merchants[id]
	if !ok {
		return repository.ErrMerchantNotFound
	}
	merchant.SubscriptionTier = tier
	return nil
}

type stubOutboxRepo struct {
	messages []*model.OutboxMessage
}

func (s *stubOutboxRepo) Create(ctx context.Context, tx *gorm.DB, msg *model.OutboxMessage) error {
	s.messages = append(s.messages, msg)
	return nil
}

type stubLocker struct{}

func (s *stubLocker) WithLock(ctx context.Context, scheduleID int64, fn func() error) error {
	return fn()
}

// scriptedProvider 按预设脚本依次返回转账结果
type scriptedProvider struct {
	script []error
	calls  int
}

func (p *scriptedProvider) Transfer(ctx context.Context, req settlement.TransferRequest) (settlement.TransferResult, error) {
	idx := p.calls
	p.calls++
	if idx < len(p.script) && p.script[idx] != nil {
		return settlement.TransferResult{}, p.script[idx]
	}
	return settlement.TransferResult{ExternalRef: fmt.Sprintf("REF-%s-%d", req.IdempotencyKey, idx)}, nil
}

func (p *scriptedProvider) VerifyCredentials(ctx context.Context) error { return nil }

type stubRegistry struct {
	providers map[string]settlement.Provider
}

func (s *stubRegistry) Get(processor string) (settlement.Provider, error) {
	provider, ok := s.providers[processor]
	if !ok {
		return nil, settlement.ErrProviderNotFound
	}
	return provider, nil
}
