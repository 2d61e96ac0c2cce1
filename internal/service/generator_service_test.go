package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"payoutengine/internal/config"
	"payoutengine/internal/model"
	"payoutengine/internal/repository"
)

func testConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{
				PaymentResult: "payment_result",
				PayoutNotice:  "payout_notice",
			},
		},
		Payout: config.PayoutConfig{
			MaxRetryCount:          3,
			RetryDelayHours:        24,
			SettleTimeoutSeconds:   5,
			BatchSize:              100,
			StaleProcessingMinutes: 30,
		},
	}
}

type generatorFixture struct {
	generator    *GeneratorService
	scheduleRepo *stubScheduleRepo
	paymentRepo  *stubPaymentRepo
	payoutRepo   *stubPayoutRepo
	merchantRepo *stubMerchantRepo
}

func newGeneratorFixture(now time.Time) *generatorFixture {
	scheduleRepo := &stubScheduleRepo{}
	paymentRepo := &stubPaymentRepo{}
	payoutRepo := &stubPayoutRepo{}
	merchantRepo := &stubMerchantRepo{merchants: map[int64]*model.Merchant{}}

	generator := NewGeneratorService(&stubTxer{}, scheduleRepo, paymentRepo, payoutRepo, merchantRepo, &stubLocker{}, testConfig())
	generator.now = func() time.Time { return now }

	return &generatorFixture{
		generator:    generator,
		scheduleRepo: scheduleRepo,
		paymentRepo:  paymentRepo,
		payoutRepo:   payoutRepo,
		merchantRepo: merchantRepo,
	}
}

func (f *generatorFixture) addMerchant(id int64, tier string) {
	f.merchantRepo.merchants[id] = &model.Merchant{
		ID:               id,
		Name:             "测试商户",
		SubscriptionTier: tier,
		PayoutAccount:    "acct_test",
		Status:           model.MerchantStatusActive,
	}
}

func (f *generatorFixture) addSchedule(s *model.PayoutSchedule) *model.PayoutSchedule {
	f.scheduleRepo.nextID++
	s.ID = f.scheduleRepo.nextID
	f.scheduleRepo.schedules = append(f.scheduleRepo.schedules, s)
	return s
}

func (f *generatorFixture) addPayment(merchantID int64, processor string, amount, fee int64, succeededAt time.Time) *model.Payment {
	f.paymentRepo.nextID++
	p := &model.Payment{
		ID:           f.paymentRepo.nextID,
		PaymentNo:    time.Now().Format("150405.000000000") + processor,
		MerchantID:   merchantID,
		Processor:    processor,
		Amount:       amount,
		ProcessorFee: fee,
		Status:       model.PaymentStatusSucceeded,
		SucceededAt:  succeededAt,
	}
	f.paymentRepo.payments = append(f.paymentRepo.payments, p)
	return p
}

func TestGenerate_FeeExample(t *testing.T) {
	// gross=100000, 渠道手续费=2000, PRO 套餐账期一天 => 订阅费 663, 净额 97337
	now := time.Date(2024, 7, 10, 12, 0, 0, 0, time.UTC)
	f := newGeneratorFixture(now)
	f.addMerchant(1, model.TierPro)

	last := now.Add(-24 * time.Hour)
	f.addSchedule(&model.PayoutSchedule{
		MerchantID:     1,
		Processor:      model.ProcessorStripe,
		Frequency:      model.FrequencyDaily,
		MinThreshold:   50000,
		MaxHoldDays:    7,
		CurrentBalance: 98000,
		LastPayoutAt:   &last,
		NextPayoutDate: now.Add(-time.Hour),
		GMVMonth:       "2024-07",
	})
	f.addPayment(1, model.ProcessorStripe, 100000, 2000, now.Add(-2*time.Hour))

	generated, err := f.generator.GenerateScheduledPayouts(context.Background())
	if err != nil {
		t.Fatalf("生成失败: %v", err)
	}
	if generated != 1 {
		t.Fatalf("期望生成 1 个打款单, 实际 %d", generated)
	}

	payout := f.payoutRepo.payouts[0]
	if payout.Gross != 100000 || payout.ProcessorFee != 2000 {
		t.Fatalf("金额汇总错误: gross=%d, fee=%d", payout.Gross, payout.ProcessorFee)
	}
	if payout.SubscriptionFee != 663 {
		t.Fatalf("期望订阅费 663, 实际 %d", payout.SubscriptionFee)
	}
	if payout.VolumeDiscount != 0 {
		t.Fatalf("期望无折扣, 实际 %d", payout.VolumeDiscount)
	}
	if payout.Net != 97337 {
		t.Fatalf("期望净额 97337, 实际 %d", payout.Net)
	}
	if payout.Status != model.PayoutStatusPending {
		t.Fatalf("新打款单应为 PENDING, 实际 %s", payout.Status)
	}
}

func TestGenerate_HoldBypass(t *testing.T) {
	// 余额 30000 低于门槛 50000，但距上次打款已 8 天超过最长压款 7 天，必须出账
	now := time.Date(2024, 7, 10, 12, 0, 0, 0, time.UTC)
	f := newGeneratorFixture(now)
	f.addMerchant(1, model.TierFree)

	last := now.Add(-8 * 24 * time.Hour)
	f.addSchedule(&model.PayoutSchedule{
		MerchantID:     1,
		Processor:      model.ProcessorRazorpay,
		Frequency:      model.FrequencyWeekly,
		WeeklyDay:      int(time.Monday),
		MinThreshold:   50000,
		MaxHoldDays:    7,
		CurrentBalance: 30000,
		LastPayoutAt:   &last,
		NextPayoutDate: now.Add(-24 * time.Hour),
	})
	f.addPayment(1, model.ProcessorRazorpay, 30000, 0, now.Add(-3*24*time.Hour))

	generated, err := f.generator.GenerateScheduledPayouts(context.Background())
	if err != nil {
		t.Fatalf("生成失败: %v", err)
	}
	if generated != 1 {
		t.Fatalf("压款超限应强制出账, 实际生成 %d", generated)
	}
}

func TestGenerate_BelowThresholdSkips(t *testing.T) {
	now := time.Date(2024, 7, 10, 12, 0, 0, 0, time.UTC)
	f := newGeneratorFixture(now)
	f.addMerchant(1, model.TierFree)

	last := now.Add(-2 * 24 * time.Hour)
	sched := f.addSchedule(&model.PayoutSchedule{
		MerchantID:     1,
		Processor:      model.ProcessorStripe,
		Frequency:      model.FrequencyDaily,
		MinThreshold:   50000,
		MaxHoldDays:    7,
		CurrentBalance: 30000,
		LastPayoutAt:   &last,
		NextPayoutDate: now.Add(-time.Hour),
	})
	f.addPayment(1, model.ProcessorStripe, 30000, 0, now.Add(-time.Hour*30))

	generated, err := f.generator.GenerateScheduledPayouts(context.Background())
	if err != nil {
		t.Fatalf("生成失败: %v", err)
	}
	if generated != 0 {
		t.Fatalf("未达起付条件不应出账, 实际生成 %d", generated)
	}
	// 没出账的排程余额必须原封不动
	if sched.CurrentBalance != 30000 {
		t.Fatalf("余额不应变化: %d", sched.CurrentBalance)
	}
	if f.scheduleRepo.settleCalls != 0 {
		t.Fatalf("不应发生排程结转: %d", f.scheduleRepo.settleCalls)
	}
}

func TestGenerate_ManualHoldSkips(t *testing.T) {
	now := time.Date(2024, 7, 10, 12, 0, 0, 0, time.UTC)
	f := newGeneratorFixture(now)
	f.addMerchant(1, model.TierFree)

	f.addSchedule(&model.PayoutSchedule{
		MerchantID:     1,
		Processor:      model.ProcessorStripe,
		Frequency:      model.FrequencyDaily,
		MinThreshold:   10000,
		MaxHoldDays:    7,
		CurrentBalance: 99999,
		IsManuallyHeld: true,
		NextPayoutDate: now.Add(-time.Hour),
	})

	generated, err := f.generator.GenerateScheduledPayouts(context.Background())
	if err != nil {
		t.Fatalf("生成失败: %v", err)
	}
	if generated != 0 {
		t.Fatalf("人工冻结的排程不应出账, 实际生成 %d", generated)
	}
}

func TestGenerate_AtMostOnceClaim(t *testing.T) {
	// 同一批支付连续跑两轮生成，第二轮必须一无所获
	now := time.Date(2024, 7, 10, 12, 0, 0, 0, time.UTC)
	f := newGeneratorFixture(now)
	f.addMerchant(1, model.TierFree)

	sched := f.addSchedule(&model.PayoutSchedule{
		MerchantID:     1,
		Processor:      model.ProcessorStripe,
		Frequency:      model.FrequencyDaily,
		MinThreshold:   10000,
		MaxHoldDays:    7,
		CurrentBalance: 60000,
		NextPayoutDate: now.Add(-time.Hour),
		CreatedAt:      now.Add(-10 * 24 * time.Hour),
	})
	p1 := f.addPayment(1, model.ProcessorStripe, 40000, 400, now.Add(-2*time.Hour))
	p2 := f.addPayment(1, model.ProcessorStripe, 20000, 200, now.Add(-time.Hour))

	generated, err := f.generator.GenerateScheduledPayouts(context.Background())
	if err != nil || generated != 1 {
		t.Fatalf("第一轮应生成 1 个: generated=%d, err=%v", generated, err)
	}

	// 结转后排程不再到期；强行把到期时间拨回去模拟重复扫描
	sched.NextPayoutDate = now.Add(-time.Hour)
	generated, err = f.generator.GenerateScheduledPayouts(context.Background())
	if err != nil {
		t.Fatalf("第二轮失败: %v", err)
	}
	if generated != 0 || len(f.payoutRepo.payouts) != 1 {
		t.Fatalf("同一批支付绝不允许二次出账: generated=%d, payouts=%d", generated, len(f.payoutRepo.payouts))
	}

	if p1.SettlementPayoutID == nil || p2.SettlementPayoutID == nil {
		t.Fatal("支付记录的结算指针应已置位")
	}
	if *p1.SettlementPayoutID != f.payoutRepo.payouts[0].ID {
		t.Fatalf("结算指针指向错误: %d", *p1.SettlementPayoutID)
	}

	// 出账后的排程余额清零，账期推进
	if sched.CurrentBalance != 0 {
		t.Fatalf("出账后余额应清零: %d", sched.CurrentBalance)
	}
	if sched.LastPayoutAt == nil || !sched.LastPayoutAt.Equal(now) {
		t.Fatalf("last_payout_at 未更新: %v", sched.LastPayoutAt)
	}
}

func TestGenerate_ClaimConflictRollsBack(t *testing.T) {
	// 选取和认领之间被并发认领，认领失败必须让整个事务失败，不做排程结转
	now := time.Date(2024, 7, 10, 12, 0, 0, 0, time.UTC)
	f := newGeneratorFixture(now)
	f.addMerchant(1, model.TierFree)

	f.addSchedule(&model.PayoutSchedule{
		MerchantID:     1,
		Processor:      model.ProcessorStripe,
		Frequency:      model.FrequencyDaily,
		MinThreshold:   10000,
		MaxHoldDays:    7,
		CurrentBalance: 60000,
		NextPayoutDate: now.Add(-time.Hour),
		CreatedAt:      now.Add(-10 * 24 * time.Hour),
	})
	f.addPayment(1, model.ProcessorStripe, 60000, 0, now.Add(-time.Hour))
	f.paymentRepo.claimErr = repository.ErrPaymentAlreadyClaimed

	generated, err := f.generator.GenerateScheduledPayouts(context.Background())
	if err != nil {
		t.Fatalf("整轮扫描不应报错: %v", err)
	}
	if generated != 0 {
		t.Fatalf("认领冲突不应计入生成数: %d", generated)
	}
	if f.scheduleRepo.settleCalls != 0 {
		t.Fatal("认领失败后不允许做排程结转")
	}
}

func TestGenerate_MerchantMissingIsConfigDefect(t *testing.T) {
	now := time.Date(2024, 7, 10, 12, 0, 0, 0, time.UTC)
	f := newGeneratorFixture(now)
	// 故意不建商户

	f.addSchedule(&model.PayoutSchedule{
		MerchantID:     42,
		Processor:      model.ProcessorStripe,
		Frequency:      model.FrequencyDaily,
		MinThreshold:   10000,
		MaxHoldDays:    7,
		CurrentBalance: 60000,
		NextPayoutDate: now.Add(-time.Hour),
		CreatedAt:      now.Add(-10 * 24 * time.Hour),
	})

	_, err := f.generator.generateForSchedule(context.Background(), 1)
	if !errors.Is(err, ErrMerchantConfigDefect) {
		t.Fatalf("期望配置缺陷错误, 实际 %v", err)
	}
	if f.scheduleRepo.settleCalls != 0 || len(f.payoutRepo.payouts) != 0 {
		t.Fatal("配置缺陷不允许产生任何写入")
	}
}

func TestGenerate_VolumeDiscountApplied(t *testing.T) {
	now := time.Date(2024, 7, 10, 12, 0, 0, 0, time.UTC)
	f := newGeneratorFixture(now)
	f.addMerchant(1, model.TierFree)

	sched := f.addSchedule(&model.PayoutSchedule{
		MerchantID:     1,
		Processor:      model.ProcessorStripe,
		Frequency:      model.FrequencyDaily,
		MinThreshold:   10000,
		MaxHoldDays:    7,
		CurrentBalance: 200000,
		NextPayoutDate: now.Add(-time.Hour),
		CreatedAt:      now.Add(-10 * 24 * time.Hour),
		GMVMonth:       "2024-07",
		MonthGMV:       9900000,
	})
	f.addPayment(1, model.ProcessorStripe, 200000, 2000, now.Add(-time.Hour))

	generated, err := f.generator.GenerateScheduledPayouts(context.Background())
	if err != nil || generated != 1 {
		t.Fatalf("生成失败: generated=%d, err=%v", generated, err)
	}

	payout := f.payoutRepo.payouts[0]
	if payout.VolumeDiscount != 1000 { // round(200000 * 0.5%)
		t.Fatalf("期望折扣 1000, 实际 %d", payout.VolumeDiscount)
	}
	if payout.Net != 200000-2000-0+1000 {
		t.Fatalf("净额错误: %d", payout.Net)
	}
	// GMV 桶跟随结转持久化
	if sched.MonthGMV != 10100000 || !sched.DiscountEligible {
		t.Fatalf("GMV 桶未结转: gmv=%d, eligible=%v", sched.MonthGMV, sched.DiscountEligible)
	}
}
