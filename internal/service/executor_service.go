package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"payoutengine/internal/config"
	"payoutengine/internal/infrastructure/settlement"
	"payoutengine/internal/model"
	"payoutengine/internal/repository"

	"gorm.io/gorm"
)

// ExecutorService 打款执行器
// 驱动打款单状态机：PENDING -> PROCESSING -> {COMPLETED, FAILED, RECONCILE}，
// 失败在重试上限内回到 PENDING 等下一轮调度，从不在本轮内同步重试
type ExecutorService struct {
	txer         Txer
	payoutRepo   PayoutRepo
	paymentRepo  PaymentRepo
	merchantRepo MerchantRepo
	outboxRepo   OutboxRepo
	providers    ProviderRegistry
	cfg          *config.Config
	now          func() time.Time
}

func NewExecutorService(
	txer Txer,
	payoutRepo PayoutRepo,
	paymentRepo PaymentRepo,
	merchantRepo MerchantRepo,
	outboxRepo OutboxRepo,
	providers ProviderRegistry,
	cfg *config.Config,
) *ExecutorService {
	return &ExecutorService{
		txer:         txer,
		payoutRepo:   payoutRepo,
		paymentRepo:  paymentRepo,
		merchantRepo: merchantRepo,
		outboxRepo:   outboxRepo,
		providers:    providers,
		cfg:          cfg,
		now:          time.Now,
	}
}

// ProcessPendingPayouts 扫描一轮可执行的打款单，返回本轮打款成功的数量
func (s *ExecutorService) ProcessPendingPayouts(ctx context.Context) (int, error) {
	payouts, err := s.payoutRepo.GetRetryablePending(ctx, s.now(), s.cfg.Payout.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("查询待打款单失败: %w", err)
	}

	completed := 0
	for _, payout := range payouts {
		ok, err := s.ProcessPayout(ctx, payout)
		if err != nil {
			log.Printf("[Executor] 打款处理失败: payoutNo=%s, err=%v", payout.PayoutNo, err)
			continue
		}
		if ok {
			completed++
		}
	}
	return completed, nil
}

// ProcessPayout 执行单个打款单，返回本次是否打款成功
//
// 【关键点】
//  1. PENDING -> PROCESSING 的条件更新就是抢占，抢不到说明别的实例在处理
//  2. 幂等键用打款单号，渠道侧据此去重
//  3. 结果未知（超时等）不等于失败：渠道可能已经转账成功，自动重试有
//     双重打款风险，转入 RECONCILE 等人工对账
func (s *ExecutorService) ProcessPayout(ctx context.Context, payout *model.Payout) (bool, error) {
	err := s.payoutRepo.UpdateStatus(ctx, nil, payout.PayoutNo, model.PayoutStatusPending, model.PayoutStatusProcessing)
	if err != nil {
		if errors.Is(err, repository.ErrPayoutStatusInvalid) {
			// 已被其他执行者抢占，不算错误
			return false, nil
		}
		return false, err
	}

	merchant, err := s.merchantRepo.GetByID(ctx, payout.MerchantID)
	if err != nil {
		// 商户配置缺失属于部署缺陷，重试无意义，直接终态失败
		return false, s.payoutRepo.MarkFailed(ctx, payout.PayoutNo, fmt.Sprintf("商户配置缺失: %v", err))
	}

	provider, err := s.providers.Get(payout.Processor)
	if err != nil {
		return false, s.payoutRepo.MarkFailed(ctx, payout.PayoutNo, fmt.Sprintf("渠道适配器缺失: %v", err))
	}

	transferCtx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.Payout.SettleTimeoutSeconds)*time.Second)
	defer cancel()

	result, err := provider.Transfer(transferCtx, settlement.TransferRequest{
		IdempotencyKey: payout.PayoutNo,
		Amount:         payout.Net,
		Destination:    merchant.PayoutAccount,
	})
	if err != nil {
		return false, s.handleTransferError(ctx, payout, err)
	}

	if err := s.complete(ctx, payout, merchant, result.ExternalRef); err != nil {
		return false, err
	}
	return true, nil
}

func (s *ExecutorService) handleTransferError(ctx context.Context, payout *model.Payout, transferErr error) error {
	if errors.Is(transferErr, settlement.ErrOutcomeUnknown) ||
		errors.Is(transferErr, context.DeadlineExceeded) {
		log.Printf("[Executor] 转账结果未知，转人工对账: payoutNo=%s, err=%v", payout.PayoutNo, transferErr)
		return s.payoutRepo.MarkReconcile(ctx, payout.PayoutNo, fmt.Sprintf("转账结果未知: %v", transferErr))
	}

	retryCount := payout.RetryCount + 1
	if retryCount < s.cfg.Payout.MaxRetryCount {
		nextRetry := s.now().Add(time.Duration(s.cfg.Payout.RetryDelayHours) * time.Hour)
		log.Printf("[Executor] 打款失败，安排重试: payoutNo=%s, retryCount=%d, nextRetry=%s, err=%v",
			payout.PayoutNo, retryCount, nextRetry.Format(time.RFC3339), transferErr)
		return s.payoutRepo.MarkRetry(ctx, payout.PayoutNo, nextRetry, fmt.Sprintf("打款失败: %v", transferErr))
	}

	log.Printf("[Executor] 打款重试耗尽，终态失败: payoutNo=%s, retryCount=%d, err=%v",
		payout.PayoutNo, retryCount, transferErr)
	return s.payoutRepo.MarkFailed(ctx, payout.PayoutNo, fmt.Sprintf("重试耗尽: %v", transferErr))
}

func (s *ExecutorService) complete(ctx context.Context, payout *model.Payout, merchant *model.Merchant, externalRef string) error {
	settledAt := s.now()

	err := s.txer.Transaction(func(tx *gorm.DB) error {
		if err := s.payoutRepo.MarkCompleted(ctx, tx, payout.PayoutNo, externalRef, settledAt); err != nil {
			return fmt.Errorf("更新打款单状态失败: %w", err)
		}

		if err := s.paymentRepo.MarkSettled(ctx, tx, payout.ID); err != nil {
			return fmt.Errorf("更新支付结算状态失败: %w", err)
		}

		// 打款完成通知走本地消息表异步投递，投递失败不影响打款单
		payloadBytes, _ := json.Marshal(map[string]interface{}{
			"payout_no":    payout.PayoutNo,
			"merchant_id":  payout.MerchantID,
			"processor":    payout.Processor,
			"net":          payout.Net,
			"external_ref": externalRef,
			"settled_at":   settledAt.Format(time.RFC3339),
		})
		outboxMsg := &model.OutboxMessage{
			MessageKey: payout.PayoutNo,
			Topic:      s.cfg.Kafka.Topic.PayoutNotice,
			Payload:    string(payloadBytes),
			Status:     model.OutboxStatusPending,
		}
		if err := s.outboxRepo.Create(ctx, tx, outboxMsg); err != nil {
			return fmt.Errorf("写入通知消息失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Printf("[Executor] 打款成功: payoutNo=%s, merchantID=%d, net=%d, externalRef=%s",
		payout.PayoutNo, merchant.ID, payout.Net, externalRef)
	return nil
}

// ReconcileStaleProcessing 把滞留超时的 PROCESSING 打款单转入人工对账
//
// 执行者在转账调用之后、完成落库之前崩溃，会留下永远无人认领的
// PROCESSING 单据。渠道侧可能已经转账成功，不能自动重打，统一转
// RECONCILE 由人工对账后决定重新排队还是补录
func (s *ExecutorService) ReconcileStaleProcessing(ctx context.Context) (int, error) {
	staleMinutes := s.cfg.Payout.StaleProcessingMinutes
	if staleMinutes <= 0 {
		staleMinutes = 30
	}
	before := s.now().Add(-time.Duration(staleMinutes) * time.Minute)

	payouts, err := s.payoutRepo.GetStaleProcessing(ctx, before, s.cfg.Payout.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("查询滞留打款单失败: %w", err)
	}

	swept := 0
	for _, payout := range payouts {
		err := s.payoutRepo.MarkReconcile(ctx, payout.PayoutNo,
			fmt.Sprintf("PROCESSING 滞留超过 %d 分钟，转人工对账", staleMinutes))
		if err != nil {
			// 状态已被推进说明执行者还活着，跳过即可
			if errors.Is(err, repository.ErrPayoutStatusInvalid) {
				continue
			}
			log.Printf("[Executor] 滞留打款单转对账失败: payoutNo=%s, err=%v", payout.PayoutNo, err)
			continue
		}
		log.Printf("[Executor] 滞留打款单已转人工对账: payoutNo=%s", payout.PayoutNo)
		swept++
	}
	return swept, nil
}

// RequeuePayout 人工对账确认渠道未转账后，把终态失败/待对账的打款单重新排队
func (s *ExecutorService) RequeuePayout(ctx context.Context, payoutNo string, remark string) error {
	payout, err := s.payoutRepo.GetByPayoutNo(ctx, payoutNo)
	if err != nil {
		return err
	}
	if payout.Status != model.PayoutStatusFailed && payout.Status != model.PayoutStatusReconcile {
		return fmt.Errorf("%w: 当前状态 %s 不允许重新排队", repository.ErrPayoutStatusInvalid, payout.Status)
	}
	return s.payoutRepo.Requeue(ctx, payoutNo, remark)
}
