package repository

import (
	"context"
	"errors"
	"time"

	"payoutengine/internal/model"

	"gorm.io/gorm"
)

var (
	ErrPayoutNotFound      = errors.New("打款单不存在")
	ErrPayoutStatusInvalid = errors.New("打款单状态不合法")
)

type PayoutRepository struct {
	db *gorm.DB
}

func NewPayoutRepository(db *gorm.DB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

func (r *PayoutRepository) Create(ctx context.Context, tx *gorm.DB, payout *model.Payout) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(payout).Error
}

func (r *PayoutRepository) GetByPayoutNo(ctx context.Context, payoutNo string) (*model.Payout, error) {
	var payout model.Payout
	err := r.db.WithContext(ctx).Where("payout_no = ?", payoutNo).First(&payout).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPayoutNotFound
		}
		return nil, err
	}
	return &payout, nil
}

// GetRetryablePending 查询可执行的待打款单：PENDING 且重试时间已到（或无重试时间）
func (r *PayoutRepository) GetRetryablePending(ctx context.Context, now time.Time, limit int) ([]*model.Payout, error) {
	var payouts []*model.Payout
	err := r.db.WithContext(ctx).
		Where("status = ? AND (next_retry_date IS NULL OR next_retry_date <= ?)", model.PayoutStatusPending, now).
		Order("created_at ASC").
		Limit(limit).
		Find(&payouts).Error
	return payouts, err
}

// GetStaleProcessing 查询长时间滞留在 PROCESSING 的打款单
// 正常的执行流程要么推进到终态要么回到 PENDING，滞留说明执行者在
// 转账调用与落库之间崩溃过
func (r *PayoutRepository) GetStaleProcessing(ctx context.Context, before time.Time, limit int) ([]*model.Payout, error) {
	var payouts []*model.Payout
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at <= ?", model.PayoutStatusProcessing, before).
		Order("updated_at ASC").
		Limit(limit).
		Find(&payouts).Error
	return payouts, err
}

// UpdateStatus 条件更新状态，WHERE 带原状态作为并发防护
// 影响行数为 0 说明状态已被其他执行者推进，调用方据此放弃本次处理
func (r *PayoutRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, payoutNo string, fromStatus, toStatus string) error {
	if !model.CanPayoutTransitionTo(fromStatus, toStatus) {
		return ErrPayoutStatusInvalid
	}
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Payout{}).
		Where("payout_no = ? AND status = ?", payoutNo, fromStatus).
		Update("status", toStatus)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPayoutStatusInvalid
	}
	return nil
}

// MarkCompleted 打款成功：记录渠道凭证号和结算时间
func (r *PayoutRepository) MarkCompleted(ctx context.Context, tx *gorm.DB, payoutNo string, externalRef string, settledAt time.Time) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Payout{}).
		Where("payout_no = ? AND status = ?", payoutNo, model.PayoutStatusProcessing).
		Updates(map[string]interface{}{
			"status":       model.PayoutStatusCompleted,
			"external_ref": externalRef,
			"settled_at":   settledAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPayoutStatusInvalid
	}
	return nil
}

// MarkRetry 打款失败但未超重试上限：递增重试计数，回到 PENDING 等下一轮调度
func (r *PayoutRepository) MarkRetry(ctx context.Context, payoutNo string, nextRetryDate time.Time, remark string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Payout{}).
		Where("payout_no = ? AND status = ?", payoutNo, model.PayoutStatusProcessing).
		Updates(map[string]interface{}{
			"status":          model.PayoutStatusPending,
			"retry_count":     gorm.Expr("retry_count + 1"),
			"next_retry_date": nextRetryDate,
			"remark":          remark,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPayoutStatusInvalid
	}
	return nil
}

// MarkFailed 重试耗尽，终态失败，等待人工介入
func (r *PayoutRepository) MarkFailed(ctx context.Context, payoutNo string, remark string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Payout{}).
		Where("payout_no = ? AND status = ?", payoutNo, model.PayoutStatusProcessing).
		Updates(map[string]interface{}{
			"status":      model.PayoutStatusFailed,
			"retry_count": gorm.Expr("retry_count + 1"),
			"remark":      remark,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPayoutStatusInvalid
	}
	return nil
}

// MarkReconcile 打款结果未知（超时等），转入人工对账，不再自动重试
func (r *PayoutRepository) MarkReconcile(ctx context.Context, payoutNo string, remark string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Payout{}).
		Where("payout_no = ? AND status = ?", payoutNo, model.PayoutStatusProcessing).
		Updates(map[string]interface{}{
			"status": model.PayoutStatusReconcile,
			"remark": remark,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPayoutStatusInvalid
	}
	return nil
}

// Requeue 人工对账确认未转账后，把 FAILED / RECONCILE 的打款单重新排队
func (r *PayoutRepository) Requeue(ctx context.Context, payoutNo string, remark string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Payout{}).
		Where("payout_no = ? AND status IN ?", payoutNo, []string{model.PayoutStatusFailed, model.PayoutStatusReconcile}).
		Updates(map[string]interface{}{
			"status":          model.PayoutStatusPending,
			"retry_count":     0,
			"next_retry_date": nil,
			"remark":          remark,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPayoutStatusInvalid
	}
	return nil
}

func (r *PayoutRepository) ListByMerchant(ctx context.Context, merchantID int64, page, pageSize int) ([]*model.Payout, int64, error) {
	var payouts []*model.Payout
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Payout{}).Where("merchant_id = ?", merchantID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&payouts).Error

	return payouts, total, err
}
