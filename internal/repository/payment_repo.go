package repository

import (
	"context"
	"errors"
	"time"

	"payoutengine/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrPaymentAlreadyClaimed = errors.New("存在已被认领的支付记录")
	ErrPaymentNotFound       = errors.New("支付记录不存在")
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// InsertIgnoreDuplicate 幂等落库，按 payment_no 去重
// 返回是否真正插入了新行；事件重复投递时返回 false，调用方据此跳过余额累加
func (r *PaymentRepository) InsertIgnoreDuplicate(ctx context.Context, tx *gorm.DB, payment *model.Payment) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "payment_no"}},
			DoNothing: true,
		}).
		Create(payment)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *PaymentRepository) GetByPaymentNo(ctx context.Context, paymentNo string) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.WithContext(ctx).Where("payment_no = ?", paymentNo).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

// GetUnsettled 查询账期 (periodStart, periodEnd] 内未结算的成功支付，按入账顺序返回
func (r *PaymentRepository) GetUnsettled(ctx context.Context, merchantID int64, processor string, periodStart, periodEnd time.Time) ([]*model.Payment, error) {
	var payments []*model.Payment
	err := r.db.WithContext(ctx).
		Where("merchant_id = ? AND processor = ? AND status = ? AND succeeded_at > ? AND succeeded_at <= ? AND settlement_payout_id IS NULL",
			merchantID, processor, model.PaymentStatusSucceeded, periodStart, periodEnd).
		Order("succeeded_at ASC, id ASC").
		Find(&payments).Error
	return payments, err
}

// ClaimForPayout 把一批支付记录认领到打款单名下
//
// 【关键点】WHERE 带 settlement_payout_id IS NULL 条件，已被其他打款单认领的行
// 不会被更新；影响行数与期望不符说明存在并发认领，调用方必须回滚整个事务。
// 结算指针只此一处置位，这是"一笔支付至多进入一个打款单"的唯一保障
func (r *PaymentRepository) ClaimForPayout(ctx context.Context, tx *gorm.DB, paymentIDs []int64, payoutID int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Payment{}).
		Where("id IN ? AND settlement_payout_id IS NULL", paymentIDs).
		Updates(map[string]interface{}{
			"settlement_payout_id": payoutID,
			"settlement_status":    model.SettlementStatusPending,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != int64(len(paymentIDs)) {
		return ErrPaymentAlreadyClaimed
	}
	return nil
}

// MarkSettled 打款成功后把所含支付记录的结算状态置为 SETTLED
func (r *PaymentRepository) MarkSettled(ctx context.Context, tx *gorm.DB, payoutID int64) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.Payment{}).
		Where("settlement_payout_id = ?", payoutID).
		Update("settlement_status", model.SettlementStatusSettled).Error
}
