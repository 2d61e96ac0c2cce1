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
	ErrScheduleNotFound = errors.New("打款排程不存在")
	ErrScheduleConflict = errors.New("打款排程状态已变化，请重试")
)

type ScheduleRepository struct {
	db *gorm.DB
}

func NewScheduleRepository(db *gorm.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

func (r *ScheduleRepository) GetByID(ctx context.Context, id int64) (*model.PayoutSchedule, error) {
	var schedule model.PayoutSchedule
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&schedule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}
	return &schedule, nil
}

func (r *ScheduleRepository) GetByMerchantProcessor(ctx context.Context, merchantID int64, processor string) (*model.PayoutSchedule, error) {
	var schedule model.PayoutSchedule
	err := r.db.WithContext(ctx).
		Where("merchant_id = ? AND processor = ?", merchantID, processor).
		First(&schedule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}
	return &schedule, nil
}

// GetOrCreate 查询排程，不存在则按默认配置创建
// 通过 (merchant_id, processor) 唯一索引 + OnConflict DoNothing 保证并发创建只有一行生效
func (r *ScheduleRepository) GetOrCreate(ctx context.Context, tx *gorm.DB, schedule *model.PayoutSchedule) (*model.PayoutSchedule, error) {
	if tx == nil {
		tx = r.db
	}

	existing, err := r.GetByMerchantProcessor(ctx, schedule.MerchantID, schedule.Processor)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrScheduleNotFound) {
		return nil, err
	}

	err = tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "merchant_id"}, {Name: "processor"}},
			DoNothing: true,
		}).
		Create(schedule).Error
	if err != nil {
		return nil, err
	}

	return r.GetByMerchantProcessor(ctx, schedule.MerchantID, schedule.Processor)
}

// IncrementBalance 未结算余额原子累加
// 必须走 SQL 表达式累加而不是读-改-写，支付成功事件和打款生成是并发的
func (r *ScheduleRepository) IncrementBalance(ctx context.Context, tx *gorm.DB, scheduleID int64, delta int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.PayoutSchedule{}).
		Where("id = ?", scheduleID).
		UpdateColumn("current_balance", gorm.Expr("current_balance + ?", delta))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

// GetDueSchedules 查询到期待打款的排程（未人工冻结且 next_payout_date 已过）
func (r *ScheduleRepository) GetDueSchedules(ctx context.Context, now time.Time, limit int) ([]*model.PayoutSchedule, error) {
	var schedules []*model.PayoutSchedule
	err := r.db.WithContext(ctx).
		Where("is_manually_held = ? AND next_payout_date <= ?", false, now).
		Order("next_payout_date ASC").
		Limit(limit).
		Find(&schedules).Error
	return schedules, err
}

// SettleBalance 生成打款单时的排程结转：清零余额、记录打款时间、推进下次打款日期、
// 持久化月度 GMV 桶，必须与打款单创建同一事务
func (r *ScheduleRepository) SettleBalance(ctx context.Context, tx *gorm.DB, schedule *model.PayoutSchedule, now time.Time, nextDate time.Time) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.PayoutSchedule{}).
		Where("id = ?", schedule.ID).
		Updates(map[string]interface{}{
			"current_balance":   0,
			"last_payout_at":    now,
			"next_payout_date":  nextDate,
			"gmv_month":         schedule.GMVMonth,
			"month_gmv":         schedule.MonthGMV,
			"discount_eligible": schedule.DiscountEligible,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrScheduleConflict
	}
	return nil
}

// UpdateConfig 更新排程配置
func (r *ScheduleRepository) UpdateConfig(ctx context.Context, scheduleID int64, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&model.PayoutSchedule{}).
		Where("id = ?", scheduleID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrScheduleNotFound
	}
	return nil
}
