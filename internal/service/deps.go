package service

import (
	"context"
	"database/sql"
	"time"

	"payoutengine/internal/infrastructure/settlement"
	"payoutengine/internal/model"

	"gorm.io/gorm"
)

// 服务层只依赖接口，仓储实现和事务边界由入口处注入，
// 测试里用桩实现替换，不需要真实数据库
//
// Txer 由 *gorm.DB 直接满足
type Txer interface {
	Transaction(fc func(tx *gorm.DB) error, opts ...*sql.TxOptions) error
}

type ScheduleRepo interface {
	GetByID(ctx context.Context, id int64) (*model.PayoutSchedule, error)
	GetByMerchantProcessor(ctx context.Context, merchantID int64, processor string) (*model.PayoutSchedule, error)
	GetOrCreate(ctx context.Context, tx *gorm.DB, schedule *model.PayoutSchedule) (*model.PayoutSchedule, error)
	IncrementBalance(ctx context.Context, tx *gorm.DB, scheduleID int64, delta int64) error
	GetDueSchedules(ctx context.Context, now time.Time, limit int) ([]*model.PayoutSchedule, error)
	SettleBalance(ctx context.Context, tx *gorm.DB, schedule *model.PayoutSchedule, now time.Time, nextDate time.Time) error
	UpdateConfig(ctx context.Context, scheduleID int64, updates map[string]interface{}) error
}

type PaymentRepo interface {
	InsertIgnoreDuplicate(ctx context.Context, tx *gorm.DB, payment *model.Payment) (bool, error)
	GetUnsettled(ctx context.Context, merchantID int64, processor string, periodStart, periodEnd time.Time) ([]*model.Payment, error)
	ClaimForPayout(ctx context.Context, tx *gorm.DB, paymentIDs []int64, payoutID int64) error
	MarkSettled(ctx context.Context, tx *gorm.DB, payoutID int64) error
}

type PayoutRepo interface {
	Create(ctx context.Context, tx *gorm.DB, payout *model.Payout) error
	GetByPayoutNo(ctx context.Context, payoutNo string) (*model.Payout, error)
	GetRetryablePending(ctx context.Context, now time.Time, limit int) ([]*model.Payout, error)
	GetStaleProcessing(ctx context.Context, before time.Time, limit int) ([]*model.Payout, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, payoutNo string, fromStatus, toStatus string) error
	MarkCompleted(ctx context.Context, tx *gorm.DB, payoutNo string, externalRef string, settledAt time.Time) error
	MarkRetry(ctx context.Context, payoutNo string, nextRetryDate time.Time, remark string) error
	MarkFailed(ctx context.Context, payoutNo string, remark string) error
	MarkReconcile(ctx context.Context, payoutNo string, remark string) error
	Requeue(ctx context.Context, payoutNo string, remark string) error
	ListByMerchant(ctx context.Context, merchantID int64, page, pageSize int) ([]*model.Payout, int64, error)
}

type MerchantRepo interface {
	Create(ctx context.Context, merchant *model.Merchant) error
	GetByID(ctx context.Context, id int64) (*model.Merchant, error)
	UpdateTier(ctx context.Context, id int64, tier string) error
}

type OutboxRepo interface {
	Create(ctx context.Context, tx *gorm.DB, msg *model.OutboxMessage) error
}

// ScheduleLocker 排程粒度的分布式锁，用于在多实例部署时收敛同一排程的生成扫描
type ScheduleLocker interface {
	WithLock(ctx context.Context, scheduleID int64, fn func() error) error
}

// ProviderRegistry 按渠道取打款适配器
type ProviderRegistry interface {
	Get(processor string) (settlement.Provider, error)
}
