package model

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	PayoutStatusPending    = "PENDING"
	PayoutStatusProcessing = "PROCESSING"
	PayoutStatusCompleted  = "COMPLETED"
	PayoutStatusFailed     = "FAILED"
	PayoutStatusReconcile  = "RECONCILE" // 打款结果未知，等待人工对账，不自动重试
)

var ValidPayoutTransitions = map[string][]string{
	PayoutStatusPending:    {PayoutStatusProcessing},
	PayoutStatusProcessing: {PayoutStatusCompleted, PayoutStatusFailed, PayoutStatusReconcile},
	PayoutStatusFailed:     {PayoutStatusPending},
	PayoutStatusReconcile:  {PayoutStatusPending},
}

func CanPayoutTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidPayoutTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// Payout 打款单表
// 一个账期内商户在某支付渠道上的聚合净额转账
//
// 金额恒等式：net = gross - processor_fee - subscription_fee + volume_discount
// 其中 gross / processor_fee 是所含支付记录的求和，生成时校验，不一致视为费用计算缺陷
type Payout struct {
	ID              int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	PayoutNo        string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"payout_no"`
	MerchantID      int64      `gorm:"index;not null" json:"merchant_id"`
	Processor       string     `gorm:"type:varchar(32);not null" json:"processor"`
	PeriodStart     time.Time  `gorm:"not null" json:"period_start"`
	PeriodEnd       time.Time  `gorm:"not null" json:"period_end"`
	Gross           int64      `gorm:"not null" json:"gross"`            // 账期内支付总额
	ProcessorFee    int64      `gorm:"not null" json:"processor_fee"`    // 渠道手续费合计
	SubscriptionFee int64      `gorm:"not null" json:"subscription_fee"` // 按账期折算的订阅费
	VolumeDiscount  int64      `gorm:"not null" json:"volume_discount"`  // 量级折扣
	Net             int64      `gorm:"not null" json:"net"`              // 实际转账净额
	Status          string     `gorm:"type:varchar(20);index;not null" json:"status"`
	RetryCount      int        `gorm:"not null;default:0" json:"retry_count"`
	NextRetryDate   *time.Time `json:"next_retry_date"`
	PaymentIDs      string     `gorm:"type:text;not null" json:"payment_ids"` // 所含支付记录ID列表（JSON 数组，按入账顺序）
	PaymentCount    int        `gorm:"not null" json:"payment_count"`
	ExternalRef     string     `gorm:"type:varchar(128)" json:"external_ref"` // 渠道侧转账凭证号
	Remark          string     `gorm:"type:varchar(256)" json:"remark"`
	SettledAt       *time.Time `json:"settled_at"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Payout) TableName() string {
	return "payout"
}

// EncodePaymentIDs 把所含支付记录ID编码进 payment_ids 列
func (p *Payout) EncodePaymentIDs(ids []int64) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	p.PaymentIDs = string(data)
	p.PaymentCount = len(ids)
	return nil
}

// DecodePaymentIDs 解出所含支付记录ID
func (p *Payout) DecodePaymentIDs() ([]int64, error) {
	var ids []int64
	if err := json.Unmarshal([]byte(p.PaymentIDs), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// CheckAmounts 校验金额恒等式
// 不一致说明费用计算有缺陷，生成流程必须据此回滚，绝不能带病入库
func (p *Payout) CheckAmounts(sumAmount, sumProcessorFee int64) error {
	if p.Gross != sumAmount {
		return fmt.Errorf("打款单金额不一致: gross=%d, 支付总额=%d", p.Gross, sumAmount)
	}
	if p.ProcessorFee != sumProcessorFee {
		return fmt.Errorf("打款单手续费不一致: processor_fee=%d, 手续费合计=%d", p.ProcessorFee, sumProcessorFee)
	}
	if want := p.Gross - p.ProcessorFee - p.SubscriptionFee + p.VolumeDiscount; p.Net != want {
		return fmt.Errorf("打款单净额不一致: net=%d, 应为=%d", p.Net, want)
	}
	return nil
}
