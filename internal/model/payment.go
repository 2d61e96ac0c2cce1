package model

import (
	"time"
)

// 支付渠道
const (
	ProcessorStripe   = "STRIPE"
	ProcessorRazorpay = "RAZORPAY"
	ProcessorPhonePe  = "PHONEPE"
	ProcessorPaytm    = "PAYTM"
)

const (
	PaymentStatusSucceeded = "SUCCEEDED"
	PaymentStatusRefunded  = "REFUNDED"
)

// 结算指针状态
const (
	SettlementStatusPending = "PENDING"
	SettlementStatusSettled = "SETTLED"
)

// Payment 支付记录表
// 支付本身由平台侧完成，渠道手续费也在支付时算好；本系统只读取成功的支付，
// 并且只写结算指针（settlement_payout_id / settlement_status）这两个字段
//
// 【重要】结算指针只允许从 NULL 置位一次，在生成打款单的认领事务里完成，
// 这是防止一笔支付被计入两个打款单的唯一机制
type Payment struct {
	ID                 int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	PaymentNo          string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"payment_no"`
	MerchantID         int64      `gorm:"index:idx_merchant_processor;not null" json:"merchant_id"`
	Processor          string     `gorm:"type:varchar(32);index:idx_merchant_processor;not null" json:"processor"`
	OrderNo            string     `gorm:"type:varchar(64);not null" json:"order_no"`
	Amount             int64      `gorm:"not null" json:"amount"`        // 支付金额
	ProcessorFee       int64      `gorm:"not null" json:"processor_fee"` // 渠道手续费（支付时已算好）
	Status             string     `gorm:"type:varchar(20);not null" json:"status"`
	SucceededAt        time.Time  `gorm:"index;not null" json:"succeeded_at"`
	SettlementPayoutID *int64     `gorm:"index" json:"settlement_payout_id"`           // 所属打款单，NULL 表示未结算
	SettlementStatus   string     `gorm:"type:varchar(20)" json:"settlement_status"`   // PENDING / SETTLED
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Payment) TableName() string {
	return "payment"
}

// NetContribution 该笔支付计入未结算余额的净额
func (p *Payment) NetContribution() int64 {
	return p.Amount - p.ProcessorFee
}

func IsValidProcessor(processor string) bool {
	switch processor {
	case ProcessorStripe, ProcessorRazorpay, ProcessorPhonePe, ProcessorPaytm:
		return true
	default:
		return false
	}
}
