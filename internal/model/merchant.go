package model

import (
	"time"
)

// 订阅套餐等级
const (
	TierFree       = "FREE"
	TierBasic      = "BASIC"
	TierPro        = "PRO"
	TierEnterprise = "ENTERPRISE"
)

const (
	MerchantStatusActive   = "ACTIVE"
	MerchantStatusDisabled = "DISABLED"
)

// Merchant 商户表
// 平台侧的商户主数据在本系统中只保留结算所需的最小字段：
// 订阅等级决定订阅费，收款账号是打款目的地
type Merchant struct {
	ID               int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name             string    `gorm:"type:varchar(128);not null" json:"name"`
	SubscriptionTier string    `gorm:"type:varchar(20);not null;default:FREE" json:"subscription_tier"` // 订阅套餐等级
	PayoutAccount    string    `gorm:"type:varchar(64);not null" json:"payout_account"`                 // 收款账号（打款目的地）
	Status           string    `gorm:"type:varchar(20);not null;default:ACTIVE" json:"status"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Merchant) TableName() string {
	return "merchant"
}

func IsValidTier(tier string) bool {
	switch tier {
	case TierFree, TierBasic, TierPro, TierEnterprise:
		return true
	default:
		return false
	}
}
