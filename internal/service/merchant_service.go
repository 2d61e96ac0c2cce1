package service

import (
	"context"
	"errors"

	"payoutengine/internal/model"
)

var ErrInvalidMerchant = errors.New("商户信息不合法")

// MerchantService 商户主数据的最小维护入口，平台侧完整的商户管理不在本系统
type MerchantService struct {
	merchantRepo MerchantRepo
}

func NewMerchantService(merchantRepo MerchantRepo) *MerchantService {
	return &MerchantService{merchantRepo: merchantRepo}
}

func (s *MerchantService) Create(ctx context.Context, name, tier, payoutAccount string) (*model.Merchant, error) {
	if name == "" || payoutAccount == "" {
		return nil, ErrInvalidMerchant
	}
	if tier == "" {
		tier = model.TierFree
	}
	if !model.IsValidTier(tier) {
		return nil, ErrInvalidMerchant
	}

	merchant := &model.Merchant{
		Name:             name,
		SubscriptionTier: tier,
		PayoutAccount:    payoutAccount,
		Status:           model.MerchantStatusActive,
	}
	if err := s.merchantRepo.Create(ctx, merchant); err != nil {
		return nil, err
	}
	return merchant, nil
}

func (s *MerchantService) Get(ctx context.Context, id int64) (*model.Merchant, error) {
	return s.merchantRepo.GetByID(ctx, id)
}

func (s *MerchantService) ChangeTier(ctx context.Context, id int64, tier string) error {
	if !model.IsValidTier(tier) {
		return ErrInvalidMerchant
	}
	return s.merchantRepo.UpdateTier(ctx, id, tier)
}
