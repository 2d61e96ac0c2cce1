package settlement

import (
	"context"
	"errors"
	"fmt"
)

// ============================================================================
// 打款渠道抽象
// ============================================================================
//
// Stripe / Razorpay / PhonePe / Paytm 等渠道 SDK 各不相同，统一收敛到
// Provider 接口后，执行器只面向接口编程，具体适配器单独接入。
//
// 【关键点】调用方必须区分三种结果：
//   1. 成功 —— 拿到渠道凭证号
//   2. 明确失败（ErrTransferDeclined）—— 渠道确认没有转账，可以安全重试
//   3. 结果未知（ErrOutcomeUnknown，典型是超时）—— 渠道可能已经转账成功，
//      自动重试会有双重打款风险，只能转人工对账
// ============================================================================

var (
	ErrTransferDeclined  = errors.New("渠道拒绝转账")
	ErrOutcomeUnknown    = errors.New("转账结果未知")
	ErrProviderNotFound  = errors.New("未配置该渠道的打款适配器")
	ErrInvalidCredential = errors.New("渠道凭证无效")
)

// TransferRequest 转账请求
// IdempotencyKey 用打款单号，渠道侧按该键去重
type TransferRequest struct {
	IdempotencyKey string
	Amount         int64
	Destination    string
}

// TransferResult 转账结果
type TransferResult struct {
	ExternalRef string // 渠道侧转账凭证号
}

// Provider 打款渠道能力接口
type Provider interface {
	Transfer(ctx context.Context, req TransferRequest) (TransferResult, error)
	VerifyCredentials(ctx context.Context) error
}

// Registry 渠道适配器注册表，按渠道名索引
type Registry struct {
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

func (r *Registry) Register(processor string, provider Provider) {
	r.providers[processor] = provider
}

func (r *Registry) Get(processor string) (Provider, error) {
	provider, ok := r.providers[processor]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, processor)
	}
	return provider, nil
}
