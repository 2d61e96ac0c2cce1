package settlement

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SandboxProvider 沙箱渠道
// 本地联调和压测用：在内存里记账并按幂等键去重，不会真的转账。
// 渠道侧幂等语义（同一个键重复请求返回同一个凭证号）在这里完整模拟
type SandboxProvider struct {
	mu        sync.Mutex
	processor string
	transfers map[string]TransferResult
}

func NewSandboxProvider(processor string) *SandboxProvider {
	return &SandboxProvider{
		processor: processor,
		transfers: make(map[string]TransferResult),
	}
}

func (p *SandboxProvider) Transfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	if err := ctx.Err(); err != nil {
		return TransferResult{}, fmt.Errorf("%w: %v", ErrOutcomeUnknown, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if result, ok := p.transfers[req.IdempotencyKey]; ok {
		return result, nil
	}

	result := TransferResult{
		ExternalRef: fmt.Sprintf("SBX-%s-%d", req.IdempotencyKey, time.Now().UnixMilli()),
	}
	p.transfers[req.IdempotencyKey] = result
	return result, nil
}

func (p *SandboxProvider) VerifyCredentials(ctx context.Context) error {
	return nil
}
