package job

import (
	"context"
	"log"
	"time"

	"payoutengine/internal/config"
	"payoutengine/internal/service"
)

// PayoutExecuteJob 打款执行任务
// 周期扫描可执行的打款单（含到期重试的），逐个驱动状态机。
// 失败重试只能走这里的下一轮扫描，绝不同步重试，渠道故障时把
// 影响半径限制在每轮的批次大小内
type PayoutExecuteJob struct {
	executor *service.ExecutorService
	stopCh   chan struct{}
	interval time.Duration
}

func NewPayoutExecuteJob(executor *service.ExecutorService, cfg *config.Config) *PayoutExecuteJob {
	interval := time.Duration(cfg.Payout.ExecuteIntervalSecond) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &PayoutExecuteJob{
		executor: executor,
		stopCh:   make(chan struct{}),
		interval: interval,
	}
}

func (j *PayoutExecuteJob) Start(ctx context.Context) {
	log.Println("[PayoutExecuteJob] 打款执行任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[PayoutExecuteJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[PayoutExecuteJob] 任务停止")
			return
		case <-ticker.C:
			j.executeOnce(ctx)
		}
	}
}

func (j *PayoutExecuteJob) Stop() {
	close(j.stopCh)
}

func (j *PayoutExecuteJob) executeOnce(ctx context.Context) {
	completed, err := j.executor.ProcessPendingPayouts(ctx)
	if err != nil {
		log.Printf("[PayoutExecuteJob] 执行扫描失败: %v", err)
		return
	}
	if completed > 0 {
		log.Printf("[PayoutExecuteJob] 本轮打款成功 %d 个", completed)
	}

	// 顺带清理崩溃留下的滞留单据
	swept, err := j.executor.ReconcileStaleProcessing(ctx)
	if err != nil {
		log.Printf("[PayoutExecuteJob] 滞留清理失败: %v", err)
		return
	}
	if swept > 0 {
		log.Printf("[PayoutExecuteJob] 本轮 %d 个滞留打款单转人工对账", swept)
	}
}
