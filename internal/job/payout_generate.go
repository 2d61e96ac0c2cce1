package job

import (
	"context"
	"log"
	"time"

	"payoutengine/internal/config"
	"payoutengine/internal/service"
)

// PayoutGenerateJob 打款生成任务
// 周期触发生成扫描，排程之间互不影响，排程内由认领事务串行化
type PayoutGenerateJob struct {
	generator *service.GeneratorService
	stopCh    chan struct{}
	interval  time.Duration
}

func NewPayoutGenerateJob(generator *service.GeneratorService, cfg *config.Config) *PayoutGenerateJob {
	interval := time.Duration(cfg.Payout.GenerateIntervalSecond) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	return &PayoutGenerateJob{
		generator: generator,
		stopCh:    make(chan struct{}),
		interval:  interval,
	}
}

func (j *PayoutGenerateJob) Start(ctx context.Context) {
	log.Println("[PayoutGenerateJob] 打款生成任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[PayoutGenerateJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[PayoutGenerateJob] 任务停止")
			return
		case <-ticker.C:
			j.generateOnce(ctx)
		}
	}
}

func (j *PayoutGenerateJob) Stop() {
	close(j.stopCh)
}

func (j *PayoutGenerateJob) generateOnce(ctx context.Context) {
	generated, err := j.generator.GenerateScheduledPayouts(ctx)
	if err != nil {
		log.Printf("[PayoutGenerateJob] 生成扫描失败: %v", err)
		return
	}
	if generated > 0 {
		log.Printf("[PayoutGenerateJob] 本轮生成 %d 个打款单", generated)
	}
}
