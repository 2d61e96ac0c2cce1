package job

import (
	"context"
	"log"
	"time"

	"payoutengine/internal/config"
	"payoutengine/internal/infrastructure/mq"
	"payoutengine/internal/model"
	"payoutengine/internal/repository"

	"gorm.io/gorm"
)

// OutboxSender 打款通知投递任务
// 扫描本地消息表，把打款完成通知发往 Kafka；投递失败记录原因，
// 在重试上限内反复投递，耗尽转终态失败等人工介入
type OutboxSender struct {
	db         *gorm.DB
	outboxRepo *repository.OutboxRepository
	cfg        *config.Config
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
}

func NewOutboxSender(db *gorm.DB, cfg *config.Config) *OutboxSender {
	return &OutboxSender{
		db:         db,
		outboxRepo: repository.NewOutboxRepository(db),
		cfg:        cfg,
		stopCh:     make(chan struct{}),
		interval:   time.Second,
		batchSize:  100,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	log.Println("[OutboxSender] 通知投递任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[OutboxSender] 收到停止信号，任务退出")
			return
		case <-s.stopCh:
			log.Println("[OutboxSender] 任务停止")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

func (s *OutboxSender) processPendingMessages(ctx context.Context) {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		log.Printf("[OutboxSender] 查询消息失败: %v", err)
		return
	}

	for _, msg := range messages {
		s.sendMessage(ctx, msg)
	}
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) {
	err := mq.SendMessage(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		if updateErr := s.outboxRepo.MarkSent(ctx, msg.ID); updateErr != nil {
			log.Printf("[OutboxSender] 更新消息状态失败: id=%d, err=%v", msg.ID, updateErr)
		} else {
			log.Printf("[OutboxSender] 通知投递成功: payoutNo=%s, topic=%s", msg.MessageKey, msg.Topic)
		}
		return
	}

	log.Printf("[OutboxSender] 通知投递失败: payoutNo=%s, retryCount=%d, err=%v", msg.MessageKey, msg.RetryCount, err)

	if msg.RetryCount+1 >= s.cfg.Payout.MaxRetryCount {
		if markErr := s.outboxRepo.MarkFailed(ctx, msg.ID, err.Error()); markErr != nil {
			log.Printf("[OutboxSender] 标记终态失败出错: id=%d, err=%v", msg.ID, markErr)
		} else {
			log.Printf("[OutboxSender] 通知重试耗尽，转终态失败: payoutNo=%s", msg.MessageKey)
		}
		return
	}

	if recordErr := s.outboxRepo.RecordFailure(ctx, msg.ID, err.Error()); recordErr != nil {
		log.Printf("[OutboxSender] 记录投递失败出错: id=%d, err=%v", msg.ID, recordErr)
	}
}
