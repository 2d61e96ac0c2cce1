package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"payoutengine/internal/config"
	"payoutengine/internal/service"

	"github.com/IBM/sarama"
)

// PaymentLedger 支付成功事件的落账入口，消费侧只依赖这一个方法
type PaymentLedger interface {
	OnPaymentSucceeded(ctx context.Context, event *service.PaymentSucceededEvent) error
}

// PaymentConsumer 支付结果事件消费者
// 订阅平台侧的支付结果 topic，把支付成功事件喂给余额账本
type PaymentConsumer struct {
	group  sarama.ConsumerGroup
	topic  string
	ledger PaymentLedger
}

func NewPaymentConsumer(cfg *config.KafkaConfig, ledger PaymentLedger) (*PaymentConsumer, error) {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	kafkaConfig.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, kafkaConfig)
	if err != nil {
		return nil, err
	}

	return &PaymentConsumer{
		group:  group,
		topic:  cfg.Topic.PaymentResult,
		ledger: ledger,
	}, nil
}

// Start 持续消费直到 ctx 取消；Consume 返回后需要循环重入（再均衡会让它退出）
func (c *PaymentConsumer) Start(ctx context.Context) {
	log.Printf("[PaymentConsumer] 支付事件消费启动: topic=%s", c.topic)

	go func() {
		for err := range c.group.Errors() {
			log.Printf("[PaymentConsumer] 消费错误: %v", err)
		}
	}()

	for {
		if err := c.group.Consume(ctx, []string{c.topic}, c); err != nil {
			log.Printf("[PaymentConsumer] 消费会话异常: %v", err)
		}
		if ctx.Err() != nil {
			log.Println("[PaymentConsumer] 收到停止信号，消费退出")
			return
		}
	}
}

func (c *PaymentConsumer) Close() error {
	return c.group.Close()
}

func (c *PaymentConsumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *PaymentConsumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim 逐条处理支付成功事件
//
// 【关键点】事件背后是商户的钱，位点提交必须区分两类失败：
//   - 永久性失败（解析失败、校验不过）：重投多少次都一样，提交位点丢弃
//   - 暂时性失败（数据库抖动等）：不提交位点直接退出会话，重入后从失败
//     事件重投；账本按 payment_no 幂等，重投不会重复入账
func (c *PaymentConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		ack, err := c.handleMessage(session.Context(), message.Value)
		if ack {
			session.MarkMessage(message, "")
		}
		if err != nil {
			return fmt.Errorf("支付事件处理失败，等待重投: offset=%d, err=%w", message.Offset, err)
		}
	}
	return nil
}

// handleMessage 处理一条事件，返回是否提交位点
func (c *PaymentConsumer) handleMessage(ctx context.Context, value []byte) (bool, error) {
	var event service.PaymentSucceededEvent
	if err := json.Unmarshal(value, &event); err != nil {
		log.Printf("[PaymentConsumer] 事件解析失败，丢弃: err=%v", err)
		return true, nil
	}

	err := c.ledger.OnPaymentSucceeded(ctx, &event)
	if err == nil {
		return true, nil
	}

	if errors.Is(err, service.ErrInvalidProcessor) || errors.Is(err, service.ErrInvalidAmount) {
		log.Printf("[PaymentConsumer] 非法支付事件，丢弃: paymentNo=%s, err=%v", event.PaymentNo, err)
		return true, nil
	}

	log.Printf("[PaymentConsumer] 支付事件处理失败: paymentNo=%s, err=%v", event.PaymentNo, err)
	return false, err
}
