package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"payoutengine/internal/config"
	"payoutengine/internal/handler"
	"payoutengine/internal/infrastructure/cache"
	"payoutengine/internal/infrastructure/database"
	"payoutengine/internal/infrastructure/lock"
	"payoutengine/internal/infrastructure/mq"
	"payoutengine/internal/infrastructure/settlement"
	"payoutengine/internal/job"
	"payoutengine/internal/model"
	"payoutengine/internal/repository"
	"payoutengine/internal/service"
	"payoutengine/pkg/idgen"
)

func main() {
	// 加载配置
	cfg := config.LoadConfig("config/config.yaml")

	// 初始化 ID 生成器
	idgen.Init(1)

	// 初始化 MySQL
	db := database.InitMySQL(&cfg.MySQL)

	// 初始化 Redis
	redisClient := cache.InitRedis(&cfg.Redis)

	// 初始化 Kafka 生产者
	mq.InitKafka(&cfg.Kafka)
	defer mq.CloseKafka()

	// 仓储
	merchantRepo := repository.NewMerchantRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	payoutRepo := repository.NewPayoutRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)

	// 打款渠道注册表
	// 真实渠道适配器单独接入，默认全部挂沙箱渠道
	providers := settlement.NewRegistry()
	for _, processor := range []string{
		model.ProcessorStripe,
		model.ProcessorRazorpay,
		model.ProcessorPhonePe,
		model.ProcessorPaytm,
	} {
		provider := settlement.NewSandboxProvider(processor)

		// 启动时校验渠道凭证，凭证失效宁可不启动也不能带病打款
		verifyCtx, verifyCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := provider.VerifyCredentials(verifyCtx); err != nil {
			verifyCancel()
			log.Fatalf("渠道凭证校验失败: processor=%s, err=%v", processor, err)
		}
		verifyCancel()

		providers.Register(processor, provider)
	}

	// 服务
	hostname, _ := os.Hostname()
	locker := lock.NewScheduleLocker(redisClient, hostname)
	ledgerService := service.NewLedgerService(db, scheduleRepo, paymentRepo, cfg)
	scheduleService := service.NewScheduleService(scheduleRepo)
	merchantService := service.NewMerchantService(merchantRepo)
	generatorService := service.NewGeneratorService(db, scheduleRepo, paymentRepo, payoutRepo, merchantRepo, locker, cfg)
	executorService := service.NewExecutorService(db, payoutRepo, paymentRepo, merchantRepo, outboxRepo, providers, cfg)

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 支付事件消费
	consumer, err := mq.NewPaymentConsumer(&cfg.Kafka, ledgerService)
	if err != nil {
		log.Fatalf("创建支付事件消费者失败: %v", err)
	}
	defer consumer.Close()
	go consumer.Start(ctx)

	// 启动后台任务
	generateJob := job.NewPayoutGenerateJob(generatorService, cfg)
	go generateJob.Start(ctx)

	executeJob := job.NewPayoutExecuteJob(executorService, cfg)
	go executeJob.Start(ctx)

	outboxSender := job.NewOutboxSender(db, cfg)
	go outboxSender.Start(ctx)

	// 设置路由
	h := handler.NewHandler(merchantService, scheduleService, generatorService, executorService, payoutRepo)
	router := handler.SetupRouter(h)

	// 启动 HTTP 服务
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// 在 goroutine 中启动服务器
	go func() {
		log.Printf("服务启动，监听端口: %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	// 取消上下文，停止后台任务和消费
	cancel()

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("服务关闭异常: %v", err)
	}

	log.Println("服务已关闭")
}
