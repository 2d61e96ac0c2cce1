package handler

import (
	"github.com/gin-gonic/gin"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// API 路由组
	api := r.Group("/api/v1")
	{
		// 商户相关
		merchant := api.Group("/merchant")
		{
			merchant.POST("/create", h.CreateMerchant)
			merchant.GET("/detail", h.GetMerchant)
			merchant.POST("/tier", h.ChangeTier)
		}

		// 打款排程相关
		schedule := api.Group("/schedule")
		{
			schedule.GET("/detail", h.GetSchedule)
			schedule.POST("/config", h.UpdateSchedule)
			schedule.POST("/hold", h.HoldSchedule)
			schedule.POST("/release", h.ReleaseSchedule)
		}

		// 打款单相关
		payout := api.Group("/payout")
		{
			payout.GET("/detail", h.GetPayout)
			payout.GET("/list", h.ListPayouts)
			payout.POST("/generate", h.GeneratePayouts)
			payout.POST("/requeue", h.RequeuePayout)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
