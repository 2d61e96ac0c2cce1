package handler

import (
	"errors"
	"strconv"

	"payoutengine/internal/repository"
	"payoutengine/internal/service"
	"payoutengine/pkg/response"

	"github.com/gin-gonic/gin"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	merchantService *service.MerchantService
	scheduleService *service.ScheduleService
	generator       *service.GeneratorService
	executor        *service.ExecutorService
	payoutRepo      service.PayoutRepo
}

// NewHandler 创建处理器实例
func NewHandler(
	merchantService *service.MerchantService,
	scheduleService *service.ScheduleService,
	generator *service.GeneratorService,
	executor *service.ExecutorService,
	payoutRepo service.PayoutRepo,
) *Handler {
	return &Handler{
		merchantService: merchantService,
		scheduleService: scheduleService,
		generator:       generator,
		executor:        executor,
		payoutRepo:      payoutRepo,
	}
}

// ============================================================
// 商户相关接口
// ============================================================

// CreateMerchantRequest 创建商户请求
type CreateMerchantRequest struct {
	Name          string `json:"name" binding:"required"`
	Tier          string `json:"tier"`
	PayoutAccount string `json:"payout_account" binding:"required"`
}

// CreateMerchant 创建商户
// POST /api/v1/merchant/create
func (h *Handler) CreateMerchant(c *gin.Context) {
	var req CreateMerchantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	merchant, err := h.merchantService.Create(c.Request.Context(), req.Name, req.Tier, req.PayoutAccount)
	if err != nil {
		if errors.Is(err, service.ErrInvalidMerchant) {
			response.ParamError(c, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, merchant)
}

// GetMerchant 查询商户
// GET /api/v1/merchant/detail?merchant_id=xxx
func (h *Handler) GetMerchant(c *gin.Context) {
	merchantID, err := strconv.ParseInt(c.Query("merchant_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "merchant_id 参数错误")
		return
	}

	merchant, err := h.merchantService.Get(c.Request.Context(), merchantID)
	if err != nil {
		if errors.Is(err, repository.ErrMerchantNotFound) {
			response.BusinessError(c, response.CodeMerchantNotFound, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, merchant)
}

// ChangeTierRequest 套餐变更请求
type ChangeTierRequest struct {
	MerchantID int64  `json:"merchant_id" binding:"required"`
	Tier       string `json:"tier" binding:"required"`
}

// ChangeTier 变更商户订阅套餐
// POST /api/v1/merchant/tier
// 新套餐的订阅费从下一个打款账期开始按新费率折算
func (h *Handler) ChangeTier(c *gin.Context) {
	var req ChangeTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.merchantService.ChangeTier(c.Request.Context(), req.MerchantID, req.Tier); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidMerchant):
			response.ParamError(c, err.Error())
		case errors.Is(err, repository.ErrMerchantNotFound):
			response.BusinessError(c, response.CodeMerchantNotFound, err.Error())
		default:
			response.ServerError(c, err.Error())
		}
		return
	}

	response.Success(c, gin.H{"message": "套餐已变更"})
}

// ============================================================
// 排程相关接口
// ============================================================

// GetSchedule 查询打款排程
// GET /api/v1/schedule/detail?merchant_id=xxx&processor=STRIPE
func (h *Handler) GetSchedule(c *gin.Context) {
	merchantID, err := strconv.ParseInt(c.Query("merchant_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "merchant_id 参数错误")
		return
	}
	processor := c.Query("processor")
	if processor == "" {
		response.ParamError(c, "processor 参数不能为空")
		return
	}

	schedule, err := h.scheduleService.GetSchedule(c.Request.Context(), merchantID, processor)
	if err != nil {
		if errors.Is(err, repository.ErrScheduleNotFound) {
			response.BusinessError(c, response.CodeScheduleNotFound, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, schedule)
}

// UpdateScheduleRequest 排程配置更新请求
type UpdateScheduleRequest struct {
	MerchantID   int64   `json:"merchant_id" binding:"required"`
	Processor    string  `json:"processor" binding:"required"`
	Frequency    *string `json:"frequency"`
	WeeklyDay    *int    `json:"weekly_day"`
	MonthlyDay   *int    `json:"monthly_day"`
	MinThreshold *int64  `json:"min_threshold"`
	MaxHoldDays  *int    `json:"max_hold_days"`
}

// UpdateSchedule 更新排程配置
// POST /api/v1/schedule/config
func (h *Handler) UpdateSchedule(c *gin.Context) {
	var req UpdateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	schedule, err := h.scheduleService.UpdateConfig(c.Request.Context(), req.MerchantID, req.Processor, &service.UpdateConfigRequest{
		Frequency:    req.Frequency,
		WeeklyDay:    req.WeeklyDay,
		MonthlyDay:   req.MonthlyDay,
		MinThreshold: req.MinThreshold,
		MaxHoldDays:  req.MaxHoldDays,
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrScheduleNotFound):
			response.BusinessError(c, response.CodeScheduleNotFound, err.Error())
		case errors.Is(err, service.ErrInvalidScheduleConfig):
			response.BusinessError(c, response.CodeInvalidConfig, err.Error())
		default:
			response.ServerError(c, err.Error())
		}
		return
	}

	response.Success(c, schedule)
}

// HoldScheduleRequest 冻结/解冻请求
type HoldScheduleRequest struct {
	MerchantID int64  `json:"merchant_id" binding:"required"`
	Processor  string `json:"processor" binding:"required"`
}

// HoldSchedule 人工冻结打款
// POST /api/v1/schedule/hold
func (h *Handler) HoldSchedule(c *gin.Context) {
	var req HoldScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.scheduleService.Hold(c.Request.Context(), req.MerchantID, req.Processor); err != nil {
		if errors.Is(err, repository.ErrScheduleNotFound) {
			response.BusinessError(c, response.CodeScheduleNotFound, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"message": "已冻结打款"})
}

// ReleaseSchedule 解除人工冻结
// POST /api/v1/schedule/release
func (h *Handler) ReleaseSchedule(c *gin.Context) {
	var req HoldScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.scheduleService.Release(c.Request.Context(), req.MerchantID, req.Processor); err != nil {
		if errors.Is(err, repository.ErrScheduleNotFound) {
			response.BusinessError(c, response.CodeScheduleNotFound, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"message": "已解除冻结"})
}

// ============================================================
// 打款单相关接口
// ============================================================

// GetPayout 查询打款单详情
// GET /api/v1/payout/detail?payout_no=xxx
func (h *Handler) GetPayout(c *gin.Context) {
	payoutNo := c.Query("payout_no")
	if payoutNo == "" {
		response.ParamError(c, "payout_no 参数不能为空")
		return
	}

	payout, err := h.payoutRepo.GetByPayoutNo(c.Request.Context(), payoutNo)
	if err != nil {
		if errors.Is(err, repository.ErrPayoutNotFound) {
			response.BusinessError(c, response.CodePayoutNotFound, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, payout)
}

// ListPayouts 查询商户的打款单列表
// GET /api/v1/payout/list?merchant_id=xxx&page=1&page_size=10
func (h *Handler) ListPayouts(c *gin.Context) {
	merchantID, err := strconv.ParseInt(c.Query("merchant_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "merchant_id 参数错误")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	payouts, total, err := h.payoutRepo.ListByMerchant(c.Request.Context(), merchantID, page, pageSize)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"list":      payouts,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GeneratePayouts 手动触发一轮生成扫描（运营工具）
// POST /api/v1/payout/generate
func (h *Handler) GeneratePayouts(c *gin.Context) {
	generated, err := h.generator.GenerateScheduledPayouts(c.Request.Context())
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"generated": generated})
}

// RequeuePayoutRequest 重新排队请求
type RequeuePayoutRequest struct {
	PayoutNo string `json:"payout_no" binding:"required"`
	Remark   string `json:"remark"`
}

// RequeuePayout 人工对账后重新排队终态失败/待对账的打款单
// POST /api/v1/payout/requeue
//
// 【关键点】只有人工确认渠道侧确实没有转账成功，才允许重新排队，
// 否则会造成双重打款
func (h *Handler) RequeuePayout(c *gin.Context) {
	var req RequeuePayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	err := h.executor.RequeuePayout(c.Request.Context(), req.PayoutNo, req.Remark)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrPayoutNotFound):
			response.BusinessError(c, response.CodePayoutNotFound, err.Error())
		case errors.Is(err, repository.ErrPayoutStatusInvalid):
			response.BusinessError(c, response.CodePayoutStatusInvalid, err.Error())
		default:
			response.ServerError(c, err.Error())
		}
		return
	}

	response.Success(c, gin.H{"message": "已重新排队"})
}
