// Package response 统一的 HTTP 响应信封
// 业务错误一律 HTTP 200 + 业务码，网关只看传输层状态
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess     = 0
	CodeParamError  = 400
	CodeServerError = 500
)

// 业务错误码，1000 段留给打款域
const (
	CodeScheduleNotFound    = 1001
	CodePayoutNotFound      = 1002
	CodePayoutStatusInvalid = 1003
	CodeMerchantNotFound    = 1004
	CodeInvalidConfig       = 1005
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

// BusinessError 带业务码的失败响应
func BusinessError(c *gin.Context, code int, message string) {
	Error(c, code, message)
}
