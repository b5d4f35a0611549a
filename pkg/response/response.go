// Package response 统一 HTTP 响应格式。
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Body 统一响应体
type Body struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Success 成功响应
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Body{Code: 0, Message: "ok", Data: data})
}

// Accepted 请求已持久化，处理结果异步产生
func Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, Body{Code: 0, Message: "accepted", Data: data})
}

// Error 服务端错误响应
func Error(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, Body{Code: http.StatusInternalServerError, Message: err.Error()})
}

// ErrorWithStatus 指定状态码的错误响应
func ErrorWithStatus(c *gin.Context, status int, message, detail string) {
	body := Body{Code: status, Message: message}
	if detail != "" {
		body.Data = gin.H{"detail": detail}
	}
	c.JSON(status, body)
}
