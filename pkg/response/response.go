package response

import (
	"net/http"

	"RescueHub/pkg/errors"

	"github.com/gin-gonic/gin"
)

// Body 统一响应结构
type Body struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Success 成功响应
func Success(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, Body{Code: 0, Message: message, Data: data})
}

// Created 创建成功响应
func Created(c *gin.Context, message string, data any) {
	c.JSON(http.StatusCreated, Body{Code: 0, Message: message, Data: data})
}

// Fail 失败响应
func Fail(c *gin.Context, message string, data any) {
	c.JSON(http.StatusBadRequest, Body{Code: 1, Message: message, Data: data})
}

// Error 按引擎错误码映射 HTTP 状态码
func Error(c *gin.Context, err error) {
	code := errors.GetCode(err)
	status := http.StatusInternalServerError
	switch code {
	case errors.CodeNotFound:
		status = http.StatusNotFound
	case errors.CodeInvalidReference, errors.CodeNotEligible:
		status = http.StatusBadRequest
	case errors.CodeConflict, errors.CodeDuplicateActive, errors.CodeNotActive:
		status = http.StatusConflict
	case errors.CodeChannelClosed:
		status = http.StatusGone
	}
	c.JSON(status, Body{Code: code, Message: errors.GetMessage(err)})
}
