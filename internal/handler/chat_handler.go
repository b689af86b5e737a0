// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ai-chat-go/internal/model"
	"ai-chat-go/internal/service"
)

// ChatHandler 暴露聊天编排服务：直接生成、健康检查、连通性测试。
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// Generate 对一段消息历史直接做一次生成，不落库。
func (h *ChatHandler) Generate(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求体: " + err.Error(), "data": nil})
		return
	}

	result := h.chatService.GenerateResponse(c.Request.Context(), req)
	if !result.Success {
		c.JSON(statusForCode(result.Error.Code), gin.H{
			"code":    statusForCode(result.Error.Code),
			"message": result.Error.Message,
			"data":    result.Error,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": result.Data})
}

// Health 报告 AI 后端是否可用。
func (h *ChatHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    gin.H{"available": h.chatService.IsBackendAvailable(c.Request.Context())},
	})
}

// Test 用一条合成消息走完整生成链路。
func (h *ChatHandler) Test(c *gin.Context) {
	result := h.chatService.TestConnection(c.Request.Context())
	if !result.Success {
		c.JSON(statusForCode(result.Error.Code), gin.H{
			"code":    statusForCode(result.Error.Code),
			"message": result.Error.Message,
			"data":    result.Error,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": result.Data})
}

// statusForCode 把编排服务的错误码映射为 HTTP 状态码。
func statusForCode(code string) int {
	switch code {
	case model.CodeInvalidMessages, model.CodeNoMessages:
		return http.StatusBadRequest
	case model.CodeBackendConnectionError:
		return http.StatusServiceUnavailable
	case model.CodeBackendAPIError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
