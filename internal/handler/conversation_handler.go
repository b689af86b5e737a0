package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ai-chat-go/internal/model"
	"ai-chat-go/internal/service"
)

// ConversationHandler 处理会话的 CRUD 以及追加/编辑消息两个变更操作。
type ConversationHandler struct {
	conversations service.ConversationService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(conversations service.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversations: conversations}
}

type createConversationRequest struct {
	Title string `json:"title"`
}

// appendMessageRequest 的 SystemPrompt 用指针承接 JSON 的三态：
// 字段缺失（nil）、显式空串（删除 system 消息）、非空文本（替换/插入）。
type appendMessageRequest struct {
	Content      string             `json:"content" binding:"required"`
	Sender       string             `json:"sender"`
	SystemPrompt *string            `json:"systemPrompt"`
	ModelConfig  *model.ModelConfig `json:"modelConfig"`
}

type editMessageRequest struct {
	Content      string             `json:"content" binding:"required"`
	SystemPrompt *string            `json:"systemPrompt"`
	ModelConfig  *model.ModelConfig `json:"modelConfig"`
}

// Create 新建会话。
func (h *ConversationHandler) Create(c *gin.Context) {
	var req createConversationRequest
	// body 可选：缺省或解析失败都按空标题处理
	_ = c.ShouldBindJSON(&req)
	conv, err := h.conversations.Create(c.Request.Context(), req.Title)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"code": http.StatusCreated, "message": "success", "data": conv})
}

// List 列出全部会话。
func (h *ConversationHandler) List(c *gin.Context) {
	conversations, err := h.conversations.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": conversations})
}

// Get 返回单个会话。
func (h *ConversationHandler) Get(c *gin.Context) {
	conv, err := h.conversations.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": conv})
}

// Delete 删除会话。
func (h *ConversationHandler) Delete(c *gin.Context) {
	if err := h.conversations.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": nil})
}

// AppendMessage 向会话追加一条消息并（用户消息时）生成回复。
func (h *ConversationHandler) AppendMessage(c *gin.Context) {
	var req appendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求体: " + err.Error(), "data": nil})
		return
	}
	if req.Sender == "" {
		req.Sender = model.SenderUser
	}

	conv, err := h.conversations.AppendMessage(c.Request.Context(), c.Param("id"), req.Content, req.Sender, service.MessageOptions{
		SystemPrompt: req.SystemPrompt,
		ModelConfig:  req.ModelConfig,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": conv})
}

// EditMessage 编辑会话中的一条可见用户消息并重新生成其后的回复。
func (h *ConversationHandler) EditMessage(c *gin.Context) {
	visibleIndex, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的消息下标", "data": nil})
		return
	}

	var req editMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求体: " + err.Error(), "data": nil})
		return
	}

	conv, err := h.conversations.EditMessage(c.Request.Context(), c.Param("id"), visibleIndex, req.Content, service.MessageOptions{
		SystemPrompt: req.SystemPrompt,
		ModelConfig:  req.ModelConfig,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": conv})
}

// respondError 把服务层的请求级错误映射为 HTTP 状态码。
func (h *ConversationHandler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrConversationNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrEmptyContent),
		errors.Is(err, service.ErrInvalidSender),
		errors.Is(err, service.ErrEditTargetOutOfRange),
		errors.Is(err, service.ErrEditTargetNotUser):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrConcurrentModification):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"code": status, "message": err.Error(), "data": nil})
}
