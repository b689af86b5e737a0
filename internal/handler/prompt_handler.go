package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ai-chat-go/internal/service"
)

// PromptHandler 处理系统提示模板的 CRUD 请求。
type PromptHandler struct {
	prompts service.PromptService
}

// NewPromptHandler 创建一个新的 PromptHandler。
func NewPromptHandler(prompts service.PromptService) *PromptHandler {
	return &PromptHandler{prompts: prompts}
}

type createPromptRequest struct {
	Name string `json:"name" binding:"required"`
	Body string `json:"body" binding:"required"`
}

// updatePromptRequest：Name 和 Body 至少一个非空。
// Name 非空时重命名，Body 非空时追加新版本。
type updatePromptRequest struct {
	Name string `json:"name"`
	Body string `json:"body"`
}

// Create 创建模板（版本 1）。
func (h *PromptHandler) Create(c *gin.Context) {
	var req createPromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求体: " + err.Error(), "data": nil})
		return
	}
	prompt, err := h.prompts.Create(c.Request.Context(), req.Name, req.Body)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"code": http.StatusCreated, "message": "success", "data": prompt})
}

// List 分页列出模板。
func (h *PromptHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	prompts, total, err := h.prompts.List(c.Request.Context(), page, pageSize)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    gin.H{"items": prompts, "total": total, "page": page, "pageSize": pageSize},
	})
}

// Get 返回模板及全部版本。
func (h *PromptHandler) Get(c *gin.Context) {
	prompt, err := h.prompts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": prompt})
}

// Latest 返回模板最新版本的正文，前端将其作为 systemPrompt 应用到会话。
func (h *PromptHandler) Latest(c *gin.Context) {
	body, err := h.prompts.LatestBody(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"body": body}})
}

// Update 重命名模板和/或追加一个新版本。
func (h *PromptHandler) Update(c *gin.Context) {
	var req updatePromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求体: " + err.Error(), "data": nil})
		return
	}
	if req.Name == "" && req.Body == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "name 和 body 至少提供一个", "data": nil})
		return
	}

	id := c.Param("id")
	if req.Name != "" {
		if err := h.prompts.Rename(c.Request.Context(), id, req.Name); err != nil {
			h.respondError(c, err)
			return
		}
	}
	if req.Body != "" {
		if _, err := h.prompts.AppendVersion(c.Request.Context(), id, req.Body); err != nil {
			h.respondError(c, err)
			return
		}
	}

	prompt, err := h.prompts.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": prompt})
}

// Delete 删除模板及其版本历史。
func (h *PromptHandler) Delete(c *gin.Context) {
	if err := h.prompts.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": nil})
}

func (h *PromptHandler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrPromptNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrEmptyPromptName), errors.Is(err, service.ErrEmptyPromptBody):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"code": status, "message": err.Error(), "data": nil})
}
