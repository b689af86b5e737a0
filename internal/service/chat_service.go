// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"

	"ai-chat-go/internal/config"
	"ai-chat-go/internal/mapper"
	"ai-chat-go/internal/model"
	"ai-chat-go/pkg/aibackend"
	"ai-chat-go/pkg/log"
)

// AIBackend 是生成能力的最小接口：HTTP 后端客户端是当前唯一实现，
// 将来接直连 provider 的客户端时作为同一接口的新实现加入。
type AIBackend interface {
	GenerateResponse(ctx context.Context, messages []model.AIMessage, opts aibackend.GenerateOptions) (string, error)
	IsHealthy(ctx context.Context) bool
}

// ChatService 把"一段消息历史加可选配置"变成生成结果或结构化错误。
// 这是编排层的唯一入口，任何失败都以 ServiceResult 返回，不向外抛错。
type ChatService interface {
	GenerateResponse(ctx context.Context, req model.ChatRequest) model.ServiceResult[model.ChatResponse]
	IsBackendAvailable(ctx context.Context) bool
	TestConnection(ctx context.Context) model.ServiceResult[model.ChatResponse]
}

type chatService struct {
	backend AIBackend
	cfg     config.AIConfig
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(backend AIBackend, cfg config.AIConfig) ChatService {
	return &chatService{backend: backend, cfg: cfg}
}

// GenerateResponse 校验消息历史、合并配置、截取上下文窗口、调用后端，
// 并把后端错误归类成稳定错误码。
//
// 历史缺陷修复：请求中的 Messages 必须已经是完整的、包含当前用户消息的
// 序列，本方法原样转发，绝不再额外拼接一条"当前消息"。
func (s *chatService) GenerateResponse(ctx context.Context, req model.ChatRequest) (result model.ServiceResult[model.ChatResponse]) {
	// 编排边界兜底：任何意外 panic 也折叠成失败结果
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("chat service panicked: %v", r)
			result = model.Fail[model.ChatResponse](model.CodeAIServiceError, fmt.Sprintf("unexpected error: %v", r))
		}
	}()

	if v := mapper.ValidateMessages(req.Messages); !v.Valid {
		return model.FailWithDetails[model.ChatResponse](
			model.CodeInvalidMessages, "message history failed validation", v.Issues)
	}

	opts := s.resolveOptions(req.Config)

	maxContext := req.MaxContextMessages
	if maxContext <= 0 {
		maxContext = s.cfg.MaxContextMessages
	}
	aiMessages := mapper.PrepareAIContext(req.Messages, maxContext)
	if len(aiMessages) == 0 {
		return model.Fail[model.ChatResponse](model.CodeNoMessages, "no messages to send to the ai backend")
	}

	content, err := s.backend.GenerateResponse(ctx, aiMessages, opts)
	if err != nil {
		return s.wrapBackendError(err)
	}

	return model.Ok(model.ChatResponse{
		Content:  content,
		Model:    opts.ModelName,
		Provider: opts.Provider,
	})
}

// IsBackendAvailable 委托给客户端健康检查，任何失败都折叠为 false。
func (s *chatService) IsBackendAvailable(ctx context.Context) bool {
	return s.backend.IsHealthy(ctx)
}

// TestConnection 用一条合成的 "Hello" 消息走完整生成链路，便于诊断。
func (s *chatService) TestConnection(ctx context.Context) model.ServiceResult[model.ChatResponse] {
	return s.GenerateResponse(ctx, model.ChatRequest{
		Messages: []model.Message{mapper.NewUserMessage("Hello")},
	})
}

// resolveOptions 把请求配置合并到服务默认值之上，越界的覆盖值忽略并告警。
func (s *chatService) resolveOptions(mc *model.ModelConfig) aibackend.GenerateOptions {
	opts := aibackend.GenerateOptions{
		Provider:        s.cfg.Provider,
		ModelName:       s.cfg.Model,
		Temperature:     s.cfg.Temperature,
		TopP:            s.cfg.TopP,
		MaxOutputTokens: s.cfg.MaxOutputTokens,
	}
	if mc == nil {
		return opts
	}
	if mc.Provider != "" {
		opts.Provider = mc.Provider
	}
	if mc.ModelName != "" {
		opts.ModelName = mc.ModelName
	}
	if mc.Temperature != nil {
		if *mc.Temperature < 0 || *mc.Temperature > 2 {
			log.Warnf("temperature %v 超出 [0,2]，忽略该覆盖值", *mc.Temperature)
		} else {
			opts.Temperature = *mc.Temperature
		}
	}
	if mc.TopP != nil {
		if *mc.TopP < 0 || *mc.TopP > 1 {
			log.Warnf("topP %v 超出 [0,1]，忽略该覆盖值", *mc.TopP)
		} else {
			opts.TopP = *mc.TopP
		}
	}
	if mc.MaxOutputTokens != nil && *mc.MaxOutputTokens > 0 {
		opts.MaxOutputTokens = *mc.MaxOutputTokens
	}
	if mc.BackendURL != "" {
		opts.BackendURL = mc.BackendURL
	}
	return opts
}

// wrapBackendError 把客户端错误归类成稳定错误码。
func (s *chatService) wrapBackendError(err error) model.ServiceResult[model.ChatResponse] {
	var connErr *aibackend.ConnectionError
	if errors.As(err, &connErr) {
		return model.Fail[model.ChatResponse](model.CodeBackendConnectionError,
			fmt.Sprintf("cannot reach the AI backend at %s — check that the backend service is running", connErr.Addr))
	}

	var apiErr *aibackend.APIError
	if errors.As(err, &apiErr) {
		return model.FailWithDetails[model.ChatResponse](model.CodeBackendAPIError,
			fmt.Sprintf("the AI backend returned an error (status %d)", apiErr.Status), apiErr.Body)
	}
	if errors.Is(err, aibackend.ErrEmptyResponse) {
		// 空响应归为后端 API 错误：请求到达了后端，但没有可用内容
		return model.Fail[model.ChatResponse](model.CodeBackendAPIError,
			"the AI backend returned an empty response")
	}

	log.Error("未归类的 AI 服务错误", err)
	return model.Fail[model.ChatResponse](model.CodeAIServiceError, err.Error())
}
