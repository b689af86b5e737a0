package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ai-chat-go/internal/mapper"
	"ai-chat-go/internal/model"
	"ai-chat-go/internal/repository"
	"ai-chat-go/pkg/log"
)

// 请求级（结构性）错误：在任何网络调用之前同步检出，直接返回调用方，
// 不会写入会话。生成失败不属于这一类，它们会变成会话里可见的错误消息。
var (
	ErrConversationNotFound   = errors.New("conversation not found")
	ErrEmptyContent           = errors.New("message content is empty")
	ErrInvalidSender          = errors.New("sender must be 'user' or 'ai'")
	ErrEditTargetOutOfRange   = errors.New("visible message index out of range")
	ErrEditTargetNotUser      = errors.New("only user messages can be edited")
	ErrConcurrentModification = errors.New("conversation was modified concurrently")
)

// MessageOptions 是 Append/Edit 共享的可选参数。
// SystemPrompt 用指针区分三种语义：nil 不改动现有 system 消息，
// 指向空串则删除，指向非空文本则就地替换或插入到序列开头。
type MessageOptions struct {
	SystemPrompt *string
	ModelConfig  *model.ModelConfig
}

// ConversationService 维护会话聚合的全部状态迁移：
// 创建/查询/删除，以及最核心的追加消息与编辑消息两个变更操作。
type ConversationService interface {
	Create(ctx context.Context, title string) (*model.Conversation, error)
	Get(ctx context.Context, id string) (*model.Conversation, error)
	List(ctx context.Context) ([]model.Conversation, error)
	Delete(ctx context.Context, id string) error
	AppendMessage(ctx context.Context, id, content, sender string, opts MessageOptions) (*model.Conversation, error)
	EditMessage(ctx context.Context, id string, visibleIndex int, newContent string, opts MessageOptions) (*model.Conversation, error)
}

type conversationService struct {
	repo repository.ConversationRepository
	chat ChatService
}

// NewConversationService 创建一个新的 ConversationService。
func NewConversationService(repo repository.ConversationRepository, chat ChatService) ConversationService {
	return &conversationService{repo: repo, chat: chat}
}

// Create 创建一个空会话。
func (s *conversationService) Create(ctx context.Context, title string) (*model.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "新对话"
	}
	now := time.Now()
	conv := &model.Conversation{
		ID:        uuid.NewString(),
		Title:     title,
		Messages:  []model.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// Get 按 ID 加载会话。
func (s *conversationService) Get(ctx context.Context, id string) (*model.Conversation, error) {
	conv, err := s.repo.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrConversationNotFound
	}
	return conv, err
}

// List 返回全部会话。
func (s *conversationService) List(ctx context.Context) ([]model.Conversation, error) {
	return s.repo.List(ctx)
}

// Delete 删除会话。
func (s *conversationService) Delete(ctx context.Context, id string) error {
	err := s.repo.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrConversationNotFound
	}
	return err
}

// AppendMessage 向会话追加一条消息。
// sender 为 user 时走完整生成链路：把更新后的完整消息序列交给编排服务
// （当前用户消息已在序列中，不再单独传参 —— 这是对历史重复消息缺陷的修复），
// 成功则追加助手回复，失败则把错误包装成一条可见的助手消息。
// 整个变更最后一次性落库。
func (s *conversationService) AppendMessage(ctx context.Context, id, content, sender string, opts MessageOptions) (*model.Conversation, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if sender != model.SenderUser && sender != model.SenderAI {
		return nil, ErrInvalidSender
	}

	conv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	// system 提示的增删改在追加新消息之前完成
	applySystemPrompt(conv, opts.SystemPrompt)

	var msg model.Message
	if sender == model.SenderAI {
		msg = mapper.NewAssistantMessage(content)
	} else {
		msg = mapper.NewUserMessage(content)
	}
	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = time.Now()

	if sender == model.SenderUser {
		reply := s.generateReply(ctx, conv, opts.ModelConfig)
		conv.Messages = append(conv.Messages, reply)
		conv.UpdatedAt = time.Now()
	}

	return s.save(ctx, conv)
}

// EditMessage 重写历史上的一条用户消息：覆盖其内容和时间戳，丢弃其后的
// 全部消息（编辑过去的一轮会使下游全部失效），再对截断后的历史重新生成回复。
func (s *conversationService) EditMessage(ctx context.Context, id string, visibleIndex int, newContent string, opts MessageOptions) (*model.Conversation, error) {
	newContent = strings.TrimSpace(newContent)
	if newContent == "" {
		return nil, ErrEmptyContent
	}

	conv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	abs, ok := mapper.VisibleIndexToAbsoluteIndex(conv.Messages, visibleIndex)
	if !ok {
		return nil, ErrEditTargetOutOfRange
	}
	if conv.Messages[abs].Sender != model.SenderUser {
		return nil, ErrEditTargetNotUser
	}

	applySystemPrompt(conv, opts.SystemPrompt)
	// system 消息的插入/删除会移动绝对下标，按可见下标重新换算
	abs, ok = mapper.VisibleIndexToAbsoluteIndex(conv.Messages, visibleIndex)
	if !ok {
		return nil, ErrEditTargetOutOfRange
	}

	conv.Messages[abs].Content = newContent
	conv.Messages[abs].Timestamp = time.Now()
	conv.Messages = conv.Messages[:abs+1]
	conv.UpdatedAt = time.Now()

	reply := s.generateReply(ctx, conv, opts.ModelConfig)
	conv.Messages = append(conv.Messages, reply)

	return s.save(ctx, conv)
}

func (s *conversationService) save(ctx context.Context, conv *model.Conversation) (*model.Conversation, error) {
	if err := s.repo.Save(ctx, conv); err != nil {
		switch {
		case errors.Is(err, repository.ErrVersionConflict):
			return nil, ErrConcurrentModification
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrConversationNotFound
		default:
			return nil, err
		}
	}
	return conv, nil
}

// generateReply 把完整的、已更新的消息序列交给编排服务生成回复。
// 生成失败是内容层面的结果而不是操作层面的失败：错误被包装成一条
// 正常落库、对用户可见的助手消息，本次变更操作照常成功。
func (s *conversationService) generateReply(ctx context.Context, conv *model.Conversation, mc *model.ModelConfig) (msg model.Message) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("生成回复时发生未预期错误: %v", r)
			msg = mapper.NewAssistantMessage(fmt.Sprintf("❌ **Unexpected Error**: %v", r))
		}
	}()

	result := s.chat.GenerateResponse(ctx, model.ChatRequest{
		Messages: conv.Messages,
		Config:   mc,
	})
	if !result.Success {
		log.Warnf("AI 生成失败: code=%s message=%s", result.Error.Code, result.Error.Message)
		return mapper.NewAssistantMessage(fmt.Sprintf("❌ **AI Error**: %s", result.Error.Message))
	}
	return mapper.NewAssistantMessage(result.Data.Content)
}

// applySystemPrompt 维护"至多一条 system 消息且必须在首位"的不变量。
// prompt 为 nil 不动现有 system 消息；空串删除；非空文本就地替换或插入到开头。
func applySystemPrompt(conv *model.Conversation, prompt *string) {
	if prompt == nil {
		return
	}
	text := strings.TrimSpace(*prompt)
	idx := mapper.SystemMessageIndex(conv.Messages)
	switch {
	case text == "":
		if idx >= 0 {
			conv.Messages = append(conv.Messages[:idx], conv.Messages[idx+1:]...)
		}
	case idx >= 0:
		// 就地替换，位置不变
		conv.Messages[idx].Content = text
		conv.Messages[idx].Timestamp = time.Now()
	default:
		sys := mapper.NewSystemMessage(text)
		conv.Messages = append([]model.Message{sys}, conv.Messages...)
	}
}
