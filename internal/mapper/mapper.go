// Package mapper 是消息格式转换与角色推导的唯一入口：
// 持久化消息 ↔ AI 线上格式、消息工厂、校验、可见下标换算。
// 本包是纯函数集合，不做任何 I/O，也从不向外抛错 —— 非法输入通过校验结果报告。
package mapper

import (
	"fmt"
	"strings"
	"time"

	"ai-chat-go/internal/model"
	"ai-chat-go/pkg/log"
)

// DefaultMaxContextMessages 是发送给 AI 后端的默认上下文窗口大小。
const DefaultMaxContextMessages = 10

// ToAIMessages 把持久化消息逐条转换为线上格式。
// 角色解析优先级：显式 Role > Sender 推导（ai→assistant，user→user）> 兜底 user。
// 兜底分支在数据规整时不应出现，按可恢复异常处理，只记 warn 不报错。
func ToAIMessages(messages []model.Message) []model.AIMessage {
	out := make([]model.AIMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, model.AIMessage{
			Role:    ResolveRole(m),
			Content: strings.TrimSpace(m.Content),
		})
	}
	return out
}

// ResolveRole 返回消息面向 AI 后端的规范角色。
func ResolveRole(m model.Message) string {
	if m.Role != "" {
		return m.Role
	}
	switch m.Sender {
	case model.SenderAI:
		return model.RoleAssistant
	case model.SenderUser:
		return model.RoleUser
	default:
		log.Warnf("未知的消息 sender %q，按 user 处理", m.Sender)
		return model.RoleUser
	}
}

// PrepareAIContext 取最近 maxContextMessages 条消息（保持时间顺序）再做格式转换。
// 这是条数硬截断，不做 token 预算；会话足够长时 system 消息可能落在窗口之外
// 而被静默丢弃 —— 该行为保持与线上一致，是否强制保留 system 消息属产品决策。
func PrepareAIContext(messages []model.Message, maxContextMessages int) []model.AIMessage {
	if maxContextMessages <= 0 {
		maxContextMessages = DefaultMaxContextMessages
	}
	if len(messages) > maxContextMessages {
		messages = messages[len(messages)-maxContextMessages:]
	}
	return ToAIMessages(messages)
}

// NewSystemMessage 创建一条 system 消息。
// Sender 取 "ai" 是为了兼容旧版展示逻辑。
func NewSystemMessage(text string) model.Message {
	return model.Message{
		Sender:    model.SenderAI,
		Role:      model.RoleSystem,
		Content:   strings.TrimSpace(text),
		Timestamp: time.Now(),
	}
}

// NewUserMessage 创建一条用户消息。
func NewUserMessage(text string) model.Message {
	return model.Message{
		Sender:    model.SenderUser,
		Role:      model.RoleUser,
		Content:   strings.TrimSpace(text),
		Timestamp: time.Now(),
	}
}

// NewAssistantMessage 创建一条助手消息。
func NewAssistantMessage(text string) model.Message {
	return model.Message{
		Sender:    model.SenderAI,
		Role:      model.RoleAssistant,
		Content:   strings.TrimSpace(text),
		Timestamp: time.Now(),
	}
}

// ValidateMessages 对消息列表做结构校验：空内容、sender 和 role 同时缺失、缺时间戳。
func ValidateMessages(messages []model.Message) model.ValidationResult {
	var issues []string
	for i, m := range messages {
		if strings.TrimSpace(m.Content) == "" {
			issues = append(issues, fmt.Sprintf("message %d: empty content", i))
		}
		if m.Sender == "" && m.Role == "" {
			issues = append(issues, fmt.Sprintf("message %d: missing both sender and role", i))
		}
		if m.Timestamp.IsZero() {
			issues = append(issues, fmt.Sprintf("message %d: missing timestamp", i))
		}
	}
	return model.ValidationResult{Valid: len(issues) == 0, Issues: issues}
}

// SystemMessageIndex 返回 system 消息在序列中的下标，不存在时返回 -1。
func SystemMessageIndex(messages []model.Message) int {
	for i, m := range messages {
		if m.Role == model.RoleSystem {
			return i
		}
	}
	return -1
}

// VisibleIndexToAbsoluteIndex 把"可见消息下标"换算成完整序列（含 system）中的绝对下标。
// 编辑操作里最容易出错的一段下标运算，所以单独成纯函数。
func VisibleIndexToAbsoluteIndex(messages []model.Message, visibleIndex int) (int, bool) {
	if visibleIndex < 0 {
		return 0, false
	}
	seen := 0
	for i, m := range messages {
		if !m.IsVisible() {
			continue
		}
		if seen == visibleIndex {
			return i, true
		}
		seen++
	}
	return 0, false
}
