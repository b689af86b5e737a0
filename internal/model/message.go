// Package model 包含了应用的数据模型定义。
package model

import "time"

// Sender 取值：消息来源标记（偏展示用途的历史字段）。
const (
	SenderUser = "user"
	SenderAI   = "ai"
)

// Role 取值：面向 AI 后端的规范角色。
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message 代表会话中的一条消息。Role 在旧数据上可能为空，
// 此时由 Sender 推导（ai→assistant，user→user），推导逻辑统一放在 mapper 包。
type Message struct {
	ID        string    `json:"id,omitempty"`
	Sender    string    `json:"sender"`
	Role      string    `json:"role,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// IsVisible 判断消息是否对终端用户可见：system 消息不进入对话展示。
func (m Message) IsVisible() bool {
	return m.Role != RoleSystem
}

// AIMessage 是发送给 AI 后端的线上格式，只由 mapper 生成，不落库。
type AIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ValidationResult 是消息列表校验的结果，校验不修改输入。
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues,omitempty"`
}
