package model

// ModelConfig 是每次生成请求可调的模型参数，缺省项由编排服务用默认配置补齐。
// Temperature/TopP/MaxOutputTokens 用指针区分"未提供"和零值。
type ModelConfig struct {
	Provider        string   `json:"provider,omitempty"`
	ModelName       string   `json:"modelName,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
	BackendURL      string   `json:"backendUrl,omitempty"`
}

// ChatRequest 是聊天编排服务的入参：完整的消息历史加可选配置。
// 历史里已经包含当前用户消息，不允许再单独附带一条"当前消息"。
type ChatRequest struct {
	Messages           []Message    `json:"messages"`
	Config             *ModelConfig `json:"config,omitempty"`
	MaxContextMessages int          `json:"maxContextMessages,omitempty"`
}

// ChatResponse 是一次成功生成的结果。
type ChatResponse struct {
	Content  string `json:"content"`
	Model    string `json:"model"`
	Provider string `json:"provider"`
}
