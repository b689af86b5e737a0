package model

import "time"

// SavedPrompt 是命名的系统提示模板，携带版本历史。
// 应用某个模板即取其最新版本的正文作为会话的 system 消息。
type SavedPrompt struct {
	ID        string          `gorm:"type:char(36);primaryKey" json:"id"`
	Name      string          `gorm:"type:varchar(255);not null;uniqueIndex" json:"name"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Versions  []PromptVersion `gorm:"foreignKey:PromptID;references:ID;constraint:OnDelete:CASCADE" json:"versions,omitempty"`
}

func (SavedPrompt) TableName() string {
	return "saved_prompts"
}

// PromptVersion 是模板的一个不可变版本，Number 从 1 起单调递增。
type PromptVersion struct {
	ID        string    `gorm:"type:char(36);primaryKey" json:"id"`
	PromptID  string    `gorm:"type:char(36);not null;index" json:"promptId"`
	Number    int       `gorm:"not null" json:"number"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

func (PromptVersion) TableName() string {
	return "prompt_versions"
}
