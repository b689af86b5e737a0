package model

import "time"

// Conversation 代表一个完整的会话聚合：有序消息序列加元数据。
// 不变量：最多只有一条 system 消息，且存在时必须位于 Messages[0]。
// 每次变更都是整体 load→mutate→save，Version 用于保存时的乐观并发检查。
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// VisibleCount 返回对用户可见（非 system）的消息数量。
func (c *Conversation) VisibleCount() int {
	n := 0
	for _, m := range c.Messages {
		if m.IsVisible() {
			n++
		}
	}
	return n
}
