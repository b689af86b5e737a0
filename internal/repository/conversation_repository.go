// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/go-redis/redis/v8"

	"ai-chat-go/internal/model"
)

var (
	// ErrNotFound 表示目标会话不存在。
	ErrNotFound = errors.New("conversation not found")
	// ErrAlreadyExists 表示创建时发现同 ID 会话已存在。
	ErrAlreadyExists = errors.New("conversation already exists")
	// ErrVersionConflict 表示保存时存储中的版本已被并发修改推进。
	ErrVersionConflict = errors.New("conversation was modified concurrently")
)

// ConversationRepository 定义了会话聚合的整体读写接口。
// 会话以单个 JSON 文档形式存储，每次变更是 load→mutate→save 的整体替换；
// Save 携带读取时的版本号做乐观并发检查。
type ConversationRepository interface {
	Create(ctx context.Context, conv *model.Conversation) error
	Get(ctx context.Context, id string) (*model.Conversation, error)
	List(ctx context.Context) ([]model.Conversation, error)
	Save(ctx context.Context, conv *model.Conversation) error
	Delete(ctx context.Context, id string) error
}

type redisConversationRepository struct {
	rdb *redis.Client
}

// NewConversationRepository 创建一个基于 Redis 的会话仓库。
func NewConversationRepository(rdb *redis.Client) ConversationRepository {
	return &redisConversationRepository{rdb: rdb}
}

func conversationKey(id string) string {
	return fmt.Sprintf("conversation:%s", id)
}

// Create 写入一个新会话，同 ID 已存在时报错。
func (r *redisConversationRepository) Create(ctx context.Context, conv *model.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}
	ok, err := r.rdb.SetNX(ctx, conversationKey(conv.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	if !ok {
		return ErrAlreadyExists
	}
	return nil
}

// Get 按 ID 加载完整会话文档。
func (r *redisConversationRepository) Get(ctx context.Context, id string) (*model.Conversation, error) {
	data, err := r.rdb.Get(ctx, conversationKey(id)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	var conv model.Conversation
	if err := json.Unmarshal([]byte(data), &conv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation: %w", err)
	}
	return &conv, nil
}

// List 扫描全部会话并按最近更新时间倒序返回。
func (r *redisConversationRepository) List(ctx context.Context) ([]model.Conversation, error) {
	keys, err := r.rdb.Keys(ctx, "conversation:*").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to scan conversation keys: %w", err)
	}
	conversations := make([]model.Conversation, 0, len(keys))
	for _, k := range keys {
		data, getErr := r.rdb.Get(ctx, k).Result()
		if getErr != nil {
			// 扫描和读取之间 key 可能被删除，跳过即可
			continue
		}
		var conv model.Conversation
		if err := json.Unmarshal([]byte(data), &conv); err != nil {
			continue
		}
		conversations = append(conversations, conv)
	}
	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].UpdatedAt.After(conversations[j].UpdatedAt)
	})
	return conversations, nil
}

// Save 整体写回会话文档。通过 WATCH 事务校验存储中的版本号仍等于
// 读取时的版本，已被并发推进则返回 ErrVersionConflict，调用方的变更被拒绝。
// 成功后 conv.Version 递增。
func (r *redisConversationRepository) Save(ctx context.Context, conv *model.Conversation) error {
	key := conversationKey(conv.ID)
	expected := conv.Version

	next := *conv
	next.Version = expected + 1
	data, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	txn := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read conversation for save: %w", err)
		}
		var stored model.Conversation
		if err := json.Unmarshal([]byte(current), &stored); err != nil {
			return fmt.Errorf("failed to unmarshal stored conversation: %w", err)
		}
		if stored.Version != expected {
			return ErrVersionConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}

	err = r.rdb.Watch(ctx, txn, key)
	if err == redis.TxFailedErr {
		// WATCH 的 key 在事务提交前被并发写入
		return ErrVersionConflict
	}
	if err != nil {
		return err
	}
	conv.Version = next.Version
	return nil
}

// Delete 删除会话文档。
func (r *redisConversationRepository) Delete(ctx context.Context, id string) error {
	n, err := r.rdb.Del(ctx, conversationKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
