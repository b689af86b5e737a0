package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"ai-chat-go/internal/model"
)

// ErrPromptNotFound 表示目标提示模板不存在。
var ErrPromptNotFound = errors.New("prompt not found")

// PromptRepository 定义了系统提示模板的 CRUD 接口。
type PromptRepository interface {
	Create(ctx context.Context, prompt *model.SavedPrompt) error
	List(ctx context.Context, page, pageSize int) ([]model.SavedPrompt, int64, error)
	GetByID(ctx context.Context, id string) (*model.SavedPrompt, error)
	UpdateName(ctx context.Context, id, name string) error
	AppendVersion(ctx context.Context, version *model.PromptVersion) error
	LatestVersion(ctx context.Context, promptID string) (*model.PromptVersion, error)
	Delete(ctx context.Context, id string) error
}

type gormPromptRepository struct {
	db *gorm.DB
}

// NewPromptRepository 创建一个基于 gorm 的提示模板仓库。
func NewPromptRepository(db *gorm.DB) PromptRepository {
	return &gormPromptRepository{db: db}
}

// Create 创建模板及其初始版本（关联一并写入）。
func (r *gormPromptRepository) Create(ctx context.Context, prompt *model.SavedPrompt) error {
	if err := r.db.WithContext(ctx).Create(prompt).Error; err != nil {
		return fmt.Errorf("failed to create prompt: %w", err)
	}
	return nil
}

// List 分页返回模板列表（不含版本正文）及总数。
func (r *gormPromptRepository) List(ctx context.Context, page, pageSize int) ([]model.SavedPrompt, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&model.SavedPrompt{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count prompts: %w", err)
	}

	var prompts []model.SavedPrompt
	err := r.db.WithContext(ctx).
		Order("updated_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&prompts).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list prompts: %w", err)
	}
	return prompts, total, nil
}

// GetByID 返回模板及其全部版本（按版本号升序）。
func (r *gormPromptRepository) GetByID(ctx context.Context, id string) (*model.SavedPrompt, error) {
	var prompt model.SavedPrompt
	err := r.db.WithContext(ctx).
		Preload("Versions", func(db *gorm.DB) *gorm.DB { return db.Order("number ASC") }).
		First(&prompt, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPromptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prompt: %w", err)
	}
	return &prompt, nil
}

// UpdateName 重命名模板。
func (r *gormPromptRepository) UpdateName(ctx context.Context, id, name string) error {
	res := r.db.WithContext(ctx).Model(&model.SavedPrompt{}).Where("id = ?", id).Update("name", name)
	if res.Error != nil {
		return fmt.Errorf("failed to rename prompt: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrPromptNotFound
	}
	return nil
}

// AppendVersion 追加一个新版本并刷新模板的更新时间。
func (r *gormPromptRepository) AppendVersion(ctx context.Context, version *model.PromptVersion) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.SavedPrompt{}).Where("id = ?", version.PromptID).Update("updated_at", version.CreatedAt)
		if res.Error != nil {
			return fmt.Errorf("failed to touch prompt: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrPromptNotFound
		}
		if err := tx.Create(version).Error; err != nil {
			return fmt.Errorf("failed to append prompt version: %w", err)
		}
		return nil
	})
}

// LatestVersion 返回模板的最新版本。
func (r *gormPromptRepository) LatestVersion(ctx context.Context, promptID string) (*model.PromptVersion, error) {
	var version model.PromptVersion
	err := r.db.WithContext(ctx).
		Where("prompt_id = ?", promptID).
		Order("number DESC").
		First(&version).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPromptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest prompt version: %w", err)
	}
	return &version, nil
}

// Delete 删除模板及其全部版本。
func (r *gormPromptRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("prompt_id = ?", id).Delete(&model.PromptVersion{}).Error; err != nil {
			return fmt.Errorf("failed to delete prompt versions: %w", err)
		}
		res := tx.Where("id = ?", id).Delete(&model.SavedPrompt{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete prompt: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrPromptNotFound
		}
		return nil
	})
}
