package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"ai-chat-go/internal/model"
	"ai-chat-go/internal/repository"
)

// 提示模板的请求级错误。
var (
	ErrPromptNotFound  = errors.New("prompt not found")
	ErrEmptyPromptName = errors.New("prompt name is empty")
	ErrEmptyPromptBody = errors.New("prompt body is empty")
)

// PromptService 管理命名的系统提示模板及其版本历史。
// 模板的最新版本正文可作为 systemPrompt 应用到会话上。
type PromptService interface {
	Create(ctx context.Context, name, body string) (*model.SavedPrompt, error)
	List(ctx context.Context, page, pageSize int) ([]model.SavedPrompt, int64, error)
	Get(ctx context.Context, id string) (*model.SavedPrompt, error)
	Rename(ctx context.Context, id, name string) error
	AppendVersion(ctx context.Context, id, body string) (*model.PromptVersion, error)
	LatestBody(ctx context.Context, id string) (string, error)
	Delete(ctx context.Context, id string) error
}

type promptService struct {
	repo repository.PromptRepository
}

// NewPromptService 创建一个新的 PromptService。
func NewPromptService(repo repository.PromptRepository) PromptService {
	return &promptService{repo: repo}
}

// Create 创建模板并写入版本 1。
func (s *promptService) Create(ctx context.Context, name, body string) (*model.SavedPrompt, error) {
	name = strings.TrimSpace(name)
	body = strings.TrimSpace(body)
	if name == "" {
		return nil, ErrEmptyPromptName
	}
	if body == "" {
		return nil, ErrEmptyPromptBody
	}

	now := time.Now()
	prompt := &model.SavedPrompt{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
		Versions: []model.PromptVersion{{
			ID:        uuid.NewString(),
			Number:    1,
			Body:      body,
			CreatedAt: now,
		}},
	}
	if err := s.repo.Create(ctx, prompt); err != nil {
		return nil, err
	}
	return prompt, nil
}

// List 分页列出模板。
func (s *promptService) List(ctx context.Context, page, pageSize int) ([]model.SavedPrompt, int64, error) {
	return s.repo.List(ctx, page, pageSize)
}

// Get 返回模板及全部版本。
func (s *promptService) Get(ctx context.Context, id string) (*model.SavedPrompt, error) {
	prompt, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrPromptNotFound) {
		return nil, ErrPromptNotFound
	}
	return prompt, err
}

// Rename 重命名模板。
func (s *promptService) Rename(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyPromptName
	}
	err := s.repo.UpdateName(ctx, id, name)
	if errors.Is(err, repository.ErrPromptNotFound) {
		return ErrPromptNotFound
	}
	return err
}

// AppendVersion 在模板上追加一个新版本，版本号取最新版本号 +1。
func (s *promptService) AppendVersion(ctx context.Context, id, body string) (*model.PromptVersion, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyPromptBody
	}

	latest, err := s.repo.LatestVersion(ctx, id)
	if errors.Is(err, repository.ErrPromptNotFound) {
		return nil, ErrPromptNotFound
	}
	if err != nil {
		return nil, err
	}

	version := &model.PromptVersion{
		ID:        uuid.NewString(),
		PromptID:  id,
		Number:    latest.Number + 1,
		Body:      body,
		CreatedAt: time.Now(),
	}
	if err := s.repo.AppendVersion(ctx, version); err != nil {
		if errors.Is(err, repository.ErrPromptNotFound) {
			return nil, ErrPromptNotFound
		}
		return nil, err
	}
	return version, nil
}

// LatestBody 返回模板最新版本的正文，供路由层作为 systemPrompt 使用。
func (s *promptService) LatestBody(ctx context.Context, id string) (string, error) {
	latest, err := s.repo.LatestVersion(ctx, id)
	if errors.Is(err, repository.ErrPromptNotFound) {
		return "", ErrPromptNotFound
	}
	if err != nil {
		return "", err
	}
	return latest.Body, nil
}

// Delete 删除模板及其版本历史。
func (s *promptService) Delete(ctx context.Context, id string) error {
	err := s.repo.Delete(ctx, id)
	if errors.Is(err, repository.ErrPromptNotFound) {
		return ErrPromptNotFound
	}
	return err
}
