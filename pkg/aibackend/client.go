// Package aibackend 封装对外部 AI 推理后端的 HTTP 访问。
// 本包只做传输：一个生成端点、一个健康检查端点，错误按类别区分，不含业务逻辑。
package aibackend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"ai-chat-go/internal/model"
)

const (
	defaultTimeout     = 60 * time.Second
	healthCheckTimeout = 5 * time.Second
)

// ErrEmptyResponse 表示后端返回了 2xx 但正文去除空白后为空。
var ErrEmptyResponse = errors.New("ai backend returned an empty response")

// APIError 表示后端返回了非 2xx 状态码。
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ai backend returned status %d: %s", e.Status, e.Body)
}

// ConnectionError 表示传输层未能触达后端（包括超时），与 APIError 的区别是
// 根本没有收到响应，只能靠类别而不是状态码区分。
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cannot reach ai backend at %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Config 是客户端的运行时配置。配置整体作为不可变快照原子替换，
// 运行中修改后端地址不需要重建客户端，也不会影响在途请求。
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// GenerateOptions 是一次生成调用的已解析参数（默认值合并在编排层完成）。
type GenerateOptions struct {
	Provider        string
	ModelName       string
	Temperature     float64
	TopP            float64
	MaxOutputTokens int
	// BackendURL 非空时覆盖客户端配置中的 BaseURL，仅对本次请求生效。
	BackendURL string
}

// 生成端点的请求/响应体，与后端 /invoke 的 JSON 契约一一对应。
type generateRequest struct {
	Messages      []model.AIMessage `json:"messages"`
	Temperature   float64           `json:"temperature"`
	TopP          float64           `json:"top_p"`
	ModelName     string            `json:"model_name"`
	ModelProvider string            `json:"model_provider"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Client 是 AI 后端的 HTTP 客户端。每次调用相互独立、无共享状态，
// 并发调用不需要额外协调。
type Client struct {
	cfg        atomic.Value // Config
	httpClient *http.Client
}

// NewClient 创建一个新的后端客户端。
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := &Client{httpClient: &http.Client{}}
	c.cfg.Store(cfg)
	return c
}

// Config 返回当前配置快照。
func (c *Client) Config() Config {
	return c.cfg.Load().(Config)
}

// SetConfig 原子替换客户端配置，用于运行时切换后端地址或超时。
func (c *Client) SetConfig(cfg Config) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c.cfg.Store(cfg)
}

// GenerateResponse 调用生成端点并返回去除首尾空白后的文本。
//   - 非 2xx → *APIError
//   - 2xx 但正文为空 → ErrEmptyResponse
//   - 传输失败/超时 → *ConnectionError
func (c *Client) GenerateResponse(ctx context.Context, messages []model.AIMessage, opts GenerateOptions) (string, error) {
	cfg := c.Config()
	base := cfg.BaseURL
	if opts.BackendURL != "" {
		base = opts.BackendURL
	}

	payload, err := json.Marshal(generateRequest{
		Messages:      messages,
		Temperature:   opts.Temperature,
		TopP:          opts.TopP,
		ModelName:     opts.ModelName,
		ModelProvider: opts.Provider,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal generate request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/invoke", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &ConnectionError{Addr: base, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ConnectionError{Addr: base, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	var out generateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to decode generate response: %w", err)
	}

	text := strings.TrimSpace(out.Response)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// IsHealthy 探测健康检查端点，任何失败都返回 false，从不报错。
// 超时远小于生成调用，只用于诊断，不会阻塞主链路。
func (c *Client) IsHealthy(ctx context.Context) bool {
	cfg := c.Config()

	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.BaseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
