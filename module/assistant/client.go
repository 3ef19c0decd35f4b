package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// 默认值与 Ollama 本地部署约定一致
const (
	DefaultHost  = "http://localhost:11434"
	DefaultModel = "llama2"

	defaultTimeout     = 120 * time.Second
	healthTimeout      = 5 * time.Second
	defaultTemperature = 0.7
)

type Config struct {
	Host    string        // 形如 http://localhost:11434
	Model   string        // 默认 llama2
	Timeout time.Duration // 默认 120s
}

// Client 是 Ollama 的非流式 HTTP 客户端。
// 错误文案会原样透传给触发 @AI 的用户, 不要随手改。
type Client struct {
	host    string
	model   string
	timeout time.Duration
	hc      *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		host:    cfg.Host,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		hc:      &http.Client{Timeout: cfg.Timeout},
	}
}

type generateReq struct {
	Model   string       `json:"model"`
	Prompt  string       `json:"prompt"`
	Stream  bool         `json:"stream"`
	Options generateOpts `json:"options"`
	System  string       `json:"system,omitempty"`
}

type generateOpts struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type generateResp struct {
	Response string `json:"response"`
	Model    string `json:"model"`
	Done     bool   `json:"done"`
}

// Completion 调 /api/generate 拿一条完整回复。
func (c *Client) Completion(ctx context.Context, prompt, systemPrompt string) (string, error) {
	body, err := json.Marshal(generateReq{
		Model:   c.model,
		Prompt:  prompt,
		Stream:  false,
		Options: generateOpts{Temperature: defaultTemperature},
		System:  systemPrompt,
	})
	if err != nil {
		return "", fmt.Errorf("AI service unavailable: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("AI service unavailable: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", fmt.Errorf("AI service timeout. The request took longer than %d seconds.", int(c.timeout.Seconds()))
		}
		return "", fmt.Errorf("AI service unavailable: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("AI service error: %d", resp.StatusCode)
	}

	var out generateResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("AI service unavailable: %v", err)
	}
	return out.Response, nil
}

type tagsResp struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Health 探测 /api/tags, 返回可用模型名列表。
func (c *Client) Health(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("ollama tags: status %d", resp.StatusCode)
	}
	var out tagsResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(out.Models))
	for _, m := range out.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func (c *Client) Model() string { return c.model }

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ue *url.Error
	return errors.As(err, &ue) && ue.Timeout()
}
