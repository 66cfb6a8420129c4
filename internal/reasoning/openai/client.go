package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	xerrors "OpenAgent-Chain/internal/errors"
	"OpenAgent-Chain/internal/reasoning"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModelName = "gpt-4o-mini"
	defaultTimeout   = 60 * time.Second
)

// Config 描述了调用 OpenAI Chat Completions API 所需的信息。
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client 通过 HTTP 调用 OpenAI 兼容接口实现推理引擎。
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClient 根据配置创建 OpenAI 推理客户端。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("未提供 OpenAI API Key")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModelName
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Decompose 调用大模型将总目标拆解为目标草案序列。
func (c *Client) Decompose(ctx context.Context, objective string) ([]reasoning.GoalDraft, error) {
	content, err := c.complete(ctx, decomposeSystemPrompt, buildDecomposePrompt(objective))
	if err != nil {
		return nil, err
	}

	var decoded struct {
		Goals []reasoning.GoalDraft `json:"goals"`
	}
	if err := json.Unmarshal([]byte(extractJSON(content)), &decoded); err != nil {
		return nil, xerrors.Wrap(reasoning.CodeReasoningFailure, err, "拆解结果无法解析为目标列表")
	}
	if len(decoded.Goals) == 0 {
		return nil, xerrors.New(reasoning.CodeReasoningFailure, "拆解结果不包含任何目标")
	}
	return decoded.Goals, nil
}

// Think 调用大模型针对单个目标给出动作决策。
func (c *Client) Think(ctx context.Context, query reasoning.Query) (*reasoning.Decision, error) {
	content, err := c.complete(ctx, thinkSystemPrompt, buildThinkPrompt(query))
	if err != nil {
		return nil, err
	}

	var decision reasoning.Decision
	if err := json.Unmarshal([]byte(extractJSON(content)), &decision); err != nil {
		return nil, xerrors.Wrap(reasoning.CodeReasoningFailure, err, "推理结果无法解析为动作决策")
	}
	if strings.TrimSpace(decision.Action) == "" {
		return nil, xerrors.New(reasoning.CodeReasoningFailure, "推理结果缺少动作决策")
	}
	return &decision, nil
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	payload, err := c.buildPayload(system, user)
	if err != nil {
		return "", err
	}

	endpoint := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("构建 OpenAI 请求失败: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", xerrors.Wrap(reasoning.CodeReasoningTimeout, err, "推理请求超时")
		}
		return "", xerrors.Wrap(reasoning.CodeReasoningFailure, err, "请求 OpenAI 失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", xerrors.New(reasoning.CodeReasoningFailure,
			fmt.Sprintf("OpenAI 返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", xerrors.Wrap(reasoning.CodeReasoningFailure, err, "解析 OpenAI 响应失败")
	}
	if len(decoded.Choices) == 0 {
		return "", xerrors.New(reasoning.CodeReasoningFailure, "OpenAI 响应中没有有效的 choices")
	}

	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return "", xerrors.New(reasoning.CodeReasoningFailure, "OpenAI 响应内容为空")
	}
	return content, nil
}

func (c *Client) buildPayload(system, user string) ([]byte, error) {
	type message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	body := map[string]any{
		"model": c.model,
		"messages": []message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		"temperature": 0.2,
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("序列化 OpenAI 请求失败: %w", err)
	}
	return encoded, nil
}

// extractJSON 去掉模型偶尔包裹的 Markdown 代码块标记。
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		if idx := strings.LastIndex(content, "```"); idx >= 0 {
			content = content[:idx]
		}
	}
	return strings.TrimSpace(content)
}

var _ reasoning.Engine = (*Client)(nil)
