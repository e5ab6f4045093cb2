// Package litellm implements domain.AIClient against an OpenAI-shaped
// chat-completions proxy. One request per task, tool_choice=required,
// exactly three tools.
package litellm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"log/slog"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/ai-signal-executor/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/ai-signal-executor/internal/adapter/observability"
	"github.com/fairyhunter13/ai-signal-executor/internal/config"
	"github.com/fairyhunter13/ai-signal-executor/internal/domain"
)

// Client implements domain.AIClient over the LLM proxy.
type Client struct {
	cfg config.Config
	hc  *http.Client
}

var _ domain.AIClient = (*Client)(nil)

// New constructs a proxy client with the configured per-call timeout.
func New(cfg config.Config) *Client {
	return &Client{cfg: cfg, hc: &http.Client{Timeout: cfg.LLMTimeout}}
}

func (c *Client) backoffConfig() *backoff.ExponentialBackOff {
	expo := backoff.NewExponentialBackOff()
	maxElapsed, initial, maxInterval, multiplier := c.cfg.GetLLMBackoffConfig()
	expo.MaxElapsedTime = maxElapsed
	expo.InitialInterval = initial
	expo.MaxInterval = maxInterval
	expo.Multiplier = multiplier
	return expo
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
			ToolCalls        []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Decide makes the single decision call and parses the first tool call
// into a Decision. Malformed model output degrades to a format-error
// skip; transport failures and upstream saturation surface as errors so
// the task can be retried.
func (c *Client) Decide(ctx domain.Context, model, systemPrompt, userPrompt string) (domain.Decision, domain.AIMeta, error) {
	meta := domain.AIMeta{Model: model}

	estimate := tokencount.EstimateChat(systemPrompt, userPrompt, model)
	slog.Debug("decision request",
		slog.String("model", model),
		slog.Int("estimated_prompt_tokens", estimate))

	body, err := json.Marshal(map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"tools":       toolSchemas(),
		"tool_choice": "required",
		"temperature": 0.3,
		"max_tokens":  2000,
	})
	if err != nil {
		return domain.Decision{}, meta, fmt.Errorf("op=litellm.Client.Decide: marshal: %w", err)
	}

	var out chatResponse
	op := func() error {
		start := time.Now()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.LLMBaseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.cfg.LLMMasterKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.LLMMasterKey)
		}
		resp, err := c.hc.Do(req)
		observability.LLMRequestsTotal.WithLabelValues(model, outcomeLabel(err, resp)).Inc()
		observability.LLMRequestDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())
		if err != nil {
			if ctx.Err() != nil {
				// Task deadline hit; no point retrying.
				return backoff.Permanent(fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err))
			}
			return fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
		}
		defer func() { _ = resp.Body.Close() }()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			slog.Warn("proxy rate limited", slog.String("model", model))
			return fmt.Errorf("%w: status 429", domain.ErrUpstreamRateLimit)
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			snippet := string(data)
			if len(snippet) > 512 {
				snippet = snippet[:512]
			}
			slog.Warn("proxy 4xx", slog.String("model", model), slog.Int("status", resp.StatusCode), slog.String("body", snippet))
			return backoff.Permanent(fmt.Errorf("%w: chat status %d", domain.ErrUpstreamStatus, resp.StatusCode))
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			slog.Error("proxy non-2xx", slog.String("model", model), slog.Int("status", resp.StatusCode))
			return fmt.Errorf("%w: chat status %d", domain.ErrUpstreamStatus, resp.StatusCode)
		}
		out = chatResponse{}
		if err := json.Unmarshal(data, &out); err != nil {
			return fmt.Errorf("decode: %w", err)
		}
		return nil
	}

	bo := backoff.WithContext(c.backoffConfig(), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return domain.Decision{}, meta, fmt.Errorf("op=litellm.Client.Decide: %w", err)
	}

	meta.TraceID = out.ID
	meta.PromptTokens = out.Usage.PromptTokens
	meta.CompletionTokens = out.Usage.CompletionTokens
	if out.Model != "" {
		meta.Model = out.Model
	}

	if len(out.Choices) == 0 {
		slog.Warn("proxy returned no choices", slog.String("model", model))
		return formatErrorSkip("no choices"), meta, nil
	}
	msg := out.Choices[0].Message
	meta.Reasoning = msg.ReasoningContent

	slog.Info("decision response",
		slog.String("model", meta.Model),
		slog.String("trace_id", meta.TraceID),
		slog.Int("prompt_tokens", out.Usage.PromptTokens),
		slog.Int("completion_tokens", out.Usage.CompletionTokens),
		slog.Int("tool_calls", len(msg.ToolCalls)))

	if len(msg.ToolCalls) == 0 {
		return formatErrorSkip("no tool call"), meta, nil
	}
	if len(msg.ToolCalls) > 1 {
		extra := make([]string, 0, len(msg.ToolCalls)-1)
		for _, tc := range msg.ToolCalls[1:] {
			extra = append(extra, tc.Function.Name)
		}
		slog.Warn("multiple tool calls, honoring first only",
			slog.String("first", msg.ToolCalls[0].Function.Name),
			slog.Any("ignored", extra))
	}
	tc := msg.ToolCalls[0]
	decision := parseToolCall(tc.Function.Name, []byte(tc.Function.Arguments))
	return decision, meta, nil
}

func outcomeLabel(err error, resp *http.Response) string {
	switch {
	case err != nil:
		return "transport_error"
	case resp.StatusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return "ok"
	default:
		return fmt.Sprintf("http_%d", resp.StatusCode)
	}
}
