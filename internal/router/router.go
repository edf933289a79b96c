// Package router implements the model router client described in spec
// §4.6: a thin wrapper around an OpenAI-wire-compatible chat-completions
// and embeddings proxy, a hot-swappable model catalog, and error
// classification into the core's error taxonomy. Grounded on the teacher's
// internal/agent/providers/openai.go (go-openai client usage, retryable
// error classification) and internal/models/catalog.go + fallback.go
// (catalog lookups, FailoverError reason classification), generalized from
// a multi-provider SDK fan-out to a single OpenAI-shaped proxy endpoint
// since the spec describes exactly one upstream protocol, plus a second
// Anthropic Messages-API backend (per-model catalog entry's Provider
// field) grounded on the teacher's providers/anthropic.go and
// goadesign-goa-ai's features/model/anthropic/client.go — a non-streaming
// anthropic.Client.Messages.New call, translated back into the same
// types.ChatResponse shape the OpenAI path returns, so callers never know
// which wire protocol actually served a given model.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/sashabaranov/go-openai"

	"github.com/Najia-afk/aria-core/pkg/errs"
	"github.com/Najia-afk/aria-core/pkg/types"
)

// Config configures the router client.
type Config struct {
	BaseURL string
	APIKey  string
	// AnthropicBaseURL / AnthropicAPIKey configure the second catalog
	// provider backend, used for any model whose catalog entry declares
	// provider: anthropic.
	AnthropicBaseURL string
	AnthropicAPIKey  string
	// Timeout bounds a single chat-completions or embeddings call
	// (§4.6 default 60s).
	Timeout time.Duration
}

// DefaultTimeout matches the spec's per-call default.
const DefaultTimeout = 60 * time.Second

// ProviderAnthropic is the catalog Provider value that routes a model to
// the Anthropic Messages API instead of the OpenAI-wire proxy.
const ProviderAnthropic = "anthropic"

// Client talks to the proxy on behalf of every skill and the cognition
// pipeline. It is safe for concurrent use; the catalog may be swapped at
// runtime via SetCatalog.
type Client struct {
	http      *openai.Client
	anthropic anthropic.Client
	timeout   time.Duration

	mu      sync.RWMutex
	catalog *types.ModelCatalog
}

// New constructs a Client pointed at an OpenAI-compatible proxy, plus an
// Anthropic Messages API client for catalog entries with provider:
// anthropic.
func New(cfg Config, catalog *types.ModelCatalog) *Client {
	oaiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oaiCfg.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	anthOpts := []option.RequestOption{option.WithAPIKey(cfg.AnthropicAPIKey)}
	if cfg.AnthropicBaseURL != "" {
		anthOpts = append(anthOpts, option.WithBaseURL(cfg.AnthropicBaseURL))
	}

	return &Client{
		http:      openai.NewClientWithConfig(oaiCfg),
		anthropic: anthropic.NewClient(anthOpts...),
		timeout:   timeout,
		catalog:   catalog,
	}
}

// SetCatalog swaps the model catalog atomically.
func (c *Client) SetCatalog(catalog *types.ModelCatalog) {
	c.mu.Lock()
	c.catalog = catalog
	c.mu.Unlock()
}

func (c *Client) modelMeta(model string) (types.ModelMeta, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.catalog == nil {
		return types.ModelMeta{}, false
	}
	meta, ok := c.catalog.Models[model]
	return meta, ok
}

// ChatCompletion issues POST /v1/chat/completions. costCeilingUSD, when
// positive, bounds the estimated cost of the call (prompt tokens at
// cost_in plus max_tokens at cost_out, from the catalog); exceeding it
// fails fast with BudgetExceeded before any network call is made.
func (c *Client) ChatCompletion(ctx context.Context, req types.ChatRequest, costCeilingUSD float64) (*types.ChatResponse, error) {
	meta, known := c.modelMeta(req.Model)
	if len(req.Tools) > 0 && known && !meta.ToolCalling {
		return nil, errs.IncompatibleModel("model %q does not support tool calling", req.Model)
	}

	if costCeilingUSD > 0 && known {
		estimated := EstimateCost(meta, estimatePromptTokens(req.Messages), req.MaxTokens)
		if estimated > costCeilingUSD {
			return nil, errs.BudgetExceeded("estimated cost $%.4f exceeds ceiling $%.4f for model %q", estimated, costCeilingUSD, req.Model)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if meta.Provider == ProviderAnthropic {
		return c.anthropicChatCompletion(ctx, req)
	}

	oaiReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    toOpenAIMessages(req.Messages),
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}
	if len(req.Tools) > 0 {
		oaiReq.Tools = toOpenAITools(req.Tools)
	}

	resp, err := c.http.CreateChatCompletion(ctx, oaiReq)
	if err != nil {
		return nil, classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, errs.Unavailable("model %q returned no choices", req.Model)
	}

	return &types.ChatResponse{
		Content:          resp.Choices[0].Message.Content,
		FinishReason:     string(resp.Choices[0].FinishReason),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// anthropicChatCompletion issues a non-streaming Messages.New call for
// catalog models whose provider is "anthropic".
func (c *Client) anthropicChatCompletion(ctx context.Context, req types.ChatRequest) (*types.ChatResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	system, msgs := toAnthropicMessages(req.Messages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
	}
	if len(system) > 0 {
		params.System = system
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if len(req.Tools) > 0 {
		params.Tools = toAnthropicTools(req.Tools)
	}

	msg, err := c.anthropic.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyAnthropicError(err)
	}

	var content strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	return &types.ChatResponse{
		Content:          content.String(),
		FinishReason:     string(msg.StopReason),
		PromptTokens:     int(msg.Usage.InputTokens),
		CompletionTokens: int(msg.Usage.OutputTokens),
	}, nil
}

func toAnthropicMessages(messages []types.ChatMessage) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var system []anthropic.TextBlockParam
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
			continue
		}
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return system, out
}

func toAnthropicTools(tools []types.ToolSpec) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		raw, err := json.Marshal(map[string]any{
			"type":       "object",
			"properties": t.Parameters,
		})
		if err != nil {
			continue
		}
		var schema anthropic.ToolInputSchemaParam
		if json.Unmarshal(raw, &schema) != nil {
			continue
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if toolParam.OfTool != nil {
			toolParam.OfTool.Description = anthropic.String(t.Description)
		}
		out = append(out, toolParam)
	}
	return out
}

// classifyAnthropicError mirrors classifyError's taxonomy for the
// Anthropic Messages API's *anthropic.Error.
func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return errs.RateLimited("rate limited by model provider: %s", apiErr.Error())
		case apiErr.StatusCode >= 500:
			return errs.Retryable(err, "model provider server error (%d): %s", apiErr.StatusCode, apiErr.Error())
		case apiErr.StatusCode >= 400:
			return errs.Validation("model provider rejected request (%d): %s", apiErr.StatusCode, apiErr.Error())
		}
	}
	if isTimeoutErr(err) {
		return errs.Retryable(err, "model provider call timed out")
	}
	return errs.Internal(err, "model provider call failed")
}

// Embeddings issues POST /v1/embeddings.
func (c *Client) Embeddings(ctx context.Context, req types.EmbeddingRequest) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.http.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(req.Model),
		Input: req.Input,
	})
	if err != nil {
		return nil, classifyError(err)
	}

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

// EstimateCost computes the USD cost of a call from catalog pricing, given
// in USD per million tokens (§3, §4.6).
func EstimateCost(meta types.ModelMeta, promptTokens, maxTokens int) float64 {
	in := float64(promptTokens) / 1_000_000 * meta.CostIn
	out := float64(maxTokens) / 1_000_000 * meta.CostOut
	return in + out
}

// estimatePromptTokens uses the spec's 4-chars/token rule of thumb; the
// cognition pipeline uses tiktoken-go for a precise count where it matters
// (compression, working-memory budget) but the router only needs a rough
// pre-flight estimate to guard the cost ceiling.
func estimatePromptTokens(messages []types.ChatMessage) int {
	chars := 0
	for _, m := range messages {
		chars += len(m.Content)
	}
	return chars / 4
}

func toOpenAIMessages(messages []types.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

func toOpenAITools(tools []types.ToolSpec) []openai.Tool {
	out := make([]openai.Tool, len(tools))
	for i, t := range tools {
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return out
}

// classifyError maps a go-openai error into the core's error taxonomy:
// HTTP 429 -> RateLimited, 5xx -> Retryable, other 4xx -> Validation
// ("permanent fail" per §4.6 — the request itself is malformed or
// unauthorized and a retry will not help), anything else -> Internal.
func classifyError(err error) error {
	var apiErr *openai.APIError
	if ok := asAPIError(err, &apiErr); ok {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return errs.RateLimited("rate limited by model provider: %s", apiErr.Message)
		case apiErr.HTTPStatusCode >= 500:
			return errs.Retryable(err, "model provider server error (%d): %s", apiErr.HTTPStatusCode, apiErr.Message)
		case apiErr.HTTPStatusCode >= 400:
			return errs.Validation("model provider rejected request (%d): %s", apiErr.HTTPStatusCode, apiErr.Message)
		}
	}
	if isTimeoutErr(err) {
		return errs.Retryable(err, "model provider call timed out")
	}
	return errs.Internal(err, "model provider call failed")
}

func asAPIError(err error, target **openai.APIError) bool {
	apiErr, ok := err.(*openai.APIError)
	if ok {
		*target = apiErr
	}
	return ok
}

func isTimeoutErr(err error) bool {
	if err == nil {
		return false
	}
	if err == context.DeadlineExceeded {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "deadline exceeded") ||
		strings.Contains(strings.ToLower(err.Error()), "timeout")
}
