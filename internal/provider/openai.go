package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"discordqa/internal/domain"

	"github.com/sashabaranov/go-openai"
)

// OpenAI implements domain.ChatProvider for OpenAI and Azure OpenAI chat deployments.
type OpenAI struct {
	client *openai.Client
	model  string
	kind   string
	logger *slog.Logger
}

type OpenAIConfig struct {
	Kind       string // "openai" | "azure"
	APIKey     string
	APIBase    string
	APIVersion string
	Model      string // model name, or deployment name on azure
	Timeout    time.Duration
	Logger     *slog.Logger
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(clientConfig(cfg)),
		model:  cfg.Model,
		kind:   cfg.Kind,
		logger: cfg.Logger,
	}
}

// clientConfig builds the go-openai client configuration for either API flavour.
func clientConfig(cfg OpenAIConfig) openai.ClientConfig {
	var cc openai.ClientConfig
	if cfg.Kind == "azure" {
		cc = openai.DefaultAzureConfig(cfg.APIKey, cfg.APIBase)
		if cfg.APIVersion != "" {
			cc.APIVersion = cfg.APIVersion
		}
		// Model names in requests are already deployment names.
		cc.AzureModelMapperFunc = func(model string) string { return model }
	} else {
		cc = openai.DefaultConfig(cfg.APIKey)
		if cfg.APIBase != "" {
			cc.BaseURL = cfg.APIBase
		}
	}
	cc.HTTPClient = newHTTPClient(cfg.Timeout)
	return cc
}

func (o *OpenAI) Name() string { return o.kind + ":" + o.model }

func (o *OpenAI) Healthy(ctx context.Context) error {
	if _, err := o.client.ListModels(ctx); err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 401 {
			return fmt.Errorf("openai: invalid API key")
		}
		return fmt.Errorf("openai not reachable: %w", err)
	}
	return nil
}

func (o *OpenAI) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = o.model
	}

	body := openai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAIMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		body.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		body.Temperature = float32(req.Temperature)
	}
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	if req.ForceTool != "" {
		body.ToolChoice = openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: req.ForceTool},
		}
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("openai chat: %w", err)
	}
	latency := time.Since(start).Milliseconds()
	o.logger.Debug("chat completion", "model", model, "latency_ms", latency, "tokens", resp.Usage.TotalTokens)

	out := &domain.ChatResponse{
		Message:   domain.Message{Role: domain.RoleAssistant},
		LatencyMs: latency,
		Usage: domain.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if len(resp.Choices) == 0 {
		out.FinishReason = "stop"
		return out, nil
	}

	choice := resp.Choices[0]
	out.FinishReason = string(choice.FinishReason)
	out.Message = fromOpenAIMessage(choice.Message)
	return out, nil
}

func toOpenAIMessages(msgs []domain.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		om := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		out = append(out, om)
	}
	return out
}

func fromOpenAIMessage(m openai.ChatCompletionMessage) domain.Message {
	msg := domain.Message{
		Role:    m.Role,
		Content: m.Content,
	}
	if msg.Role == "" {
		msg.Role = domain.RoleAssistant
	}
	for _, tc := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, domain.ToolCall{
			ID:   tc.ID,
			Type: string(openai.ToolTypeFunction),
			Function: domain.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return msg
}
