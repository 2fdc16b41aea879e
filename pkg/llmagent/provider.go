package llmagent

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChainProvider adapts langchaingo's llms.Model to the Provider seam
// for any OpenAI-compatible chat-completions endpoint, carrying tool-call
// turns rather than a single prompt/response exchange.
type LangChainProvider struct {
	model llms.Model
}

// NewLangChainProvider builds a LangChainProvider against baseURL with the
// given API key, for any OpenAI-compatible endpoint.
func NewLangChainProvider(baseURL, apiKey, defaultModel string) (*LangChainProvider, error) {
	model, err := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithModel(defaultModel),
		openai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("llmagent: init langchaingo provider: %w", err)
	}
	return &LangChainProvider{model: model}, nil
}

// Generate implements Provider.
func (p *LangChainProvider) Generate(ctx context.Context, model string, temperature float64, messages []Message, tools []ToolDefinition) (Response, error) {
	content := toLangChainMessages(messages)

	opts := []llms.CallOption{
		llms.WithModel(model),
		llms.WithTemperature(temperature),
	}
	if len(tools) > 0 {
		opts = append(opts, llms.WithTools(toLangChainTools(tools)))
	}

	resp, err := p.model.GenerateContent(ctx, content, opts...)
	if err != nil {
		return Response{}, fmt.Errorf("llmagent: provider GenerateContent: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("llmagent: provider returned no choices")
	}
	choice := resp.Choices[0]

	out := Response{
		Content:    choice.Content,
		StopReason: choice.StopReason,
	}
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.FunctionCall.Name,
			Arguments: tc.FunctionCall.Arguments,
		})
	}

	if v, ok := choice.GenerationInfo["PromptTokens"].(int); ok {
		out.InputTokens = v
	}
	if v, ok := choice.GenerationInfo["CompletionTokens"].(int); ok {
		out.OutputTokens = v
	}

	return out, nil
}

func toLangChainMessages(messages []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, m.Content))
		case RoleUser:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, m.Content))
		case RoleAssistant:
			parts := []llms.ContentPart{}
			if m.Content != "" {
				parts = append(parts, llms.TextContent{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, llms.ToolCall{
					ID:           tc.ID,
					Type:         "function",
					FunctionCall: &llms.FunctionCall{Name: tc.Name, Arguments: tc.Arguments},
				})
			}
			out = append(out, llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: parts})
		case RoleTool:
			out = append(out, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{
					llms.ToolCallResponse{ToolCallID: m.ToolCallID, Content: m.Content},
				},
			})
		}
	}
	return out
}

func toLangChainTools(tools []ToolDefinition) []llms.Tool {
	out := make([]llms.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}
