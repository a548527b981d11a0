package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	openaiDefaultBase  = "https://api.openai.com/v1"
	openaiDefaultModel = "gpt-4o-mini"
	openaiHTTPTimeout  = 120 * time.Second
	errorBodyMaxChars  = 2000
)

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint
// (OpenAI, OpenRouter, DashScope, local servers). Tool call arguments arrive
// as a JSON string on the wire and are decoded into a map here, so the rest
// of the core never sees raw JSON argument strings.
type OpenAIProvider struct {
	name         string
	apiKey       string
	apiBase      string
	defaultModel string
	client       *http.Client
}

func NewOpenAIProvider(name, apiKey, apiBase, defaultModel string) *OpenAIProvider {
	if name == "" {
		name = "openai"
	}
	if apiBase == "" {
		apiBase = openaiDefaultBase
	}
	if defaultModel == "" {
		defaultModel = openaiDefaultModel
	}
	return &OpenAIProvider{
		name:         name,
		apiKey:       apiKey,
		apiBase:      strings.TrimRight(apiBase, "/"),
		defaultModel: defaultModel,
		client:       &http.Client{Timeout: openaiHTTPTimeout},
	}
}

func (p *OpenAIProvider) Name() string { return p.name }

// --- wire types (OpenAI chat completions) ---

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
}

type wireRequest struct {
	Model     string           `json:"model"`
	Messages  []wireMessage    `json:"messages"`
	Tools     []ToolDefinition `json:"tools,omitempty"`
	MaxTokens int              `json:"max_tokens,omitempty"`
}

type wireResponse struct {
	Choices []struct {
		Message      wireMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Chat sends one chat completion request and normalizes the reply.
func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	wreq := wireRequest{
		Model:     model,
		Messages:  encodeMessages(req.Messages),
		Tools:     CleanToolSchemas(p.name, req.Tools),
		MaxTokens: req.MaxTokens,
	}

	body, err := json.Marshal(wreq)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s chat: %w", p.name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s chat: read body: %w", p.name, err)
	}

	if resp.StatusCode != http.StatusOK {
		snippet := string(raw)
		if len(snippet) > errorBodyMaxChars {
			snippet = snippet[:errorBodyMaxChars]
		}
		return nil, fmt.Errorf("%s chat: HTTP %d: %s", p.name, resp.StatusCode, snippet)
	}

	var wresp wireResponse
	if err := json.Unmarshal(raw, &wresp); err != nil {
		return nil, fmt.Errorf("%s chat: decode response: %w", p.name, err)
	}
	if wresp.Error != nil {
		return nil, fmt.Errorf("%s chat: %s", p.name, wresp.Error.Message)
	}
	if len(wresp.Choices) == 0 {
		return nil, fmt.Errorf("%s chat: empty choices", p.name)
	}

	choice := wresp.Choices[0]
	out := &ChatResponse{
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage:        wresp.Usage,
	}
	for _, wtc := range choice.Message.ToolCalls {
		tc := ToolCall{ID: wtc.ID, Name: wtc.Function.Name}
		if wtc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(wtc.Function.Arguments), &tc.Arguments); err != nil {
				// Malformed arguments still reach the loop; the validator
				// turns the empty map into a replayable error message.
				slog.Warn("provider: undecodable tool arguments", "tool", tc.Name, "error", err)
				tc.Arguments = map[string]interface{}{}
			}
		}
		out.ToolCalls = append(out.ToolCalls, tc)
	}
	return out, nil
}

func encodeMessages(msgs []Message) []wireMessage {
	out := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		wm := wireMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, tc := range m.ToolCalls {
			args, err := json.Marshal(tc.Arguments)
			if err != nil {
				args = []byte("{}")
			}
			wtc := wireToolCall{ID: tc.ID, Type: "function"}
			wtc.Function.Name = tc.Name
			wtc.Function.Arguments = string(args)
			wm.ToolCalls = append(wm.ToolCalls, wtc)
		}
		out = append(out, wm)
	}
	return out
}
