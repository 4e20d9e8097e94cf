package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

// GenerationConfig carries the tunables sent with every completion.
type GenerationConfig struct {
	Temperature     float64
	MaxOutputTokens int
}

// Client runs text completions against one model.LLM. Features that use
// different models hold different Clients.
type Client struct {
	llm model.LLM
}

// NewClient wraps a model.LLM.
func NewClient(llm model.LLM) *Client {
	return &Client{llm: llm}
}

// Name returns the underlying model name.
func (c *Client) Name() string {
	if c == nil || c.llm == nil {
		return ""
	}
	return c.llm.Name()
}

// CompleteText runs a non-streaming completion and returns the reply text.
// An empty candidate is an error: callers rely on text being present.
func (c *Client) CompleteText(ctx context.Context, system string, turns []*genai.Content, cfg GenerationConfig) (string, error) {
	if c == nil || c.llm == nil {
		return "", fmt.Errorf("llm client not configured")
	}

	req := buildRequest(system, turns, cfg)
	seq := c.llm.GenerateContent(ctx, req, false)

	var resp *model.LLMResponse
	var err error
	seq(func(r *model.LLMResponse, e error) bool {
		resp = r
		err = e
		return false
	})
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(ExtractText(resp))
	if text == "" {
		return "", fmt.Errorf("empty completion response")
	}
	return text, nil
}

// StreamText runs a streaming completion, invoking onChunk for each
// incremental text piece, and returns the accumulated reply.
func (c *Client) StreamText(ctx context.Context, system string, turns []*genai.Content, cfg GenerationConfig, onChunk func(string)) (string, error) {
	if c == nil || c.llm == nil {
		return "", fmt.Errorf("llm client not configured")
	}

	req := buildRequest(system, turns, cfg)
	seq := c.llm.GenerateContent(ctx, req, true)

	var partials strings.Builder
	var final string
	for resp, err := range seq {
		if err != nil {
			return "", err
		}
		text := ExtractText(resp)
		if text == "" {
			continue
		}
		if resp.Partial {
			partials.WriteString(text)
			if onChunk != nil {
				onChunk(text)
			}
			continue
		}
		final = text
	}

	if final == "" {
		final = partials.String()
	}
	final = strings.TrimSpace(final)
	if final == "" {
		return "", fmt.Errorf("empty completion response")
	}
	return final, nil
}

func buildRequest(system string, turns []*genai.Content, cfg GenerationConfig) *model.LLMRequest {
	genConfig := &genai.GenerateContentConfig{}
	if system != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(system, "system")
	}
	if cfg.Temperature > 0 {
		genConfig.Temperature = genai.Ptr(float32(cfg.Temperature))
	}
	if cfg.MaxOutputTokens > 0 {
		genConfig.MaxOutputTokens = int32(cfg.MaxOutputTokens)
	}
	return &model.LLMRequest{
		Contents: turns,
		Config:   genConfig,
	}
}

// ExtractText concatenates the text parts of a response.
func ExtractText(resp *model.LLMResponse) string {
	if resp == nil || resp.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}
