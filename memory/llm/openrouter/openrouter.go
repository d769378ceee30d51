// Package openrouter implements the Summarizer, Merger, and ContextBuilder
// collaborators against the OpenRouter chat-completions API (or any other
// OpenAI-compatible endpoint via BaseURL).
package openrouter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/becomeliminal/memkit/memory"
)

// Defaults for the OpenRouter endpoint.
const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultModel   = "openai/gpt-oss-safeguard-20b"
)

// Config configures the client.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string

	// MaxTokens caps each completion. Default 256.
	MaxTokens int

	// Temperature for all three tasks. Default 0.2.
	Temperature float32
}

// Client implements memory.Summarizer, memory.Merger, and
// memory.ContextBuilder over one chat-completions endpoint.
type Client struct {
	client      *goopenai.Client
	model       string
	maxTokens   int
	temperature float32
}

// New creates a client for the configured endpoint.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 256
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.2
	}

	clientConfig := goopenai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = cfg.BaseURL

	return &Client{
		client:      goopenai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

// Summarize distills text or a conversation into factual memory statements.
func (c *Client) Summarize(ctx context.Context, input memory.Input) (string, error) {
	var prompt string
	if input.Text != "" {
		prompt = "Summarize the following text into one factual memory statement " +
			"about the user. Be concise and neutral.\n\n" +
			"Text: " + input.Text + "\n\nMemory:"
	} else {
		prompt = "Analyze the following conversation and extract key factual memories " +
			"about the user. Summarize into one or more concise memory statements. " +
			"Be neutral and factual.\n\n" +
			"Conversation:\n" + input.Transcript() + "\n\nExtracted Memories:"
	}
	return c.generate(ctx, prompt)
}

// Merge combines two memory statements into a single updated one, keeping
// all valid facts and dropping contradictions.
func (c *Client) Merge(ctx context.Context, oldText, newText string) (string, error) {
	prompt := "You are a factual knowledge merger for an AI memory system.\n" +
		"Combine the two given memory statements into one concise, factual statement.\n" +
		"Keep all valid facts, remove contradictions, and be precise.\n\n" +
		"Old memory: " + oldText + "\n" +
		"New memory: " + newText + "\n\nMerged memory:"
	return c.generate(ctx, prompt)
}

// BuildContext condenses ranked memory texts into one coherent paragraph.
func (c *Client) BuildContext(ctx context.Context, texts []string) (string, error) {
	var joined strings.Builder
	for _, t := range texts {
		joined.WriteString("- ")
		joined.WriteString(t)
		joined.WriteString("\n")
	}
	prompt := "You are an assistant that builds context summaries for an AI agent.\n" +
		"Combine the following memory statements into one concise paragraph.\n" +
		"Keep it factual, coherent, and human-readable.\n\n" +
		"Memories:\n" + joined.String() + "\nContext Summary:"
	return c.generate(ctx, prompt)
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: c.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
