// Package anthropic implements the Summarizer, Merger, and ContextBuilder
// collaborators on the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/becomeliminal/memkit/memory"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-20250514"

// Config configures the client.
type Config struct {
	APIKey string
	Model  string

	// MaxTokens caps each completion. Default 256.
	MaxTokens int
}

// Client implements memory.Summarizer, memory.Merger, and
// memory.ContextBuilder over the Messages API.
type Client struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// New creates a client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 256
	}
	return &Client{
		client:    anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:     anthropic.Model(cfg.Model),
		maxTokens: int64(cfg.MaxTokens),
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

// Merge combines two memory statements into a single updated one.
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
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("messages api: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", errors.New("empty completion")
	}
	return out, nil
}
