package tutor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prep-work/backend/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// Client wraps an OpenAI-compatible API client used as the AI tutor backend.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a new tutor client.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// Ping verifies the backend is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("tutor backend unreachable: %w", err)
	}
	return nil
}

// Reply sends the system prompt plus the question's conversation to the AI
// backend and returns the assistant's reply text. The conversation is the
// {role, content} projection in insertion order, system message first.
func (c *Client) Reply(ctx context.Context, systemPrompt string, turns []model.ChatTurn) (string, error) {
	chatMsgs := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	chatMsgs = append(chatMsgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})

	for _, t := range turns {
		role := openai.ChatMessageRoleUser
		if t.Role == model.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		chatMsgs = append(chatMsgs, openai.ChatCompletionMessage{
			Role:    role,
			Content: t.Content,
		})
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    chatMsgs,
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("tutor API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("tutor returned no choices")
	}

	reply := resp.Choices[0].Message.Content
	slog.Debug("tutor reply", "turns", len(turns), "length", len(reply))
	return reply, nil
}
