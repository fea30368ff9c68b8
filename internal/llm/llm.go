// Package llm talks to an OpenAI-compatible text-generation endpoint for
// the study assistant and performance analysis.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/tamkeen-edu/tamkeen/internal/llm/prompts"
	"github.com/tamkeen-edu/tamkeen/internal/model"
)

// MaxHistory is the number of most recent chat turns forwarded to the model.
const MaxHistory = 20

var errNoChoices = errors.New("LLM returned no choices")

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api     *openai.Client
	model   string
	prompts *prompts.Set
}

// New creates a new LLM client using the embedded prompt templates.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		prompts: prompts.Default(),
	}
}

// WithPrompts replaces the prompt templates.
func (c *Client) WithPrompts(p *prompts.Set) *Client {
	c.prompts = p
	return c
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Chat answers the last student turn of history.
func (c *Client) Chat(ctx context.Context, history []model.ChatMessage) (string, error) {
	return c.ChatAbout(ctx, "", history)
}

// ChatAbout is Chat with the current subject mentioned in the system prompt.
func (c *Client) ChatAbout(ctx context.Context, subject string, history []model.ChatMessage) (string, error) {
	if !hasStudentTurn(history) {
		return "", model.E(model.KindEmptyInput, "llm.chat", nil)
	}
	system, err := c.prompts.BuildChatPrompt(subject)
	if err != nil {
		return "", fmt.Errorf("build chat prompt: %w", err)
	}

	if len(history) > MaxHistory {
		history = history[len(history)-MaxHistory:]
	}
	chatMsgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
	}
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		content := prompts.Sanitize(m.Content, "")
		if m.Role == model.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
			content = m.Content
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		chatMsgs = append(chatMsgs, openai.ChatCompletionMessage{Role: role, Content: content})
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    chatMsgs,
		Temperature: 0.7,
	})
	if err != nil {
		return "", model.E(model.KindExternalFailure, "llm.chat", fmt.Errorf("LLM API call: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", model.E(model.KindExternalFailure, "llm.chat", errNoChoices)
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	slog.Debug("LLM chat reply", "model", c.model, "turns", len(history), "chars", len(reply))
	return reply, nil
}

// AnalyzePerformance asks the model for strengths, weaknesses,
// recommendations and a learning plan based on the student's answers.
func (c *Client) AnalyzePerformance(ctx context.Context, subject, answers string) (*model.PerformanceReport, error) {
	if strings.TrimSpace(answers) == "" {
		return nil, model.E(model.KindEmptyInput, "llm.analyze", nil)
	}
	prompt, err := c.prompts.BuildAnalyzePrompt(subject, answers)
	if err != nil {
		return nil, fmt.Errorf("build analyze prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.3,
	})
	if err != nil {
		return nil, model.E(model.KindExternalFailure, "llm.analyze", fmt.Errorf("LLM API call: %w", err))
	}
	if len(resp.Choices) == 0 {
		return nil, model.E(model.KindExternalFailure, "llm.analyze", errNoChoices)
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM analysis", "raw", raw)

	var report model.PerformanceReport
	if err := json.Unmarshal([]byte(stripFences(raw)), &report); err != nil {
		return nil, model.E(model.KindExternalFailure, "llm.analyze", fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw))
	}
	return &report, nil
}

// Ping lists models to check the endpoint is reachable and the key works.
func (c *Client) Ping(ctx context.Context) error {
	models, err := c.api.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	for _, m := range models.Models {
		if m.ID == c.model {
			return nil
		}
	}
	slog.Warn("configured model not listed by endpoint", "model", c.model, "available", len(models.Models))
	return nil
}

func hasStudentTurn(history []model.ChatMessage) bool {
	for _, m := range history {
		if m.Role == model.RoleStudent && strings.TrimSpace(m.Content) != "" {
			return true
		}
	}
	return false
}

// stripFences removes a ```json ... ``` wrapper some models add despite
// the JSON response format.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
