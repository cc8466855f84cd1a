package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"climb-progression-system/gamification"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

var ErrAdviceUnavailable = errors.New("advice generator unavailable")

// AdviceRequest is the context handed to the advice generator.
type AdviceRequest struct {
	UserID         string
	Theme          gamification.Theme
	Layer          int
	WhistleLevel   int
	TopSkills      []string
	ExistingTitles []string
}

// QuestAdvice is a generated quest.
type QuestAdvice struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	XPReward    int64    `json:"xp_reward"`
	Tips        []string `json:"tips,omitempty"`
}

// AdviceGenerator produces free-form quest text. Failures are never fatal to callers.
type AdviceGenerator interface {
	GenerateQuest(ctx context.Context, req AdviceRequest) (*QuestAdvice, error)
}

// NoopAdviceGenerator is used when no API key is configured.
type NoopAdviceGenerator struct{}

func (NoopAdviceGenerator) GenerateQuest(context.Context, AdviceRequest) (*QuestAdvice, error) {
	return nil, ErrAdviceUnavailable
}

// OpenAIAdviceGenerator asks a chat model for a quest in JSON form.
type OpenAIAdviceGenerator struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

func NewOpenAIAdviceGenerator(cfg OpenAIConfig, logger *zap.Logger) *OpenAIAdviceGenerator {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		config.HTTPClient = cfg.HTTPClient
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &OpenAIAdviceGenerator{
		client:  openai.NewClientWithConfig(config),
		model:   model,
		timeout: timeout,
		logger:  logger,
	}
}

const adviceSystemPrompt = `You design short bouldering training quests for a climbing gym app.
Reply with a single JSON object: {"title": string, "description": string, "xp_reward": integer 10-100, "tips": [string]}.
The title is at most six words. The description is one or two sentences and must be achievable in one gym session.`

func (g *OpenAIAdviceGenerator) GenerateQuest(ctx context.Context, req AdviceRequest) (*QuestAdvice, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	prompt := fmt.Sprintf("Theme: %s\nClimber layer: %d (%s)\nWhistle: %s\nStrongest skills: %s\nAvoid these titles: %s",
		req.Theme,
		req.Layer, gamification.LayerName(req.Layer),
		gamification.WhistleName(req.WhistleLevel),
		strings.Join(req.TopSkills, ", "),
		strings.Join(req.ExistingTitles, "; "),
	)

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: adviceSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    0.9,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAdviceUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrAdviceUnavailable)
	}
	return parseQuestAdvice(resp.Choices[0].Message.Content)
}

// parseQuestAdvice validates model output and clamps the reward.
func parseQuestAdvice(content string) (*QuestAdvice, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var advice QuestAdvice
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &advice); err != nil {
		return nil, fmt.Errorf("%w: malformed JSON: %v", ErrAdviceUnavailable, err)
	}
	advice.Title = strings.TrimSpace(advice.Title)
	advice.Description = strings.TrimSpace(advice.Description)
	if advice.Title == "" || advice.Description == "" {
		return nil, fmt.Errorf("%w: missing title or description", ErrAdviceUnavailable)
	}
	if advice.XPReward < 10 {
		advice.XPReward = 10
	}
	if advice.XPReward > 100 {
		advice.XPReward = 100
	}
	return &advice, nil
}
