package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var (
	bullishTerms = []string{"beat", "upgrade", "rally", "surge", "record high", "growth", "strong", "gain", "buy", "outperform", "rebound", "rate cut"}
	bearishTerms = []string{"miss", "downgrade", "selloff", "sell-off", "plunge", "recession", "weak", "loss", "layoff", "default", "underperform", "rate hike", "inflation"}
)

// HeuristicScorer scores text by counting market keywords. It never calls out.
type HeuristicScorer struct{}

func (HeuristicScorer) Score(_ context.Context, item Item) (float64, error) {
	score, _, err := HeuristicSentiment(item.Title, item.Text)
	return score, err
}

// HeuristicSentiment returns a score in [-1,1] and a bullish/neutral/bearish
// label for the combined title and text.
func HeuristicSentiment(title, text string) (float64, string, error) {
	body := strings.ToLower(strings.TrimSpace(title + " " + text))
	if body == "" {
		return 0, "neutral", ErrEmptyItem
	}

	bull := countMatches(body, bullishTerms)
	bear := countMatches(body, bearishTerms)
	score := clampUnit(float64(bull-bear) / float64(bull+bear+1))

	label := "neutral"
	if score > 0.2 {
		label = "bullish"
	} else if score < -0.2 {
		label = "bearish"
	}
	return score, label, nil
}

func countMatches(text string, terms []string) int {
	count := 0
	for _, term := range terms {
		if strings.Contains(text, term) {
			count++
		}
	}
	return count
}

// FallbackScorer asks Primary first and uses Fallback when it fails.
type FallbackScorer struct {
	Primary  Scorer
	Fallback Scorer
}

func (s FallbackScorer) Score(ctx context.Context, item Item) (float64, error) {
	if s.Primary != nil {
		score, err := s.Primary.Score(ctx, item)
		if err == nil {
			return score, nil
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
	}
	if s.Fallback == nil {
		return 0, errors.New("no scorer available")
	}
	return s.Fallback.Score(ctx, item)
}

// NewScorer returns the OpenAI scorer backed by the heuristic when an API
// key is set, and the heuristic alone otherwise.
func NewScorer(apiKey, model string) Scorer {
	llm := NewOpenAIScorer(apiKey, model)
	if llm == nil {
		return HeuristicScorer{}
	}
	return FallbackScorer{Primary: llm, Fallback: HeuristicScorer{}}
}

type openAIChatClient interface {
	CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

type OpenAIScorer struct {
	client openAIChatClient
	model  string
}

func NewOpenAIScorer(apiKey string, model string) *OpenAIScorer {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil
	}
	if strings.TrimSpace(model) == "" {
		model = "gpt-4o-mini"
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIScorer{
		client: &openAIClient{client: client},
		model:  model,
	}
}

const scorerSystemPrompt = "You score the sentiment of financial news toward broad equity markets. " +
	"Return ONLY a JSON object with score (-1..1), label (bullish|neutral|bearish) and reason (short text). No markdown."

func (s *OpenAIScorer) Score(ctx context.Context, item Item) (float64, error) {
	if s == nil || s.client == nil {
		return 0, errors.New("openai scorer not configured")
	}
	title := strings.TrimSpace(item.Title)
	text := strings.TrimSpace(item.Text)
	if title == "" && text == "" {
		return 0, ErrEmptyItem
	}

	completion, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionNewParams{
		Model: s.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(scorerSystemPrompt),
			openai.UserMessage(fmt.Sprintf("title=%s\ntext=%s", title, text)),
		},
	})
	if err != nil {
		return 0, fmt.Errorf("openai completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return 0, errors.New("empty scorer completion")
	}

	var parsed struct {
		Score  *float64 `json:"score"`
		Label  string   `json:"label"`
		Reason string   `json:"reason"`
	}
	raw := trimCodeFence(completion.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return 0, fmt.Errorf("parse scorer json: %w", err)
	}
	if parsed.Score == nil {
		return 0, errors.New("scorer json missing score")
	}
	return clampUnit(*parsed.Score), nil
}

func trimCodeFence(v string) string {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "```") {
		v = strings.TrimPrefix(v, "```")
		v = strings.TrimSpace(v)
		if strings.HasPrefix(strings.ToLower(v), "json") {
			v = strings.TrimSpace(v[4:])
		}
		v = strings.TrimSuffix(v, "```")
		v = strings.TrimSpace(v)
	}
	return v
}

type openAIClient struct {
	client openai.Client
}

func (c *openAIClient) CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return c.client.Chat.Completions.New(ctx, params)
}
