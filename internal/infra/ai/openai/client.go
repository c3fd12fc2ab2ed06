package openai

import (
    "context"
    "errors"
    "fmt"
    "net/http"
    "strings"

    "github.com/sashabaranov/go-openai"

    "github.com/bryanwahyu/petri/internal/domain/analysis"
    "github.com/bryanwahyu/petri/internal/infra/ai/prompt"
)

const (
    maxTokens    = 2048
    DefaultModel = "gpt-4o-mini"
)

type Client struct {
    *openai.Client
    Model string
}

func NewClient(apiKey, model string) *Client {
    return &Client{Client: openai.NewClient(apiKey), Model: model}
}

// NewClientWithConfig is used by tests to point the client at a fake server.
func NewClientWithConfig(cfg openai.ClientConfig, model string) *Client {
    return &Client{Client: openai.NewClientWithConfig(cfg), Model: model}
}

// Recommend implements analysis.Advisor.
func (c *Client) Recommend(ctx context.Context, userPrompt string, r *analysis.Results) ([]analysis.Recommendation, error) {
    model := c.Model
    if model == "" {
        model = DefaultModel
    }
    req := openai.ChatCompletionRequest{
        Model: model,
        ResponseFormat: &openai.ChatCompletionResponseFormat{
            Type: openai.ChatCompletionResponseFormatTypeJSONObject,
        },
        Messages: []openai.ChatCompletionMessage{
            {Role: openai.ChatMessageRoleSystem, Content: prompt.GetSystemPrompt()},
            {Role: openai.ChatMessageRoleUser, Content: prompt.GetUserPrompt(userPrompt, r)},
        },
    }
    // For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
    if isReasoningModel(model) {
        req.MaxCompletionTokens = maxTokens
    } else {
        req.MaxTokens = maxTokens
    }

    resp, err := c.CreateChatCompletion(ctx, req)
    if err != nil {
        if isQuota(err) {
            return nil, fmt.Errorf("%w: %v", analysis.ErrQuotaExceeded, err)
        }
        return nil, fmt.Errorf("failed to create chat completion: %w", err)
    }
    if len(resp.Choices) == 0 {
        return nil, errors.New("chat completion returned no choices")
    }

    return prompt.ParseRecommendations(resp.Choices[0].Message.Content)
}

func isReasoningModel(model string) bool {
    for _, p := range []string{"o1", "o3", "o4", "gpt-5"} {
        if strings.HasPrefix(model, p) {
            return true
        }
    }
    return false
}

func isQuota(err error) bool {
    var apiErr *openai.APIError
    if errors.As(err, &apiErr) {
        return apiErr.HTTPStatusCode == http.StatusTooManyRequests
    }
    var reqErr *openai.RequestError
    if errors.As(err, &reqErr) {
        return reqErr.HTTPStatusCode == http.StatusTooManyRequests
    }
    return false
}
