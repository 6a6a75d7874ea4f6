package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/docspace/conversation-service/internal/config"
	"github.com/docspace/conversation-service/internal/model"
	registrygenerate "github.com/docspace/conversation-service/internal/registry/generate"
)

func init() {
	registrygenerate.Register(registrygenerate.Plugin{
		Name:   "openai",
		Loader: load,
	})
}

func load(ctx context.Context) (registrygenerate.Responder, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("openai responder: CONVERSATION_SERVICE_OPENAI_API_KEY is required")
	}
	return &OpenAIResponder{
		apiKey:  cfg.OpenAIAPIKey,
		model:   cfg.OpenAIModelName,
		baseURL: strings.TrimRight(cfg.OpenAIBaseURL, "/"),
	}, nil
}

type OpenAIResponder struct {
	apiKey  string
	model   string
	baseURL string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (r *OpenAIResponder) Query(ctx context.Context, question string, history []model.Turn, spaceID int64) (*registrygenerate.Answer, error) {
	messages := make([]chatMessage, 0, len(history)+1)
	for _, turn := range history {
		messages = append(messages, chatMessage{Role: string(turn.Role), Content: turn.Content})
	}
	messages = append(messages, chatMessage{Role: string(model.RoleUser), Content: question})

	reqBody, err := json.Marshal(chatRequest{Model: r.model, Messages: messages})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai chat request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai chat: read response: %w", err)
	}

	var result chatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("openai chat: parse response: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("openai chat error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("openai chat: empty choices")
	}

	return &registrygenerate.Answer{Text: result.Choices[0].Message.Content}, nil
}

var _ registrygenerate.Responder = (*OpenAIResponder)(nil)
