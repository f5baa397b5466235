// Package openai binds the ai.Model abstraction to OpenAI-compatible chat
// completion endpoints.
package openai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/k8si/langchain/ai"
)

const (
	OpenAIBaseURL     = "https://api.openai.com/v1"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

func init() {
	registerStandardModels()
}

func registerStandardModels() {
	models := []struct {
		provider    string
		model       string
		displayName string
		baseURL     string
	}{
		{"openai", "gpt-4o", "GPT 4o", ""},
		{"openai", "gpt-4o-mini", "GPT 4o Mini", ""},
		{"openai", "gpt-5", "GPT 5", ""},
		{"openai", "gpt-5-mini", "GPT 5 Mini", ""},
		{"openrouter", "qwen/qwen3-30b-a3b-instruct-2507", "Qwen 30B (openrouter)", OpenRouterBaseURL},
		{"openrouter", "deepseek/deepseek-chat-v3.1", "DeepSeek Chat V3.1 (openrouter)", OpenRouterBaseURL},
	}

	for _, m := range models {
		baseURL := m.baseURL
		if baseURL == "" {
			baseURL = OpenAIBaseURL
		}
		ai.RegisterModel(m.provider, m.model, ai.ModelInfo{
			DisplayName: m.displayName,
			BaseURL:     baseURL,
			NewModel: func(modelName, apiKey string, baseURLs ...string) *ai.Model {
				return NewModel(modelName, apiKey, baseURLs...)
			},
		})
	}
}

// NewModel builds an ai.Model that calls an OpenAI-compatible chat API.
// With no API key, the OPENAI_API_KEY or OPENROUTER_API_KEY environment
// variable is used depending on the base URL.
func NewModel(modelName string, apiKey string, baseURLs ...string) *ai.Model {
	url := OpenAIBaseURL
	if len(baseURLs) > 0 && baseURLs[0] != "" {
		url = baseURLs[0]
	}

	if apiKey == "" {
		if url == OpenRouterBaseURL {
			apiKey = os.Getenv("OPENROUTER_API_KEY")
		} else {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
	}

	model := &ai.Model{
		ModelName: modelName,
		APIKey:    apiKey,
		BaseURL:   url,
	}
	model.SetCallFunc(openaiCall)
	return model
}

func openaiCall(ctx context.Context, model *ai.Model, messages []ai.Message) (ai.AIMessage, error) {
	client := createClient(model)
	return callChatAPI(ctx, client, model, messages)
}

func createClient(model *ai.Model) openai.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(model.APIKey),
	}

	if model.BaseURL != "" && model.BaseURL != OpenAIBaseURL {
		opts = append(opts, option.WithBaseURL(model.BaseURL))
	}

	return openai.NewClient(opts...)
}

func classifyError(err error) error {
	if err == nil {
		return nil
	}

	errStr := err.Error()

	if strings.Contains(errStr, "status: 502") ||
		strings.Contains(errStr, "status: 503") ||
		strings.Contains(errStr, "status: 504") ||
		strings.Contains(errStr, "status: 429") {
		return fmt.Errorf("%w: %v", ai.ErrTemporary, err)
	}

	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "temporary") {
		return fmt.Errorf("%w: %v", ai.ErrTemporary, err)
	}

	var apiErr interface {
		StatusCode() int
	}
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode() >= 500 || apiErr.StatusCode() == 429 {
			return fmt.Errorf("%w: %v", ai.ErrTemporary, err)
		}
	}

	return err
}
