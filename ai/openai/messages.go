package openai

import (
	"fmt"

	"github.com/openai/openai-go/v3"

	"github.com/k8si/langchain/ai"
)

func toChatMessages(msgs []ai.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		switch m := msg.(type) {
		case ai.UserMessage:
			result = append(result, openai.UserMessage(m.Content))
		case ai.SystemMessage:
			result = append(result, openai.SystemMessage(m.Content))
		case ai.AIMessage:
			result = append(result, openai.AssistantMessage(m.Content))
		default:
			return nil, fmt.Errorf("unsupported message type: %T", msg)
		}
	}
	return result, nil
}

func fromChatResponse(resp *openai.ChatCompletion) ai.AIMessage {
	if len(resp.Choices) == 0 {
		return ai.AIMessage{Role: ai.AssistantRole}
	}

	return ai.AIMessage{
		Role:    ai.AssistantRole,
		Content: resp.Choices[0].Message.Content,
		Usage: ai.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
}
