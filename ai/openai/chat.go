package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"

	"github.com/k8si/langchain/ai"
)

func callChatAPI(ctx context.Context, client openai.Client, model *ai.Model, messages []ai.Message) (ai.AIMessage, error) {
	chatMsgs, err := toChatMessages(messages)
	if err != nil {
		return ai.AIMessage{}, fmt.Errorf("failed to convert messages: %w", err)
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model.ModelName),
		Messages: chatMsgs,
	}

	if model.Temperature != nil {
		params.Temperature = openai.Opt(*model.Temperature)
	}
	if model.MaxTokens != nil {
		params.MaxTokens = openai.Opt(int64(*model.MaxTokens))
	}
	if model.TopP != nil {
		params.TopP = openai.Opt(*model.TopP)
	}
	if model.FrequencyPenalty != nil {
		params.FrequencyPenalty = openai.Opt(*model.FrequencyPenalty)
	}
	if model.PresencePenalty != nil {
		params.PresencePenalty = openai.Opt(*model.PresencePenalty)
	}
	if model.StopSequences != nil && len(*model.StopSequences) > 0 {
		stopSeqs := *model.StopSequences
		if len(stopSeqs) == 1 {
			params.Stop = openai.ChatCompletionNewParamsStopUnion{
				OfString: openai.Opt(stopSeqs[0]),
			}
		} else {
			params.Stop = openai.ChatCompletionNewParamsStopUnion{
				OfStringArray: stopSeqs,
			}
		}
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return ai.AIMessage{}, classifyError(err)
	}

	return fromChatResponse(resp), nil
}
