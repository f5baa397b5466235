package ai

import (
	"context"
)

// NewDummyModel is useful for testing purposes. It allows you to mock the model's response.
func NewDummyModel(responseFunc func(messages []Message) AIMessage) *Model {
	return &Model{
		ModelName: "dummy",
		callFunc: func(ctx context.Context, model *Model, messages []Message) (AIMessage, error) {
			return responseFunc(messages), nil
		},
	}
}

// NewDummyModelWithError mocks a model whose every call fails with err.
func NewDummyModelWithError(err error) *Model {
	return &Model{
		ModelName: "dummy",
		callFunc: func(ctx context.Context, model *Model, messages []Message) (AIMessage, error) {
			return AIMessage{}, err
		},
	}
}
