package ai

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// ErrTemporary marks provider failures that are safe to retry upstream.
// Chains do not retry; classification is for the host application.
var ErrTemporary = errors.New("temporary model error")

// RecordedResponse represents a recorded model response with error information
type RecordedResponse struct {
	AIMessage AIMessage `json:"ai_message"`
	Error     string    `json:"error,omitempty"` // Empty string if no error
	Timestamp string    `json:"timestamp"`
}

type StatusError struct {
	StatusCode   int
	Status       string
	ErrorMessage string
}

func (e StatusError) Error() string {
	return fmt.Sprintf("status: %s, code: %d, error: %s", e.Status, e.StatusCode, e.ErrorMessage)
}

// Model represents a generic model container that uses a function variable
// for provider-specific logic.
type Model struct {
	ModelName string
	APIKey    string
	BaseURL   string

	// callFunc is the implementation for each provider
	callFunc func(ctx context.Context, model *Model, messages []Message) (AIMessage, error)

	// Options pointer variables - use nil to represent option not set
	Temperature      *float64
	MaxTokens        *int
	TopP             *float64
	FrequencyPenalty *float64
	PresencePenalty  *float64
	StopSequences    *[]string
	Parameters       map[string]interface{} // additional non-standard parameters for the model

	// Recording functionality
	RecordFilename string // If set, record responses to this file
}

// Call makes a single call to the model and returns its response message.
func (m *Model) Call(ctx context.Context, messages []Message) (AIMessage, error) {
	if m.callFunc == nil {
		return AIMessage{}, fmt.Errorf("model %q has no call function configured", m.ModelName)
	}

	response, err := m.callFunc(ctx, m, messages)

	// If recording is enabled, record the response
	if m.RecordFilename != "" {
		m.recordAIMessage(response, err)
	}

	return response, err
}

// Complete sends a single user prompt and returns the response text.
func (m *Model) Complete(ctx context.Context, promptText string) (string, error) {
	msg, err := m.Call(ctx, []Message{UserMessage{Role: UserRole, Content: promptText}})
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

// WithTemperature sets the temperature for the model and returns the model for chaining
func (m *Model) WithTemperature(temperature float64) *Model {
	m.Temperature = &temperature
	return m
}

// WithMaxTokens sets the maximum tokens for the model and returns the model for chaining
func (m *Model) WithMaxTokens(maxTokens int) *Model {
	m.MaxTokens = &maxTokens
	return m
}

// WithTopP sets the top_p parameter for the model and returns the model for chaining
func (m *Model) WithTopP(topP float64) *Model {
	m.TopP = &topP
	return m
}

// WithFrequencyPenalty sets the frequency penalty for the model and returns the model for chaining
func (m *Model) WithFrequencyPenalty(penalty float64) *Model {
	m.FrequencyPenalty = &penalty
	return m
}

// WithPresencePenalty sets the presence penalty for the model and returns the model for chaining
func (m *Model) WithPresencePenalty(penalty float64) *Model {
	m.PresencePenalty = &penalty
	return m
}

// WithStopSequences sets the stop sequences for the model and returns the model for chaining
func (m *Model) WithStopSequences(sequences []string) *Model {
	m.StopSequences = &sequences
	return m
}

func (m *Model) WithParameter(name string, value interface{}) *Model {
	if m.Parameters == nil {
		m.Parameters = make(map[string]interface{})
	}
	m.Parameters[name] = value
	return m
}

// SetCallFunc overrides the provider call function. Not required most of
// the time unless you are using a non standard provider.
func (m *Model) SetCallFunc(callFunc func(ctx context.Context, model *Model, messages []Message) (AIMessage, error)) {
	m.callFunc = callFunc
}

// recordAIMessage records a model response to the configured file
func (m *Model) recordAIMessage(response AIMessage, err error) {
	recorded := RecordedResponse{
		AIMessage: response,
		Timestamp: time.Now().Format(time.RFC3339),
	}

	if err != nil {
		recorded.Error = err.Error()
	}

	// Marshal to JSON (compact format for JSONL)
	jsonData, marshalErr := json.Marshal(recorded)
	if marshalErr != nil {
		return // Silently fail if we can't marshal
	}

	file, openErr := os.OpenFile(m.RecordFilename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if openErr != nil {
		return // Silently fail if we can't open file
	}
	defer file.Close()

	file.Write(jsonData)
	file.WriteString("\n")
}

// LoadRecordedResponses loads recorded responses from a file for use in dummy models
func LoadRecordedResponses(filename string) ([]RecordedResponse, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open recorded responses file: %w", err)
	}
	defer file.Close()

	var records []RecordedResponse
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var record RecordedResponse
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal recorded response: %w", err)
		}

		records = append(records, record)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading recorded responses file: %w", err)
	}

	return records, nil
}
