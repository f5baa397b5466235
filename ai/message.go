package ai

type MessageRole string

const (
	UserRole      MessageRole = "user"
	AssistantRole MessageRole = "assistant"
	SystemRole    MessageRole = "system"
)

type Message interface {
	Value() (role MessageRole, content string)
}

var (
	_ Message = UserMessage{}
	_ Message = AIMessage{}
	_ Message = SystemMessage{}
)

type UserMessage struct {
	Role    MessageRole
	Content string
}

func (m UserMessage) Value() (MessageRole, string) {
	return m.Role, m.Content
}

type SystemMessage struct {
	Role    MessageRole
	Content string
}

func (m SystemMessage) Value() (MessageRole, string) {
	return m.Role, m.Content
}

type AIMessage struct {
	Role    MessageRole
	Content string
	Usage   Usage
}

func (m AIMessage) Value() (MessageRole, string) {
	return m.Role, m.Content
}

// Usage reports token usage for a single model response.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
