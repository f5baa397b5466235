package chains

import (
	"context"
	"sync"

	"github.com/k8si/langchain/ai"
	"github.com/k8si/langchain/prompt"
)

// DefaultOutputKey is the field an LLMChain writes its response text to.
const DefaultOutputKey = "text"

// LLMChain renders a prompt template and sends the result to a model.
// It is the model-invocation object the combination chains are built on.
type LLMChain struct {
	Model  *ai.Model
	Prompt *prompt.Template

	// OutputKey is the result field name, DefaultOutputKey when empty.
	OutputKey string
}

func NewLLMChain(model *ai.Model, p *prompt.Template) *LLMChain {
	return &LLMChain{
		Model:     model,
		Prompt:    p,
		OutputKey: DefaultOutputKey,
	}
}

func (c *LLMChain) outputKey() string {
	if c.OutputKey == "" {
		return DefaultOutputKey
	}
	return c.OutputKey
}

// Call renders the prompt against inputs, invokes the model once, and
// returns the response under the chain's output key.
func (c *LLMChain) Call(ctx context.Context, inputs map[string]any, opts ...Option) (map[string]any, error) {
	o := buildOptions(opts)
	run := o.newRun()

	promptText, err := c.Prompt.Render(inputs)
	if err != nil {
		o.chainError(run, "llm_chain", err)
		return nil, err
	}

	o.modelStart(run, c.Model.ModelName, promptText)
	msg, err := c.Model.Call(ctx, []ai.Message{ai.UserMessage{Role: ai.UserRole, Content: promptText}})
	if err != nil {
		o.chainError(run, "llm_chain", err)
		return nil, err
	}
	o.modelEnd(run, c.Model.ModelName, msg.Content)

	return map[string]any{c.outputKey(): msg.Content}, nil
}

// Apply invokes the chain once per input record, fanning the calls out
// concurrently. Results are positionally aligned with inputsList; the
// first failure cancels the remaining calls and aborts the whole batch.
func (c *LLMChain) Apply(ctx context.Context, inputsList []map[string]any, opts ...Option) ([]map[string]any, error) {
	applyCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]map[string]any, len(inputsList))

	// The first failure is recorded before the siblings are cancelled so
	// their induced context.Canceled errors never replace it.
	var (
		wg       sync.WaitGroup
		failOnce sync.Once
		firstErr error
	)
	for i, inputs := range inputsList {
		wg.Add(1)
		go func(i int, inputs map[string]any) {
			defer wg.Done()
			out, err := c.Call(applyCtx, inputs, opts...)
			if err != nil {
				failOnce.Do(func() {
					firstErr = err
					cancel()
				})
				return
			}
			results[i] = out
		}(i, inputs)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}
