package chains

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/k8si/langchain/document"
	"github.com/k8si/langchain/tokens"
)

// DefaultDocumentSeparator joins formatted documents in a stuff chain.
const DefaultDocumentSeparator = "\n\n"

var ErrMissingLLMChain = errors.New("an LLM chain with a prompt is required")

// StuffDocumentsChain combines documents by formatting each one,
// concatenating the results, and making a single model call with the
// whole list stuffed into one prompt slot.
type StuffDocumentsChain struct {
	llmChain  *LLMChain
	formatter *document.Formatter
	separator string
	counter   tokens.Counter

	// DocumentVariableName is the prompt slot the joined documents are
	// substituted into.
	DocumentVariableName string
}

// StuffConfig configures NewStuffDocuments. Only LLMChain is required;
// DocumentVariableName is auto-derived when the prompt has a single
// input variable.
type StuffConfig struct {
	LLMChain             *LLMChain
	DocumentFormatter    *document.Formatter
	DocumentVariableName string
	Separator            string
	TokenCounter         tokens.Counter
}

func NewStuffDocuments(cfg StuffConfig) (*StuffDocumentsChain, error) {
	if cfg.LLMChain == nil || cfg.LLMChain.Prompt == nil {
		return nil, ErrMissingLLMChain
	}

	name, err := deriveDocumentVariableName(cfg.LLMChain.Prompt, cfg.DocumentVariableName)
	if err != nil {
		return nil, err
	}

	formatter := cfg.DocumentFormatter
	if formatter == nil {
		formatter = document.DefaultFormatter()
	}
	separator := cfg.Separator
	if separator == "" {
		separator = DefaultDocumentSeparator
	}
	counter := cfg.TokenCounter
	if counter == nil {
		counter = tokens.EstimateCounter{}
	}

	return &StuffDocumentsChain{
		llmChain:             cfg.LLMChain,
		formatter:            formatter,
		separator:            separator,
		counter:              counter,
		DocumentVariableName: name,
	}, nil
}

func (c *StuffDocumentsChain) joinDocs(docs []document.Document) (string, error) {
	parts := make([]string, len(docs))
	for i, doc := range docs {
		s, err := c.formatter.Format(doc)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return strings.Join(parts, c.separator), nil
}

func (c *StuffDocumentsChain) buildInputs(docs []document.Document, o *Options) (map[string]any, error) {
	joined, err := c.joinDocs(docs)
	if err != nil {
		return nil, err
	}
	inputs := o.extraInputs()
	inputs[c.DocumentVariableName] = joined
	return inputs, nil
}

// CombineDocs stuffs all documents into one prompt and returns the
// model's response.
func (c *StuffDocumentsChain) CombineDocs(ctx context.Context, docs []document.Document, opts ...Option) (string, map[string]any, error) {
	o := buildOptions(opts)
	run := o.newRun()

	inputs, err := c.buildInputs(docs, &o)
	if err != nil {
		o.chainError(run, "stuff_documents_chain", err)
		return "", nil, err
	}

	o.chainStart(run, "stuff_documents_chain", map[string]any{"documents": len(docs)})
	out, err := c.llmChain.Call(ctx, inputs, childOpts(opts, run)...)
	if err != nil {
		o.chainError(run, "stuff_documents_chain", err)
		return "", nil, err
	}

	text, ok := out[c.llmChain.outputKey()].(string)
	if !ok {
		err := fmt.Errorf("model result is missing output key %q", c.llmChain.outputKey())
		o.chainError(run, "stuff_documents_chain", err)
		return "", nil, err
	}

	o.chainEnd(run, "stuff_documents_chain", map[string]any{OutputTextKey: text})
	return text, map[string]any{}, nil
}

// PromptLength reports the token length of the fully rendered prompt for
// docs, used by the reduce chain to decide whether collapsing is needed.
func (c *StuffDocumentsChain) PromptLength(docs []document.Document, opts ...Option) (int, error) {
	o := buildOptions(opts)
	inputs, err := c.buildInputs(docs, &o)
	if err != nil {
		return 0, err
	}

	// Unknown extra variables render as empty rather than failing the
	// length estimate.
	for _, v := range c.llmChain.Prompt.InputVariables() {
		if _, ok := inputs[v]; !ok {
			inputs[v] = ""
		}
	}
	rendered, err := c.llmChain.Prompt.Render(inputs)
	if err != nil {
		return 0, err
	}
	return c.counter.Count(rendered), nil
}
