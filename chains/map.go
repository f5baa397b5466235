package chains

import (
	"context"
	"fmt"

	"github.com/k8si/langchain/ai"
	"github.com/k8si/langchain/document"
	"github.com/k8si/langchain/prompt"
)

// Mapper transforms the working inputs into a new document list. Both the
// map stage and the collapse stage have this shape: they read documents
// from the DocumentsKey field and produce a replacement list.
type Mapper interface {
	Map(ctx context.Context, inputs map[string]any, opts ...Option) ([]document.Document, error)
}

// Reducer consumes the working inputs, including the document list under
// DocumentsKey, and produces the final text output.
type Reducer interface {
	Reduce(ctx context.Context, inputs map[string]any, opts ...Option) (string, error)
}

// DocumentsFromInputs extracts the document list from the working inputs.
func DocumentsFromInputs(inputs map[string]any) ([]document.Document, error) {
	v, ok := inputs[DocumentsKey]
	if !ok {
		return nil, fmt.Errorf("inputs are missing the %q key", DocumentsKey)
	}
	docs, ok := v.([]document.Document)
	if !ok {
		return nil, fmt.Errorf("inputs key %q is %T, expected []document.Document", DocumentsKey, v)
	}
	return docs, nil
}

// extraFromInputs copies inputs without the document list.
func extraFromInputs(inputs map[string]any) map[string]any {
	extra := make(map[string]any, len(inputs))
	for k, v := range inputs {
		if k == DocumentsKey {
			continue
		}
		extra[k] = v
	}
	return extra
}

// MapDocumentsChain updates the contents of a list of documents by
// passing each one to a model. Document order is preserved; each output
// document keeps the metadata of its source.
type MapDocumentsChain struct {
	llmChain  *LLMChain
	formatter *document.Formatter
}

// NewMapDocuments builds a map stage from a model and a prompt. The
// prompt must accept DocumentsKey as an input variable; each document is
// rendered by the formatter (default: bare page content) and substituted
// there.
func NewMapDocuments(model *ai.Model, p *prompt.Template, formatter *document.Formatter) (*MapDocumentsChain, error) {
	if p == nil || !p.HasVariable(DocumentsKey) {
		return nil, fmt.Errorf("map prompt must accept %q as an input variable", DocumentsKey)
	}
	if formatter == nil {
		formatter = document.DefaultFormatter()
	}
	return &MapDocumentsChain{
		llmChain:  NewLLMChain(model, p),
		formatter: formatter,
	}, nil
}

// Map applies the model to every document in inputs[DocumentsKey]
// independently. Extra input fields (e.g. a user question) are forwarded
// to every per-document prompt.
func (c *MapDocumentsChain) Map(ctx context.Context, inputs map[string]any, opts ...Option) ([]document.Document, error) {
	docs, err := DocumentsFromInputs(inputs)
	if err != nil {
		return nil, err
	}

	o := buildOptions(opts)
	run := o.newRun()
	o.chainStart(run, "map_documents_chain", map[string]any{"documents": len(docs)})

	inputsList := make([]map[string]any, len(docs))
	for i, doc := range docs {
		formatted, err := c.formatter.Format(doc)
		if err != nil {
			o.chainError(run, "map_documents_chain", err)
			return nil, err
		}
		perDoc := extraFromInputs(inputs)
		perDoc[DocumentsKey] = formatted
		inputsList[i] = perDoc
	}

	results, err := c.llmChain.Apply(ctx, inputsList, childOpts(opts, run)...)
	if err != nil {
		o.chainError(run, "map_documents_chain", err)
		return nil, err
	}

	outputKey := c.llmChain.outputKey()
	mapped := make([]document.Document, len(results))
	for i, r := range results {
		text, ok := r[outputKey].(string)
		if !ok {
			err := fmt.Errorf("map result %d is missing output key %q", i, outputKey)
			o.chainError(run, "map_documents_chain", err)
			return nil, err
		}
		mapped[i] = document.Document{PageContent: text, Metadata: docs[i].Metadata}
	}

	o.chainEnd(run, "map_documents_chain", map[string]any{"documents": len(mapped)})
	return mapped, nil
}

// CollapseDocumentsChain consolidates a document list until its
// cumulative token length fits under a ceiling, merging groups of
// documents through the model.
type CollapseDocumentsChain struct {
	reduce *ReduceDocumentsChain
}

// NewCollapseDocuments builds a collapse stage from a model, a prompt
// accepting DocumentsKey, and a token ceiling.
func NewCollapseDocuments(model *ai.Model, p *prompt.Template, tokenMax int) (*CollapseDocumentsChain, error) {
	if p == nil || !p.HasVariable(DocumentsKey) {
		return nil, fmt.Errorf("collapse prompt must accept %q as an input variable", DocumentsKey)
	}
	stuff, err := NewStuffDocuments(StuffConfig{
		LLMChain:             NewLLMChain(model, p),
		DocumentVariableName: DocumentsKey,
	})
	if err != nil {
		return nil, err
	}
	return &CollapseDocumentsChain{
		reduce: &ReduceDocumentsChain{
			CombineDocumentsChain: stuff,
			TokenMax:              tokenMax,
		},
	}, nil
}

// Map implements Mapper: the collapse stage consumes the document list
// and returns a (possibly shorter) replacement list.
func (c *CollapseDocumentsChain) Map(ctx context.Context, inputs map[string]any, opts ...Option) ([]document.Document, error) {
	docs, err := DocumentsFromInputs(inputs)
	if err != nil {
		return nil, err
	}
	allOpts := append([]Option{WithInputs(extraFromInputs(inputs))}, opts...)
	return c.reduce.CollapseToFit(ctx, docs, allOpts...)
}

// ChainReducer adapts a CombineDocuments chain to the Reducer shape used
// by the functional composition: documents come from DocumentsKey and the
// remaining input fields pass through.
type ChainReducer struct {
	Chain CombineDocuments
}

func NewChainReducer(chain CombineDocuments) *ChainReducer {
	return &ChainReducer{Chain: chain}
}

func (r *ChainReducer) Reduce(ctx context.Context, inputs map[string]any, opts ...Option) (string, error) {
	docs, err := DocumentsFromInputs(inputs)
	if err != nil {
		return "", err
	}
	allOpts := append([]Option{WithInputs(extraFromInputs(inputs))}, opts...)
	text, _, err := r.Chain.CombineDocs(ctx, docs, allOpts...)
	return text, err
}

// MapReduceChain composes a map stage, an optional collapse stage, and a
// reduce stage. The collapse stage, when present, always runs between map
// and reduce.
type MapReduceChain struct {
	mapChain Mapper
	reduce   Reducer
	collapse Mapper
}

// NewMapReduce composes a map operation with a reduce operation.
func NewMapReduce(mapChain Mapper, reduce Reducer) *MapReduceChain {
	return &MapReduceChain{mapChain: mapChain, reduce: reduce}
}

// WithCollapse inserts a collapse stage between map and reduce and
// returns the chain for chaining.
func (c *MapReduceChain) WithCollapse(collapse Mapper) *MapReduceChain {
	c.collapse = collapse
	return c
}

// Invoke runs the composed pipeline: the map stage's output replaces the
// document list in the working inputs, the collapse stage (if configured)
// is applied to the same field, and the reduce stage's result is returned
// unmodified.
func (c *MapReduceChain) Invoke(ctx context.Context, inputs map[string]any, opts ...Option) (string, error) {
	docs, err := c.mapChain.Map(ctx, inputs, opts...)
	if err != nil {
		return "", err
	}

	working := make(map[string]any, len(inputs))
	for k, v := range inputs {
		working[k] = v
	}
	working[DocumentsKey] = docs

	if c.collapse != nil {
		docs, err = c.collapse.Map(ctx, working, opts...)
		if err != nil {
			return "", err
		}
		working[DocumentsKey] = docs
	}

	return c.reduce.Reduce(ctx, working, opts...)
}
