package chains

import (
	"context"
	"errors"
	"fmt"

	"github.com/k8si/langchain/document"
)

var (
	ErrConflictingReduceChains = errors.New("both ReduceDocumentsChain and CombineDocumentChain cannot be provided at the same time; CombineDocumentChain is deprecated, please only provide ReduceDocumentsChain")
	ErrMissingReduceChain      = errors.New("a reduce documents chain is required")
)

// MapReduceDocumentsChain combines documents by mapping an LLM chain over
// them first, then reducing the results.
//
// The LLM chain is called once per document with the document body
// substituted under the document variable name; each result becomes a new
// document carrying the source document's metadata. The new list is then
// handed to the reduce chain, which may itself collapse recursively when
// there are many documents.
type MapReduceDocumentsChain struct {
	llmChain    *LLMChain
	reduceChain CombineDocuments

	// DocumentVariableName is the LLM chain prompt slot each document's
	// body is substituted into.
	DocumentVariableName string

	// ReturnIntermediateSteps surfaces the raw per-document map outputs
	// in the auxiliary result map.
	ReturnIntermediateSteps bool
}

// MapReduceConfig configures NewMapReduceDocuments.
//
// CombineDocumentChain, CollapseDocumentChain, and ReturnMapSteps are
// deprecated spellings kept for older call sites; the constructor
// migrates them to their replacements before validation.
type MapReduceConfig struct {
	LLMChain                *LLMChain
	ReduceDocumentsChain    CombineDocuments
	DocumentVariableName    string
	ReturnIntermediateSteps bool

	// Deprecated: provide ReduceDocumentsChain instead.
	CombineDocumentChain CombineDocuments
	// Deprecated: provide a ReduceDocumentsChain carrying the collapse chain.
	CollapseDocumentChain CombineDocuments
	// Deprecated: use ReturnIntermediateSteps.
	ReturnMapSteps *bool
}

// normalizeMapReduceConfig migrates deprecated fields and resolves the
// document variable name. It is a pure function over the raw config; all
// validation failures surface here, before a chain value exists.
func normalizeMapReduceConfig(cfg MapReduceConfig) (MapReduceConfig, error) {
	if cfg.CombineDocumentChain != nil {
		if cfg.ReduceDocumentsChain != nil {
			return cfg, ErrConflictingReduceChains
		}
		cfg.ReduceDocumentsChain = &ReduceDocumentsChain{
			CombineDocumentsChain:  cfg.CombineDocumentChain,
			CollapseDocumentsChain: cfg.CollapseDocumentChain,
		}
		cfg.CombineDocumentChain = nil
		cfg.CollapseDocumentChain = nil
	}

	if cfg.ReturnMapSteps != nil {
		cfg.ReturnIntermediateSteps = *cfg.ReturnMapSteps
		cfg.ReturnMapSteps = nil
	}

	if cfg.LLMChain == nil || cfg.LLMChain.Prompt == nil {
		return cfg, ErrMissingLLMChain
	}
	name, err := deriveDocumentVariableName(cfg.LLMChain.Prompt, cfg.DocumentVariableName)
	if err != nil {
		return cfg, err
	}
	cfg.DocumentVariableName = name

	if cfg.ReduceDocumentsChain == nil {
		return cfg, ErrMissingReduceChain
	}
	return cfg, nil
}

func NewMapReduceDocuments(cfg MapReduceConfig) (*MapReduceDocumentsChain, error) {
	cfg, err := normalizeMapReduceConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &MapReduceDocumentsChain{
		llmChain:                cfg.LLMChain,
		reduceChain:             cfg.ReduceDocumentsChain,
		DocumentVariableName:    cfg.DocumentVariableName,
		ReturnIntermediateSteps: cfg.ReturnIntermediateSteps,
	}, nil
}

// MapChain exposes the per-document LLM chain.
func (c *MapReduceDocumentsChain) MapChain() *LLMChain {
	return c.llmChain
}

// ReduceChain exposes the configured reduce chain.
func (c *MapReduceDocumentsChain) ReduceChain() CombineDocuments {
	return c.reduceChain
}

// CollapseDocumentChain is kept for backward compatibility. It returns
// the collapse chain nested inside the reduce chain, or the combine chain
// when no dedicated collapse chain is set.
func (c *MapReduceDocumentsChain) CollapseDocumentChain() (CombineDocuments, error) {
	rc, ok := c.reduceChain.(*ReduceDocumentsChain)
	if !ok {
		return nil, fmt.Errorf("reduce chain is of type %T so it does not have a collapse chain", c.reduceChain)
	}
	if rc.CollapseDocumentsChain != nil {
		return rc.CollapseDocumentsChain, nil
	}
	return rc.CombineDocumentsChain, nil
}

// CombineDocumentChain is kept for backward compatibility. It returns the
// combine chain nested inside the reduce chain.
func (c *MapReduceDocumentsChain) CombineDocumentChain() (CombineDocuments, error) {
	rc, ok := c.reduceChain.(*ReduceDocumentsChain)
	if !ok {
		return nil, fmt.Errorf("reduce chain is of type %T so it does not have a combine chain", c.reduceChain)
	}
	return rc.CombineDocumentsChain, nil
}

// OutputKeys lists the fields a CombineDocs call produces.
func (c *MapReduceDocumentsChain) OutputKeys() []string {
	keys := []string{OutputTextKey}
	if c.ReturnIntermediateSteps {
		keys = append(keys, IntermediateStepsKey)
	}
	return keys
}

// CombineDocs combines documents in a map reduce manner: the LLM chain is
// applied to all documents concurrently, the results are rewrapped as
// documents with the source metadata, and the new list is reduced. The
// reduce step may recursively collapse when the list exceeds the token
// ceiling.
func (c *MapReduceDocumentsChain) CombineDocs(ctx context.Context, docs []document.Document, opts ...Option) (string, map[string]any, error) {
	o := buildOptions(opts)
	run := o.newRun()
	o.chainStart(run, "map_reduce_documents_chain", map[string]any{"documents": len(docs)})

	inputsList := make([]map[string]any, len(docs))
	for i, doc := range docs {
		inputs := o.extraInputs()
		inputs[c.DocumentVariableName] = doc.PageContent
		inputsList[i] = inputs
	}

	mapResults, err := c.llmChain.Apply(ctx, inputsList, childOpts(opts, run)...)
	if err != nil {
		o.chainError(run, "map_reduce_documents_chain", err)
		return "", nil, err
	}

	outputKey := c.llmChain.outputKey()
	resultDocs := make([]document.Document, len(mapResults))
	steps := make([]string, len(mapResults))
	for i, r := range mapResults {
		text, ok := r[outputKey].(string)
		if !ok {
			err := fmt.Errorf("map result %d is missing output key %q", i, outputKey)
			o.chainError(run, "map_reduce_documents_chain", err)
			return "", nil, err
		}
		resultDocs[i] = document.Document{PageContent: text, Metadata: docs[i].Metadata}
		steps[i] = text
	}

	result, extra, err := c.reduceChain.CombineDocs(ctx, resultDocs, childOpts(opts, run)...)
	if err != nil {
		o.chainError(run, "map_reduce_documents_chain", err)
		return "", nil, err
	}

	if extra == nil {
		extra = map[string]any{}
	}
	if c.ReturnIntermediateSteps {
		extra[IntermediateStepsKey] = steps
	}

	o.chainEnd(run, "map_reduce_documents_chain", map[string]any{OutputTextKey: result})
	return result, extra, nil
}
