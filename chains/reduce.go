package chains

import (
	"context"
	"errors"
	"fmt"

	"github.com/k8si/langchain/document"
	"github.com/k8si/langchain/tokens"
)

// DefaultTokenMax bounds the cumulative size of a document list before
// the final combine call when no explicit ceiling is configured.
const DefaultTokenMax = 3000

var (
	ErrMissingCombineChain = errors.New("a combine documents chain is required")
	ErrDocumentTooLarge    = errors.New("a single document was longer than the token ceiling")
)

// promptLengther is implemented by combine chains that can report the
// token length of their fully rendered prompt for a document list.
type promptLengther interface {
	PromptLength(docs []document.Document, opts ...Option) (int, error)
}

// ReduceDocumentsChain combines documents by recursively collapsing them
// first if needed. While the cumulative token length of the list exceeds
// the ceiling, documents are split into groups that each fit, every group
// is merged into one document by the collapse chain, and the process
// repeats. The final list is handed to the combine chain.
type ReduceDocumentsChain struct {
	// CombineDocumentsChain produces the final output. Required.
	CombineDocumentsChain CombineDocuments

	// CollapseDocumentsChain merges one group of documents during
	// collapsing. Falls back to CombineDocumentsChain when nil.
	CollapseDocumentsChain CombineDocuments

	// TokenMax is the size ceiling, DefaultTokenMax when zero. A
	// per-invocation WithTokenMax option takes precedence.
	TokenMax int

	// LengthFunc overrides how the cumulative size of a document list is
	// measured. When nil the combine chain's prompt length is used if
	// available, with a token estimate over the document bodies as the
	// final fallback.
	LengthFunc func(docs []document.Document) int
}

func (c *ReduceDocumentsChain) collapseChain() CombineDocuments {
	if c.CollapseDocumentsChain != nil {
		return c.CollapseDocumentsChain
	}
	return c.CombineDocumentsChain
}

func (c *ReduceDocumentsChain) tokenMax(o *Options) int {
	if o.tokenMax > 0 {
		return o.tokenMax
	}
	if c.TokenMax > 0 {
		return c.TokenMax
	}
	return DefaultTokenMax
}

func (c *ReduceDocumentsChain) docsLength(docs []document.Document, opts ...Option) (int, error) {
	if c.LengthFunc != nil {
		return c.LengthFunc(docs), nil
	}
	if pl, ok := c.CombineDocumentsChain.(promptLengther); ok {
		return pl.PromptLength(docs, opts...)
	}
	counter := tokens.EstimateCounter{}
	total := 0
	for _, doc := range docs {
		total += counter.Count(doc.PageContent)
	}
	return total, nil
}

// CombineDocs collapses docs under the token ceiling, then delegates the
// result to the combine chain.
func (c *ReduceDocumentsChain) CombineDocs(ctx context.Context, docs []document.Document, opts ...Option) (string, map[string]any, error) {
	if c.CombineDocumentsChain == nil {
		return "", nil, ErrMissingCombineChain
	}

	o := buildOptions(opts)
	run := o.newRun()
	o.chainStart(run, "reduce_documents_chain", map[string]any{"documents": len(docs)})

	collapsed, err := c.collapse(ctx, docs, childOpts(opts, run)...)
	if err != nil {
		o.chainError(run, "reduce_documents_chain", err)
		return "", nil, err
	}

	text, extra, err := c.CombineDocumentsChain.CombineDocs(ctx, collapsed, childOpts(opts, run)...)
	if err != nil {
		o.chainError(run, "reduce_documents_chain", err)
		return "", nil, err
	}
	o.chainEnd(run, "reduce_documents_chain", map[string]any{OutputTextKey: text})
	return text, extra, nil
}

// CollapseToFit merges documents until their cumulative token length is
// under the ceiling and returns the resulting list. Already-fitting lists
// are returned unchanged with zero collapse calls.
func (c *ReduceDocumentsChain) CollapseToFit(ctx context.Context, docs []document.Document, opts ...Option) ([]document.Document, error) {
	if c.CombineDocumentsChain == nil {
		return nil, ErrMissingCombineChain
	}
	return c.collapse(ctx, docs, opts...)
}

func (c *ReduceDocumentsChain) collapse(ctx context.Context, docs []document.Document, opts ...Option) ([]document.Document, error) {
	o := buildOptions(opts)
	ceiling := c.tokenMax(&o)

	length, err := c.docsLength(docs, opts...)
	if err != nil {
		return nil, err
	}

	for length > ceiling {
		groups, err := c.splitDocs(docs, ceiling, opts...)
		if err != nil {
			return nil, err
		}

		newDocs := make([]document.Document, 0, len(groups))
		for _, group := range groups {
			text, _, err := c.collapseChain().CombineDocs(ctx, group, opts...)
			if err != nil {
				return nil, err
			}
			newDocs = append(newDocs, collapseDocs(group, text))
		}

		if len(newDocs) == len(docs) {
			// no progress; every group is already a single document
			return newDocs, nil
		}
		docs = newDocs

		length, err = c.docsLength(docs, opts...)
		if err != nil {
			return nil, err
		}
	}
	return docs, nil
}

// splitDocs partitions docs into consecutive groups whose measured length
// each stays under the ceiling.
func (c *ReduceDocumentsChain) splitDocs(docs []document.Document, ceiling int, opts ...Option) ([][]document.Document, error) {
	var groups [][]document.Document
	var current []document.Document

	for _, doc := range docs {
		candidate := append(current, doc)
		length, err := c.docsLength(candidate, opts...)
		if err != nil {
			return nil, err
		}
		if length > ceiling {
			if len(current) == 0 {
				return nil, fmt.Errorf("%w: %d > %d", ErrDocumentTooLarge, length, ceiling)
			}
			groups = append(groups, current)
			current = []document.Document{doc}
			continue
		}
		current = candidate
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups, nil
}

// collapseDocs builds the merged document for one collapsed group: the
// combined text plus the group's metadata, string values for a shared key
// joined with ", ".
func collapseDocs(docs []document.Document, combined string) document.Document {
	metadata := make(map[string]any)
	for _, doc := range docs {
		for k, v := range doc.Metadata {
			if existing, ok := metadata[k]; ok {
				metadata[k] = fmt.Sprintf("%v, %v", existing, v)
			} else {
				metadata[k] = v
			}
		}
	}
	if len(metadata) == 0 {
		metadata = nil
	}
	return document.Document{PageContent: combined, Metadata: metadata}
}
