package chains

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k8si/langchain/document"
)

// fakeCombine is a scriptable CombineDocuments that counts its calls.
type fakeCombine struct {
	mu    sync.Mutex
	calls int
	fn    func(docs []document.Document) (string, error)
}

func (f *fakeCombine) CombineDocs(ctx context.Context, docs []document.Document, opts ...Option) (string, map[string]any, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fn != nil {
		text, err := f.fn(docs)
		if err != nil {
			return "", nil, err
		}
		return text, map[string]any{}, nil
	}
	return "merged", map[string]any{}, nil
}

func (f *fakeCombine) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func charLength(docs []document.Document) int {
	total := 0
	for _, d := range docs {
		total += len(d.PageContent)
	}
	return total
}

func TestReduceDocuments_NoCollapseUnderBudget(t *testing.T) {
	combine := &fakeCombine{}
	collapse := &fakeCombine{}
	chain := &ReduceDocumentsChain{
		CombineDocumentsChain:  combine,
		CollapseDocumentsChain: collapse,
		LengthFunc:             charLength,
	}

	docs := []document.Document{document.New("small"), document.New("docs")}
	text, _, err := chain.CombineDocs(context.Background(), docs, WithTokenMax(4000))
	require.NoError(t, err)
	assert.Equal(t, "merged", text)
	assert.Equal(t, 0, collapse.callCount(), "collapse must not run under the ceiling")
	assert.Equal(t, 1, combine.callCount())
}

func TestReduceDocuments_CollapsesOverBudget(t *testing.T) {
	combine := &fakeCombine{}
	collapse := &fakeCombine{fn: func(docs []document.Document) (string, error) {
		return "m", nil
	}}
	chain := &ReduceDocumentsChain{
		CombineDocumentsChain:  combine,
		CollapseDocumentsChain: collapse,
		LengthFunc:             charLength,
	}

	// Ten 600-char documents: 6000 chars total against a 4000 ceiling.
	docs := make([]document.Document, 10)
	for i := range docs {
		docs[i] = document.New(strings.Repeat("x", 600))
	}

	text, _, err := chain.CombineDocs(context.Background(), docs, WithTokenMax(4000))
	require.NoError(t, err)
	assert.Equal(t, "merged", text)
	assert.GreaterOrEqual(t, collapse.callCount(), 1, "collapse must run at least once over the ceiling")
	assert.Equal(t, 1, combine.callCount())
}

func TestReduceDocuments_CollapseFallsBackToCombineChain(t *testing.T) {
	combine := &fakeCombine{fn: func(docs []document.Document) (string, error) {
		return "m", nil
	}}
	chain := &ReduceDocumentsChain{
		CombineDocumentsChain: combine,
		TokenMax:              10,
		LengthFunc:            charLength,
	}

	docs := []document.Document{
		document.New("aaaaaaaa"),
		document.New("bbbbbbbb"),
	}
	_, _, err := chain.CombineDocs(context.Background(), docs)
	require.NoError(t, err)
	// two collapse groups plus the final combine
	assert.Equal(t, 3, combine.callCount())
}

func TestReduceDocuments_SingleDocumentTooLarge(t *testing.T) {
	chain := &ReduceDocumentsChain{
		CombineDocumentsChain: &fakeCombine{},
		TokenMax:              100,
		LengthFunc:            charLength,
	}

	_, _, err := chain.CombineDocs(context.Background(), []document.Document{
		document.New(strings.Repeat("x", 500)),
	})
	assert.ErrorIs(t, err, ErrDocumentTooLarge)
}

func TestReduceDocuments_MissingCombineChain(t *testing.T) {
	chain := &ReduceDocumentsChain{}
	_, _, err := chain.CombineDocs(context.Background(), []document.Document{document.New("x")})
	assert.ErrorIs(t, err, ErrMissingCombineChain)
}

func TestReduceDocuments_CollapseErrorPropagates(t *testing.T) {
	wantErr := errors.New("upstream failure")
	collapse := &fakeCombine{fn: func(docs []document.Document) (string, error) {
		return "", wantErr
	}}
	chain := &ReduceDocumentsChain{
		CombineDocumentsChain:  &fakeCombine{},
		CollapseDocumentsChain: collapse,
		TokenMax:               10,
		LengthFunc:             charLength,
	}

	_, _, err := chain.CombineDocs(context.Background(), []document.Document{
		document.New("aaaaaaaa"),
		document.New("bbbbbbbb"),
	})
	assert.ErrorIs(t, err, wantErr)
}

func TestCollapseDocs_MergesMetadata(t *testing.T) {
	docs := []document.Document{
		{PageContent: "a", Metadata: map[string]any{"source": "1.txt", "page": 1}},
		{PageContent: "b", Metadata: map[string]any{"source": "2.txt"}},
	}

	merged := collapseDocs(docs, "a b")
	assert.Equal(t, "a b", merged.PageContent)
	assert.Equal(t, "1.txt, 2.txt", merged.Metadata["source"])
	assert.Equal(t, 1, merged.Metadata["page"])
}

func TestCollapseDocs_NoMetadata(t *testing.T) {
	merged := collapseDocs([]document.Document{document.New("a"), document.New("b")}, "ab")
	assert.Nil(t, merged.Metadata)
}

func TestReduceDocuments_CollapseToFitReturnsUnchangedUnderBudget(t *testing.T) {
	collapse := &fakeCombine{}
	chain := &ReduceDocumentsChain{
		CombineDocumentsChain:  &fakeCombine{},
		CollapseDocumentsChain: collapse,
		TokenMax:               1000,
		LengthFunc:             charLength,
	}

	docs := []document.Document{document.New("tiny")}
	out, err := chain.CollapseToFit(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, docs, out)
	assert.Equal(t, 0, collapse.callCount())
}
