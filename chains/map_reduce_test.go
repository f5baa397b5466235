package chains

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k8si/langchain/ai"
	"github.com/k8si/langchain/document"
	"github.com/k8si/langchain/prompt"
)

func summarizePrompt(t *testing.T) *prompt.Template {
	t.Helper()
	return prompt.MustNew("Summarize this content: {{.context}}", []string{"context"})
}

func newTestMapReduce(t *testing.T, model *ai.Model, reduce CombineDocuments) *MapReduceDocumentsChain {
	t.Helper()
	chain, err := NewMapReduceDocuments(MapReduceConfig{
		LLMChain:             NewLLMChain(model, summarizePrompt(t)),
		ReduceDocumentsChain: reduce,
	})
	require.NoError(t, err)
	return chain
}

func TestMapReduce_PreservesMetadataAndOrder(t *testing.T) {
	// Responses for earlier documents arrive later; the rewrapped list
	// must still follow input order with per-index metadata.
	model := ai.NewDummyModel(func(messages []ai.Message) ai.AIMessage {
		_, content := messages[len(messages)-1].Value()
		idx := strings.LastIndex(content, "doc-")
		n, _ := strconv.Atoi(content[idx+4:])
		time.Sleep(time.Duration(40-n*10) * time.Millisecond)
		return ai.AIMessage{Role: ai.AssistantRole, Content: fmt.Sprintf("mapped-%d", n)}
	})

	var reduced []document.Document
	reduce := &fakeCombine{fn: func(docs []document.Document) (string, error) {
		reduced = docs
		return "final", nil
	}}

	chain := newTestMapReduce(t, model, reduce)

	docs := make([]document.Document, 4)
	for i := range docs {
		docs[i] = document.Document{
			PageContent: fmt.Sprintf("doc-%d", i),
			Metadata:    map[string]any{"source": fmt.Sprintf("%d.txt", i)},
		}
	}

	text, _, err := chain.CombineDocs(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, "final", text)

	require.Len(t, reduced, 4)
	for i, doc := range reduced {
		assert.Equal(t, fmt.Sprintf("mapped-%d", i), doc.PageContent)
		assert.Equal(t, docs[i].Metadata, doc.Metadata, "metadata must be the source document's at index %d", i)
	}
}

func TestMapReduce_IntermediateSteps(t *testing.T) {
	model := echoModel("out: ")
	reduce := &fakeCombine{fn: func(docs []document.Document) (string, error) {
		return "final", nil
	}}

	chain, err := NewMapReduceDocuments(MapReduceConfig{
		LLMChain:                NewLLMChain(model, summarizePrompt(t)),
		ReduceDocumentsChain:    reduce,
		ReturnIntermediateSteps: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{OutputTextKey, IntermediateStepsKey}, chain.OutputKeys())

	docs := []document.Document{document.New("a"), document.New("b"), document.New("c")}
	_, extra, err := chain.CombineDocs(context.Background(), docs)
	require.NoError(t, err)

	steps, ok := extra[IntermediateStepsKey].([]string)
	require.True(t, ok, "intermediate steps missing from auxiliary outputs")
	assert.Equal(t, []string{
		"out: Summarize this content: a",
		"out: Summarize this content: b",
		"out: Summarize this content: c",
	}, steps)
}

func TestMapReduce_NoIntermediateStepsByDefault(t *testing.T) {
	chain := newTestMapReduce(t, echoModel(""), &fakeCombine{})
	assert.Equal(t, []string{OutputTextKey}, chain.OutputKeys())

	_, extra, err := chain.CombineDocs(context.Background(), []document.Document{document.New("a")})
	require.NoError(t, err)
	_, ok := extra[IntermediateStepsKey]
	assert.False(t, ok)
}

func TestMapReduce_ConflictingLegacyFields(t *testing.T) {
	_, err := NewMapReduceDocuments(MapReduceConfig{
		LLMChain:             NewLLMChain(echoModel(""), summarizePrompt(t)),
		ReduceDocumentsChain: &fakeCombine{},
		CombineDocumentChain: &fakeCombine{},
	})
	assert.ErrorIs(t, err, ErrConflictingReduceChains)
}

func TestMapReduce_LegacyCombineChainWrapped(t *testing.T) {
	legacyCombine := &fakeCombine{}
	legacyCollapse := &fakeCombine{}

	chain, err := NewMapReduceDocuments(MapReduceConfig{
		LLMChain:              NewLLMChain(echoModel(""), summarizePrompt(t)),
		CombineDocumentChain:  legacyCombine,
		CollapseDocumentChain: legacyCollapse,
	})
	require.NoError(t, err)

	rc, ok := chain.ReduceChain().(*ReduceDocumentsChain)
	require.True(t, ok, "legacy combine chain must be wrapped in a ReduceDocumentsChain")
	assert.Same(t, legacyCombine, rc.CombineDocumentsChain.(*fakeCombine))
	assert.Same(t, legacyCollapse, rc.CollapseDocumentsChain.(*fakeCombine))

	combine, err := chain.CombineDocumentChain()
	require.NoError(t, err)
	assert.Same(t, legacyCombine, combine.(*fakeCombine))

	collapse, err := chain.CollapseDocumentChain()
	require.NoError(t, err)
	assert.Same(t, legacyCollapse, collapse.(*fakeCombine))
}

func TestMapReduce_CollapseAccessorFallsBackToCombine(t *testing.T) {
	combine := &fakeCombine{}
	chain, err := NewMapReduceDocuments(MapReduceConfig{
		LLMChain:             NewLLMChain(echoModel(""), summarizePrompt(t)),
		CombineDocumentChain: combine,
	})
	require.NoError(t, err)

	collapse, err := chain.CollapseDocumentChain()
	require.NoError(t, err)
	assert.Same(t, combine, collapse.(*fakeCombine))
}

func TestMapReduce_AccessorsRequireReduceDocumentsChain(t *testing.T) {
	chain := newTestMapReduce(t, echoModel(""), &fakeCombine{})

	_, err := chain.CollapseDocumentChain()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "*chains.fakeCombine")

	_, err = chain.CombineDocumentChain()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "*chains.fakeCombine")
}

func TestMapReduce_ReturnMapStepsMigration(t *testing.T) {
	legacy := true
	chain, err := NewMapReduceDocuments(MapReduceConfig{
		LLMChain:             NewLLMChain(echoModel(""), summarizePrompt(t)),
		ReduceDocumentsChain: &fakeCombine{},
		ReturnMapSteps:       &legacy,
	})
	require.NoError(t, err)
	assert.True(t, chain.ReturnIntermediateSteps)
}

func TestMapReduce_DocumentVariableNameDerivation(t *testing.T) {
	chain := newTestMapReduce(t, echoModel(""), &fakeCombine{})
	assert.Equal(t, "context", chain.DocumentVariableName)
}

func TestMapReduce_DocumentVariableNameRequiredWithMultipleVariables(t *testing.T) {
	multi := prompt.MustNew("{{.context}} {{.question}}", []string{"context", "question"})

	_, err := NewMapReduceDocuments(MapReduceConfig{
		LLMChain:             NewLLMChain(echoModel(""), multi),
		ReduceDocumentsChain: &fakeCombine{},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be provided")
	assert.Contains(t, err.Error(), "context")
	assert.Contains(t, err.Error(), "question")
}

func TestMapReduce_DocumentVariableNameMustBeMember(t *testing.T) {
	multi := prompt.MustNew("{{.context}} {{.question}}", []string{"context", "question"})

	_, err := NewMapReduceDocuments(MapReduceConfig{
		LLMChain:             NewLLMChain(echoModel(""), multi),
		ReduceDocumentsChain: &fakeCombine{},
		DocumentVariableName: "bogus",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"bogus"`)
	assert.Contains(t, err.Error(), "context")
	assert.Contains(t, err.Error(), "question")
}

func TestMapReduce_MissingLLMChain(t *testing.T) {
	_, err := NewMapReduceDocuments(MapReduceConfig{ReduceDocumentsChain: &fakeCombine{}})
	assert.ErrorIs(t, err, ErrMissingLLMChain)
}

func TestMapReduce_MissingReduceChain(t *testing.T) {
	_, err := NewMapReduceDocuments(MapReduceConfig{
		LLMChain: NewLLMChain(echoModel(""), summarizePrompt(t)),
	})
	assert.ErrorIs(t, err, ErrMissingReduceChain)
}

func TestMapReduce_ModelErrorPropagates(t *testing.T) {
	wantErr := errors.New("boom")
	chain := newTestMapReduce(t, ai.NewDummyModelWithError(wantErr), &fakeCombine{})

	_, _, err := chain.CombineDocs(context.Background(), []document.Document{document.New("a")})
	assert.ErrorIs(t, err, wantErr)
}

func TestMapReduce_ExtraInputsReachMapPrompt(t *testing.T) {
	multi := prompt.MustNew("Q: {{.question}}\nD: {{.context}}", []string{"context", "question"})
	reduce := &fakeCombine{fn: func(docs []document.Document) (string, error) {
		return docs[0].PageContent, nil
	}}
	chain, err := NewMapReduceDocuments(MapReduceConfig{
		LLMChain:             NewLLMChain(echoModel(""), multi),
		ReduceDocumentsChain: reduce,
		DocumentVariableName: "context",
	})
	require.NoError(t, err)

	text, _, err := chain.CombineDocs(context.Background(),
		[]document.Document{document.New("Jamal loves green")},
		WithInputs(map[string]any{"question": "who loves green?"}),
	)
	require.NoError(t, err)
	assert.Equal(t, "Q: who loves green?\nD: Jamal loves green", text)
}

func TestMapReduce_TokenMaxReachesReduceChain(t *testing.T) {
	combine := &fakeCombine{}
	collapse := &fakeCombine{fn: func(docs []document.Document) (string, error) { return "m", nil }}
	reduce := &ReduceDocumentsChain{
		CombineDocumentsChain:  combine,
		CollapseDocumentsChain: collapse,
		LengthFunc:             charLength,
	}
	chain := newTestMapReduce(t, echoModel(""), reduce)

	// Mapped bodies echo the rendered prompt, so each runs ~630 chars.
	docs := make([]document.Document, 8)
	for i := range docs {
		docs[i] = document.New(strings.Repeat("x", 600))
	}

	_, _, err := chain.CombineDocs(context.Background(), docs, WithTokenMax(4000))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, collapse.callCount(), 1)
	assert.Equal(t, 1, combine.callCount())
}
