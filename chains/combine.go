package chains

import (
	"context"
	"fmt"

	"github.com/k8si/langchain/document"
	"github.com/k8si/langchain/prompt"
)

// CombineDocuments reduces a list of documents to a single text output
// plus an auxiliary output map.
type CombineDocuments interface {
	CombineDocs(ctx context.Context, docs []document.Document, opts ...Option) (string, map[string]any, error)
}

// deriveDocumentVariableName resolves the template slot a document's body
// is substituted into. With an empty name it is auto-derived when the
// prompt has exactly one input variable; otherwise the name must be a
// member of the prompt's variable set.
func deriveDocumentVariableName(p *prompt.Template, name string) (string, error) {
	vars := p.InputVariables()
	if name == "" {
		if len(vars) == 1 {
			return vars[0], nil
		}
		return "", fmt.Errorf("document variable name must be provided if there are multiple prompt input variables: %v", vars)
	}
	if !p.HasVariable(name) {
		return "", fmt.Errorf("document variable name %q was not found in the prompt input variables: %v", name, vars)
	}
	return name, nil
}
