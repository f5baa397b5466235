package document

import (
	"fmt"

	"github.com/k8si/langchain/prompt"
)

// PageContentKey is the template variable bound to a document's body when
// formatting. Every other variable declared by a formatter template is
// looked up in the document's metadata.
const PageContentKey = "page_content"

// Formatter renders a document into a string through a prompt template.
type Formatter struct {
	Template *prompt.Template
}

// NewFormatter wraps a template as a document formatter.
func NewFormatter(t *prompt.Template) *Formatter {
	return &Formatter{Template: t}
}

// DefaultFormatter renders the bare page content.
func DefaultFormatter() *Formatter {
	return &Formatter{
		Template: prompt.MustNew("{{.page_content}}", []string{PageContentKey}),
	}
}

// Inputs builds the template value map for doc: the body under
// PageContentKey and every other declared variable from metadata. A
// declared variable absent from the metadata is an error.
func (f *Formatter) Inputs(doc Document) (map[string]any, error) {
	values := map[string]any{PageContentKey: doc.PageContent}
	for _, v := range f.Template.InputVariables() {
		if v == PageContentKey {
			continue
		}
		val, ok := doc.Metadata[v]
		if !ok {
			return nil, fmt.Errorf("document is missing metadata key %q required by the document template", v)
		}
		values[v] = val
	}
	return values, nil
}

// Format renders doc to a string.
func (f *Formatter) Format(doc Document) (string, error) {
	values, err := f.Inputs(doc)
	if err != nil {
		return "", err
	}
	return f.Template.Render(values)
}
