package prompt

import (
	"errors"
	"fmt"
	"strings"
	"text/template"
)

var ErrMissingVariable = errors.New("missing template variable")

// Template is a text/template with an explicit set of input variables.
// Variables are referenced in the template body as {{.name}} and must be
// declared up front so callers can introspect them before rendering.
type Template struct {
	text           string
	tmpl           *template.Template
	inputVariables []string
}

// New parses text into a Template. inputVariables declares every variable
// the template expects; Render fails if any of them is absent.
func New(text string, inputVariables []string) (*Template, error) {
	tmpl, err := template.New("prompt").Option("missingkey=zero").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template: %w", err)
	}
	return &Template{
		text:           text,
		tmpl:           tmpl,
		inputVariables: inputVariables,
	}, nil
}

// MustNew is New but panics on a parse error. Intended for package-level
// template literals.
func MustNew(text string, inputVariables []string) *Template {
	t, err := New(text, inputVariables)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Template) Text() string {
	return t.text
}

// InputVariables returns the declared variable names in declaration order.
func (t *Template) InputVariables() []string {
	out := make([]string, len(t.inputVariables))
	copy(out, t.inputVariables)
	return out
}

// HasVariable reports whether name is one of the declared input variables.
func (t *Template) HasVariable(name string) bool {
	for _, v := range t.inputVariables {
		if v == name {
			return true
		}
	}
	return false
}

// Render executes the template against values. Every declared input
// variable must be present in values.
func (t *Template) Render(values map[string]any) (string, error) {
	for _, v := range t.inputVariables {
		if _, ok := values[v]; !ok {
			return "", fmt.Errorf("%w: %q", ErrMissingVariable, v)
		}
	}
	var sb strings.Builder
	if err := t.tmpl.Execute(&sb, values); err != nil {
		return "", fmt.Errorf("failed to render prompt template: %w", err)
	}
	return sb.String(), nil
}
