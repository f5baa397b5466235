// Package document holds the document type passed between combination
// chains and the template-driven formatter that renders a document into
// the string handed to a model.
package document

// Document is a piece of text plus arbitrary metadata. Documents have no
// identity of their own; chains treat them positionally within a slice.
type Document struct {
	PageContent string         `json:"page_content"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// New returns a document with the given content and no metadata.
func New(content string) Document {
	return Document{PageContent: content}
}

// WithMetadata returns a copy of the document carrying the given metadata map.
func (d Document) WithMetadata(metadata map[string]any) Document {
	d.Metadata = metadata
	return d
}
