// Package chains composes document-combination pipelines: map a model
// over each document, optionally collapse the results under a token
// budget, then reduce everything to a single output.
package chains

import (
	"github.com/k8si/langchain/callbacks"
)

const (
	// DocumentsKey is the input field the composition chains read the
	// document list from.
	DocumentsKey = "context"

	// OutputTextKey is the primary output field of a combination chain.
	OutputTextKey = "output_text"

	// IntermediateStepsKey holds the raw per-document map outputs when a
	// chain is configured to surface them.
	IntermediateStepsKey = "intermediate_steps"
)

// Options carries per-invocation settings shared by all chains. Extra
// inputs and callback handlers are passed through unchanged to nested
// invocations.
type Options struct {
	tokenMax int
	inputs   map[string]any
	handlers []callbacks.Handler
	parent   *callbacks.Run
}

type Option func(*Options)

// WithTokenMax sets the token ceiling handed to the reduce chain.
func WithTokenMax(n int) Option {
	return func(o *Options) {
		o.tokenMax = n
	}
}

// WithInputs merges extra inputs made available to every prompt in the
// chain, e.g. a user question.
func WithInputs(inputs map[string]any) Option {
	return func(o *Options) {
		if o.inputs == nil {
			o.inputs = make(map[string]any, len(inputs))
		}
		for k, v := range inputs {
			o.inputs[k] = v
		}
	}
}

// WithCallbacks attaches callback handlers to the invocation.
func WithCallbacks(handlers ...callbacks.Handler) Option {
	return func(o *Options) {
		o.handlers = append(o.handlers, handlers...)
	}
}

// withParent threads the calling chain's run to nested invocations.
func withParent(run callbacks.Run) Option {
	return func(o *Options) {
		o.parent = &run
	}
}

func buildOptions(opts []Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// childOpts returns a copy of opts with run as the nesting parent.
func childOpts(opts []Option, run callbacks.Run) []Option {
	out := make([]Option, 0, len(opts)+1)
	out = append(out, opts...)
	out = append(out, withParent(run))
	return out
}

func (o *Options) newRun() callbacks.Run {
	return callbacks.NewRun(o.parent)
}

func (o *Options) chainStart(run callbacks.Run, chainType string, inputs map[string]any) {
	for _, h := range o.handlers {
		h.ChainStart(run, chainType, inputs)
	}
}

func (o *Options) chainEnd(run callbacks.Run, chainType string, outputs map[string]any) {
	for _, h := range o.handlers {
		h.ChainEnd(run, chainType, outputs)
	}
}

func (o *Options) chainError(run callbacks.Run, chainType string, err error) {
	for _, h := range o.handlers {
		h.ChainError(run, chainType, err)
	}
}

func (o *Options) modelStart(run callbacks.Run, modelName, promptText string) {
	for _, h := range o.handlers {
		h.ModelStart(run, modelName, promptText)
	}
}

func (o *Options) modelEnd(run callbacks.Run, modelName, output string) {
	for _, h := range o.handlers {
		h.ModelEnd(run, modelName, output)
	}
}

// extraInputs returns a copy of the invocation's extra inputs.
func (o *Options) extraInputs() map[string]any {
	out := make(map[string]any, len(o.inputs))
	for k, v := range o.inputs {
		out[k] = v
	}
	return out
}
