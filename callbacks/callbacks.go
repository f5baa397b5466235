// Package callbacks defines the hooks chains invoke around their own runs
// and around model calls. Handlers are passed through unchanged to every
// nested chain invocation.
package callbacks

import (
	"time"

	"github.com/google/uuid"
)

// Run identifies one chain or model invocation within a session.
type Run struct {
	ID        string
	ParentID  string
	StartTime time.Time
}

// NewRun mints a run record. parent may be nil for top-level runs.
func NewRun(parent *Run) Run {
	r := Run{
		ID:        uuid.New().String(),
		StartTime: time.Now(),
	}
	if parent != nil {
		r.ParentID = parent.ID
	}
	return r
}

// Handler receives chain lifecycle events. Implementations must be safe
// for concurrent use; per-document model calls fire from separate
// goroutines.
type Handler interface {
	ChainStart(run Run, chainType string, inputs map[string]any)
	ChainEnd(run Run, chainType string, outputs map[string]any)
	ChainError(run Run, chainType string, err error)
	ModelStart(run Run, modelName string, prompt string)
	ModelEnd(run Run, modelName string, output string)
}
