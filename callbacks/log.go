package callbacks

import "log/slog"

// LogHandler writes chain lifecycle events to a slog logger.
type LogHandler struct {
	Logger *slog.Logger
}

// NewLogHandler returns a LogHandler. A nil logger means slog.Default.
func NewLogHandler(logger *slog.Logger) *LogHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogHandler{Logger: logger}
}

func (h *LogHandler) ChainStart(run Run, chainType string, inputs map[string]any) {
	h.Logger.Debug("chain start", "run", run.ID, "parent", run.ParentID, "chain", chainType, "inputs", len(inputs))
}

func (h *LogHandler) ChainEnd(run Run, chainType string, outputs map[string]any) {
	h.Logger.Debug("chain end", "run", run.ID, "chain", chainType, "outputs", len(outputs))
}

func (h *LogHandler) ChainError(run Run, chainType string, err error) {
	h.Logger.Error("chain error", "run", run.ID, "chain", chainType, "error", err)
}

func (h *LogHandler) ModelStart(run Run, modelName string, prompt string) {
	h.Logger.Debug("model call", "run", run.ID, "model", modelName, "prompt_len", len(prompt))
}

func (h *LogHandler) ModelEnd(run Run, modelName string, output string) {
	h.Logger.Debug("model response", "run", run.ID, "model", modelName, "output_len", len(output))
}
