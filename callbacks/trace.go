package callbacks

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	defaultRetentionDuration = 7 * 24 * time.Hour
	defaultMaxTraceFiles     = 10
)

var traceSync = sync.Mutex{} // keep all trace lines in sync

type TraceConfig struct {
	SessionID         string
	Directory         string
	RetentionDuration time.Duration
	MaxTraceFiles     int
}

// Trace records chain and model events as JSON lines in a session file.
// Trace implements Handler.
type Trace struct {
	SessionID         string
	StartTime         time.Time
	Filepath          string
	directory         string
	file              traceWriter
	RetentionDuration time.Duration
	MaxTraceFiles     int
	fileInitialized   bool
}

type traceWriter interface {
	io.Writer
	Sync() error
	Close() error
}

// discardWriter wraps io.Discard to implement traceWriter
type discardWriter struct{}

func (d *discardWriter) Write(p []byte) (n int, err error) { return io.Discard.Write(p) }
func (d *discardWriter) Sync() error                       { return nil }
func (d *discardWriter) Close() error                      { return nil }

func newSessionID() string {
	now := time.Now()
	return now.Format("20060102150405") + fmt.Sprintf("%09d", now.Nanosecond())
}

// NewTrace creates a Trace with default cleanup settings. The trace file
// is created lazily on the first event.
func NewTrace(config ...TraceConfig) *Trace {
	defaultDir := filepath.Join(os.TempDir(), "langchain-traces")

	cfg := TraceConfig{
		Directory:         defaultDir,
		RetentionDuration: defaultRetentionDuration,
		MaxTraceFiles:     defaultMaxTraceFiles,
		SessionID:         newSessionID(),
	}

	if len(config) > 0 {
		if config[0].Directory != "" {
			cfg.Directory = config[0].Directory
		}
		if config[0].RetentionDuration > 0 {
			cfg.RetentionDuration = config[0].RetentionDuration
		}
		if config[0].MaxTraceFiles > 0 {
			cfg.MaxTraceFiles = config[0].MaxTraceFiles
		}
		if config[0].SessionID != "" {
			cfg.SessionID = config[0].SessionID
		}
	}

	if _, err := os.Stat(cfg.Directory); os.IsNotExist(err) {
		if err := os.MkdirAll(cfg.Directory, 0755); err != nil {
			slog.Error("failed to create trace directory", "directory", cfg.Directory, "error", err)
		}
	}

	filename := filepath.Join(cfg.Directory, fmt.Sprintf("trace-%s.jsonl", cfg.SessionID))

	t := &Trace{
		SessionID:         cfg.SessionID,
		StartTime:         time.Now(),
		Filepath:          filename,
		directory:         cfg.Directory,
		RetentionDuration: cfg.RetentionDuration,
		MaxTraceFiles:     cfg.MaxTraceFiles,
	}

	t.Cleanup() // remove old entries

	return t
}

func (t *Trace) ensureFileInitialized() {
	if t.fileInitialized {
		return
	}

	osFile, err := os.OpenFile(t.Filepath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		slog.Error("failed to open trace file, using io.Discard", "file", t.Filepath, "error", err)
		t.file = &discardWriter{}
	} else {
		t.file = osFile
	}
	t.fileInitialized = true
}

type traceEvent struct {
	Time      string         `json:"time"`
	SessionID string         `json:"session_id"`
	Event     string         `json:"event"`
	RunID     string         `json:"run_id"`
	ParentID  string         `json:"parent_id,omitempty"`
	Chain     string         `json:"chain,omitempty"`
	Model     string         `json:"model,omitempty"`
	Error     string         `json:"error,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
}

func (t *Trace) write(ev traceEvent) {
	traceSync.Lock()
	defer traceSync.Unlock()

	t.ensureFileInitialized()

	ev.Time = time.Now().Format(time.RFC3339Nano)
	ev.SessionID = t.SessionID

	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	t.file.Write(data)
	t.file.Write([]byte("\n"))
}

func (t *Trace) ChainStart(run Run, chainType string, inputs map[string]any) {
	t.write(traceEvent{Event: "chain_start", RunID: run.ID, ParentID: run.ParentID, Chain: chainType, Detail: summarize(inputs)})
}

func (t *Trace) ChainEnd(run Run, chainType string, outputs map[string]any) {
	t.write(traceEvent{Event: "chain_end", RunID: run.ID, ParentID: run.ParentID, Chain: chainType, Detail: summarize(outputs)})
}

func (t *Trace) ChainError(run Run, chainType string, err error) {
	t.write(traceEvent{Event: "chain_error", RunID: run.ID, ParentID: run.ParentID, Chain: chainType, Error: err.Error()})
}

func (t *Trace) ModelStart(run Run, modelName string, prompt string) {
	t.write(traceEvent{Event: "model_start", RunID: run.ID, Model: modelName, Detail: map[string]any{"prompt": prompt}})
}

func (t *Trace) ModelEnd(run Run, modelName string, output string) {
	t.write(traceEvent{Event: "model_end", RunID: run.ID, Model: modelName, Detail: map[string]any{"output": output}})
}

// Close flushes and closes the trace file.
func (t *Trace) Close() error {
	traceSync.Lock()
	defer traceSync.Unlock()

	if !t.fileInitialized || t.file == nil {
		return nil
	}
	t.file.Sync()
	return t.file.Close()
}

// summarize keeps trace lines bounded: strings are truncated, everything
// else is reported by type.
func summarize(values map[string]any) map[string]any {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		switch s := v.(type) {
		case string:
			if len(s) > 200 {
				s = s[:200] + "..."
			}
			out[k] = s
		default:
			out[k] = fmt.Sprintf("%T", v)
		}
	}
	return out
}

// Cleanup removes old trace files based on retention policy.
func (t *Trace) Cleanup() {
	entries, err := os.ReadDir(t.directory)
	if err != nil {
		slog.Error("failed to read trace directory", "error", err)
		return
	}

	var traceFiles []struct {
		path    string
		modTime time.Time
	}

	cutoffTime := time.Now().Add(-t.RetentionDuration)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "trace-") || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}

		filePath := filepath.Join(t.directory, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}

		traceFiles = append(traceFiles, struct {
			path    string
			modTime time.Time
		}{path: filePath, modTime: info.ModTime()})
	}

	sort.Slice(traceFiles, func(i, j int) bool {
		return traceFiles[i].modTime.Before(traceFiles[j].modTime)
	})

	if t.RetentionDuration > 0 {
		for _, file := range traceFiles {
			if file.modTime.Before(cutoffTime) {
				if err := os.Remove(file.path); err != nil {
					slog.Error("failed to remove old trace file", "file", file.path, "error", err)
				}
			}
		}
	}

	if t.MaxTraceFiles > 0 && len(traceFiles) > t.MaxTraceFiles {
		filesToRemove := len(traceFiles) - t.MaxTraceFiles
		for i := 0; i < filesToRemove && i < len(traceFiles); i++ {
			if err := os.Remove(traceFiles[i].path); err != nil {
				slog.Error("failed to remove excess trace file", "file", traceFiles[i].path, "error", err)
			}
		}
	}
}
