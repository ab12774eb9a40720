package processor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunRecord is one line of the batch run log.
type RunRecord struct {
	RunID      string    `json:"run_id"`
	Time       time.Time `json:"time"`
	Stage      string    `json:"stage"`
	Status     string    `json:"status"`
	Date       string    `json:"date,omitempty"`
	ProductURI string    `json:"product_uri,omitempty"`
	Output     string    `json:"output,omitempty"`
	Merged     bool      `json:"merged,omitempty"`
	Error      string    `json:"error,omitempty"`
	ElapsedMS  int64     `json:"elapsed_ms,omitempty"`
}

// RunLog is an append-only JSONL log, one file per run, named by a fresh
// run id. Appends are safe for concurrent use; records land in whatever
// order the stages produce them.
type RunLog struct {
	mu      sync.Mutex
	f       *os.File
	enc     *json.Encoder
	path    string
	runID   string
	records []RunRecord
}

// NewRunLog creates <dir>/<run-id>.jsonl, creating dir as needed.
func NewRunLog(dir string) (*RunLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("processor: run directory: %w", err)
	}
	runID := uuid.NewString()
	path := filepath.Join(dir, runID+".jsonl")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("processor: run log: %w", err)
	}
	return &RunLog{f: f, enc: json.NewEncoder(f), path: path, runID: runID}, nil
}

func (l *RunLog) RunID() string { return l.runID }

// Path returns the log file location.
func (l *RunLog) Path() string { return l.path }

// Append stamps the record with the run id and, when unset, the current
// time, then writes it to the log file and the in-memory tail.
func (l *RunLog) Append(rec RunRecord) {
	rec.RunID = l.runID
	if rec.Time.IsZero() {
		rec.Time = time.Now().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	if l.enc != nil {
		_ = l.enc.Encode(rec)
	}
}

// Records returns a copy of everything appended so far.
func (l *RunLog) Records() []RunRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]RunRecord, len(l.records))
	copy(out, l.records)
	return out
}

func (l *RunLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f, l.enc = nil, nil
	return err
}
