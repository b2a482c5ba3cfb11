package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no run exists for the given id.
var ErrNotFound = fmt.Errorf("run not found")

// Store manages run state on disk. Each run gets its own directory:
//
//	<base>/<run-id>/context.json                    current state
//	<base>/<run-id>/checkpoints/checkpoint-*.json   per-iteration snapshots
//	<base>/<run-id>/shots/                          viewport screenshots
//
// context.json is only replaced via write-then-rename, so a reader never
// observes a half-written context and a crash mid-write never corrupts
// the last good state.
type Store struct {
	baseDir string
}

// NewStore creates a Store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// DefaultStore returns a Store at ~/.scenesmith/runs, creating the directory if needed.
func DefaultStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".scenesmith", "runs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &Store{baseDir: dir}, nil
}

// BaseDir returns the store's root directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

func (s *Store) runDir(runID string) string {
	return filepath.Join(s.baseDir, runID)
}

func (s *Store) contextPath(runID string) string {
	return filepath.Join(s.runDir(runID), "context.json")
}

// Create initialises a new run on disk from the scene requirement.
func (s *Store) Create(requirement string) (*ExecutionContext, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	ec := &ExecutionContext{
		RunID:       uuid.NewString(),
		Requirement: requirement,
		History:     []IterationState{},
		StartedAt:   now,
		UpdatedAt:   now,
	}

	dir := s.runDir(ec.RunID)
	if err := os.MkdirAll(filepath.Join(dir, "checkpoints"), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir checkpoints: %w", err)
	}
	if err := s.Save(ec); err != nil {
		return nil, err
	}
	return ec, nil
}

// Save atomically writes the current context for the run.
func (s *Store) Save(ec *ExecutionContext) error {
	ec.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	if err := WriteJSON(s.contextPath(ec.RunID), ec); err != nil {
		return fmt.Errorf("save context %s: %w", ec.RunID, err)
	}
	return nil
}

// LoadLatest reads the current context for a run.
func (s *Store) LoadLatest(runID string) (*ExecutionContext, error) {
	var ec ExecutionContext
	if err := ReadJSON(s.contextPath(runID), &ec); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ec, nil
}

// SaveCheckpoint writes a self-contained snapshot of the context keyed by
// iteration index and wall-clock timestamp. The current pointer
// (context.json) is refreshed only after the checkpoint file is fully
// written, so recovery always has a complete snapshot to fall back on.
func (s *Store) SaveCheckpoint(ec *ExecutionContext, label string) (string, error) {
	name := fmt.Sprintf("checkpoint-%s-%d.json", label, time.Now().UTC().Unix())
	path := filepath.Join(s.runDir(ec.RunID), "checkpoints", name)
	if err := WriteJSON(path, ec); err != nil {
		return "", fmt.Errorf("write checkpoint %s: %w", name, err)
	}
	if err := s.Save(ec); err != nil {
		return "", err
	}
	return path, nil
}

// IterationLabel formats an iteration index for checkpoint naming.
func IterationLabel(index int) string {
	return fmt.Sprintf("%04d", index)
}

// ListCheckpoints returns checkpoint file names for a run in name order.
func (s *Store) ListCheckpoints(runID string) ([]string, error) {
	dir := filepath.Join(s.runDir(runID), "checkpoints")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// LatestCheckpointPath returns the absolute path of the newest checkpoint,
// or "" if none exist. Used for operator-facing error messages.
func (s *Store) LatestCheckpointPath(runID string) string {
	names, err := s.ListCheckpoints(runID)
	if err != nil || len(names) == 0 {
		return ""
	}
	return filepath.Join(s.runDir(runID), "checkpoints", names[len(names)-1])
}

// SaveScreenshot persists a captured viewport image and returns its path
// reference for embedding in an ExecutionOutcome.
func (s *Store) SaveScreenshot(runID string, iteration int, name string, data []byte) (string, error) {
	dir := filepath.Join(s.runDir(runID), "shots")
	path := filepath.Join(dir, fmt.Sprintf("iter-%04d-%s.png", iteration, name))
	if err := WriteAtomic(path, data); err != nil {
		return "", fmt.Errorf("save screenshot: %w", err)
	}
	return path, nil
}

// List returns the current context of every run, ordered by start time.
func (s *Store) List() ([]ExecutionContext, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", s.baseDir, err)
	}

	var runs []ExecutionContext
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		ec, err := s.LoadLatest(entry.Name())
		if err != nil {
			continue // skip broken entries
		}
		runs = append(runs, *ec)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt < runs[j].StartedAt
	})
	return runs, nil
}

// Delete removes all data for a run.
func (s *Store) Delete(runID string) error {
	dir := s.runDir(runID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return ErrNotFound
	}
	return os.RemoveAll(dir)
}
