// Package storage provides the run-history storage for cegar-go.
//
// It defines the StorageBackend protocol that all storage implementations
// must satisfy, along with the records they persist.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Benny93/cegar-go/internal/config"
)

var (
	// ErrRunNotFound is returned when no run matches an id.
	ErrRunNotFound = errors.New("run not found")

	// ErrAmbiguousRun is returned when an id prefix matches several runs.
	ErrAmbiguousRun = errors.New("run id is ambiguous")

	errNotInitialized = errors.New("storage backend not initialized")
)

// IterationRecord is one CEGAR iteration of a stored run.
type IterationRecord struct {
	Index      int           `json:"index"`
	Outcome    string        `json:"outcome"`
	ARGSize    int           `json:"arg_size"`
	Unsafe     int           `json:"unsafe"`
	Depth      int           `json:"depth"`
	Abstractor time.Duration `json:"abstractor"`
	Refiner    time.Duration `json:"refiner"`
}

// RunRecord is the stored result of checking one model.
type RunRecord struct {
	// ID is a UUID assigned on save.
	ID string `json:"id"`

	// Model is the model name, ModelPath the file it was loaded from.
	Model     string `json:"model"`
	ModelPath string `json:"model_path,omitempty"`

	// Config is the configuration the run used.
	Config config.Config `json:"config"`

	// Outcome is "safe", "unsafe" or "error".
	Outcome string `json:"outcome"`

	// Error holds the failure message when Outcome is "error".
	Error string `json:"error,omitempty"`

	Iterations int    `json:"iterations"`
	ARGSize    int    `json:"arg_size"`
	Prec       string `json:"prec"`

	// Cex lists the states of the counterexample, root first.
	Cex []string `json:"cex,omitempty"`

	Total      time.Duration `json:"total"`
	Abstractor time.Duration `json:"abstractor"`
	Refiner    time.Duration `json:"refiner"`

	Steps []IterationRecord `json:"steps,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// ShortID is the first block of the id, enough to name a run on the
// command line.
func (r *RunRecord) ShortID() string {
	id, _, _ := strings.Cut(r.ID, "-")
	return id
}

// prepare fills in the id and timestamp of a new record.
func (r *RunRecord) prepare() {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
}

// StorageBackend defines the interface for storage implementations.
//
// Implementations must be thread-safe and support concurrent access.
type StorageBackend interface {
	// Lifecycle methods

	// Initialize opens or creates the storage backend at the given path.
	// If readOnly is true, the backend is opened in read-only mode.
	Initialize(path string, readOnly bool) error

	// Close releases all resources held by the backend.
	Close() error

	// Run operations

	// SaveRun stores a run, assigning its ID and CreatedAt if unset.
	SaveRun(ctx context.Context, run *RunRecord) error

	// GetRun returns the run whose id equals or starts with id.
	GetRun(ctx context.Context, id string) (*RunRecord, error)

	// ListRuns returns up to limit runs, newest first. A limit of 0 or
	// less returns all runs.
	ListRuns(ctx context.Context, limit int) ([]*RunRecord, error)

	// DeleteRun removes a run by its full id.
	DeleteRun(ctx context.Context, id string) error

	// Maintenance

	// Clear removes every run.
	Clear(ctx context.Context) error
}
