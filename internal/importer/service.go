package importer

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/gobimport/internal/core"
	"github.com/JonMunkholm/gobimport/internal/logging"
	"github.com/JonMunkholm/gobimport/internal/mutations"
)

// Status of an import started through the Service.
type Status string

const (
	StatusRunning         Status = "running"
	StatusSucceeded       Status = "succeeded"
	StatusFailed          Status = "failed"
	StatusNotYetAvailable Status = "not_yet_available"
	StatusCancelled       Status = "cancelled"
)

var (
	// ErrImportNotFound is returned for an unknown import id.
	ErrImportNotFound = errors.New("import not found")

	ErrMutationsDisabled = errors.New("mutation imports are not configured")

	// ErrImportFinished is returned when cancelling an import that ended.
	ErrImportFinished = errors.New("import already finished")
)

// ImportState is the progress of one import.
type ImportState struct {
	ID        string     `json:"importId"`
	Dataset   string     `json:"dataset"`
	Mutations bool       `json:"mutations"`
	Status    Status     `json:"status"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	Result    *Message   `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	// DataDir is the base directory of relative dataset paths.
	DataDir string
	// Timeout bounds a single import run.
	Timeout time.Duration
}

// Service starts imports in the background and keeps their state.
type Service struct {
	runner    Runner
	mutations *MutationsImport
	limiter   *ImportLimiter
	cfg       ServiceConfig

	mu      sync.RWMutex
	imports map[string]*ImportState
	cancels map[string]context.CancelFunc
}

func NewService(runner Runner, mi *MutationsImport, limiter *ImportLimiter, cfg ServiceConfig) *Service {
	if limiter == nil {
		limiter = NewImportLimiter(0, 0)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Hour
	}
	return &Service{
		runner:    runner,
		mutations: mi,
		limiter:   limiter,
		cfg:       cfg,
		imports:   make(map[string]*ImportState),
		cancels:   make(map[string]context.CancelFunc),
	}
}

// LoadDataset loads a dataset definition, relative to the data directory.
func (s *Service) LoadDataset(path string) (*core.Dataset, error) {
	if !filepath.IsAbs(path) && s.cfg.DataDir != "" {
		path = filepath.Join(s.cfg.DataDir, path)
	}
	return core.LoadDataset(path)
}

// Start loads the dataset and runs its import in the background. It
// returns ErrTooManyImports when no slot is free within the limiter's wait.
func (s *Service) Start(ctx context.Context, datasetPath string, useMutations bool) (string, error) {
	if useMutations && s.mutations == nil {
		return "", ErrMutationsDisabled
	}
	ds, err := s.LoadDataset(datasetPath)
	if err != nil {
		return "", err
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	id := uuid.NewString()
	state := &ImportState{
		ID:        id,
		Dataset:   datasetPath,
		Mutations: useMutations,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}
	// The run outlives the request that started it.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)

	s.mu.Lock()
	s.imports[id] = state
	s.cancels[id] = cancel
	s.mu.Unlock()

	logger := logging.WithFields(ctx, "import_id", id, "dataset", ds.Name())
	logger.Info("import queued", "mutations", useMutations)

	go func() {
		defer s.limiter.Release()
		defer cancel()

		var (
			msg *Message
			err error
		)
		if useMutations {
			msg, err = s.mutations.Run(runCtx, ds)
		} else {
			msg, err = s.runner.Run(runCtx, ds, "")
		}
		s.finish(id, msg, err)
	}()
	return id, nil
}

func (s *Service) finish(id string, msg *Message, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cancels, id)
	state := s.imports[id]
	now := time.Now()
	state.EndedAt = &now
	state.Result = msg
	switch {
	case err == nil:
		state.Status = StatusSucceeded
	case errors.Is(err, context.Canceled):
		state.Status = StatusCancelled
		state.Error = err.Error()
	case errors.Is(err, mutations.ErrNotYetAvailable):
		state.Status = StatusNotYetAvailable
		state.Error = err.Error()
	default:
		state.Status = StatusFailed
		state.Error = err.Error()
	}
}

// Get returns a copy of the state of an import.
func (s *Service) Get(id string) (ImportState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.imports[id]
	if !ok {
		return ImportState{}, fmt.Errorf("%w: %s", ErrImportNotFound, id)
	}
	return *state, nil
}

// Cancel stops a running import. The state turns cancelled once the run
// returns.
func (s *Service) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.imports[id]; !ok {
		return fmt.Errorf("%w: %s", ErrImportNotFound, id)
	}
	cancel, ok := s.cancels[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrImportFinished, id)
	}
	cancel()
	return nil
}

// List returns the states of all imports, oldest first.
func (s *Service) List() []ImportState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ImportState, 0, len(s.imports))
	for _, id := range slices.Sorted(maps.Keys(s.imports)) {
		out = append(out, *s.imports[id])
	}
	slices.SortStableFunc(out, func(a, b ImportState) int { return a.StartedAt.Compare(b.StartedAt) })
	return out
}

// MutationState returns the last recorded import of a collection and
// whether the next one is available.
func (s *Service) MutationState(ctx context.Context, catalogue, collection, application string) (*mutations.MutationImport, bool, error) {
	if s.mutations == nil {
		return nil, false, ErrMutationsDisabled
	}
	return s.mutations.State(ctx, catalogue, collection, application)
}

// Limiter returns the import limiter.
func (s *Service) Limiter() *ImportLimiter {
	return s.limiter
}

// Shutdown waits for running imports to finish or ctx to end.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
