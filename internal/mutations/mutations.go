// Package mutations decides how the next import of a mutation fed dataset
// runs: a full snapshot or a daily delta, based on the import history and
// the files that are available upstream.
package mutations

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JonMunkholm/gobimport/internal/core"
)

// Mode of a mutation import.
type Mode string

const (
	ModeFull      Mode = "FULL"
	ModeMutations Mode = "MUTATIONS"
)

var (
	// ErrNotYetAvailable means the next file is not published yet. It is
	// not a failure; the caller retries later.
	ErrNotYetAvailable = errors.New("next import file not yet available")

	// ErrUnknownApplication is returned for applications without handler.
	ErrUnknownApplication = errors.New("no mutations handler for application")

	// ErrInvalidFilename is returned when a recorded filename cannot be
	// parsed.
	ErrInvalidFilename = errors.New("invalid mutation filename")
)

// MutationImport is one import cycle in the history of a collection.
type MutationImport struct {
	ID          int64      `json:"id"`
	Catalogue   string     `json:"catalogue"`
	Collection  string     `json:"collection"`
	Application string     `json:"application"`
	StartedAt   time.Time  `json:"startedAt"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
	Filename    string     `json:"filename"`
	Mode        Mode       `json:"mode"`
}

// Ended reports whether the import completed.
func (m *MutationImport) Ended() bool {
	return m.EndedAt != nil
}

// Decision is the outcome of the state machine: the record for the next
// import (not yet saved) and the read config updates for its reader.
type Decision struct {
	Import     MutationImport
	ReadConfig map[string]any
}

// Handler decides the next import for one source application.
type Handler interface {
	// HandleImport returns the next import given the last recorded one,
	// which is nil when there is no history. It returns ErrNotYetAvailable
	// when the next file is not published yet.
	HandleImport(ctx context.Context, last *MutationImport, ds *core.Dataset) (Decision, error)
}

// HaveNext reports whether an import can follow current right away. It runs
// the transition as if current had completed.
func HaveNext(ctx context.Context, h Handler, current *MutationImport, ds *core.Dataset) (bool, error) {
	var probe *MutationImport
	if current != nil {
		cp := *current
		if cp.EndedAt == nil {
			now := time.Now()
			cp.EndedAt = &now
		}
		probe = &cp
	}
	_, err := h.HandleImport(ctx, probe, ds)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotYetAvailable):
		return false, nil
	default:
		return false, err
	}
}

// Options configure the handlers.
type Options struct {
	BaseURL  string
	Gemeente string
	Lister   Lister
	Now      func() time.Time
}

// HandlerFactory builds a handler from options.
type HandlerFactory func(opts Options) Handler

var (
	handlers   = make(map[string]HandlerFactory)
	handlersMu sync.RWMutex
)

func init() {
	RegisterHandler("BAGExtract", func(opts Options) Handler { return NewBagExtractHandler(opts) })
}

// RegisterHandler registers the handler for a source application.
// Panics if the application already has a handler.
func RegisterHandler(application string, f HandlerFactory) {
	handlersMu.Lock()
	defer handlersMu.Unlock()

	if _, exists := handlers[application]; exists {
		panic(fmt.Sprintf("mutations handler already registered: %s", application))
	}
	handlers[application] = f
}

// HandlerFor returns the handler of a source application.
func HandlerFor(application string, opts Options) (Handler, error) {
	handlersMu.RLock()
	f, ok := handlers[application]
	handlersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownApplication, application)
	}
	return f(opts), nil
}
