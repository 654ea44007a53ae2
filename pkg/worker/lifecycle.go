package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/devhammed/offline-cache/pkg/logging"
	"github.com/rs/zerolog"
)

// State is a worker lifecycle state.
type State int32

const (
	// StateParsed is a constructed worker that was never registered.
	StateParsed State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActivated
	// StateRedundant is a worker whose install failed or that was replaced.
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateParsed:
		return "parsed"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	case StateRedundant:
		return "redundant"
	default:
		return "unknown"
	}
}

// State returns the worker's lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
	w.logger.Debug().Str("state", s.String()).Msg("Worker state changed")
}

// retire marks w redundant once its in-flight cache writes have finished.
// Writes that start afterwards see the redundant state and are skipped.
func (w *Worker) retire() {
	w.writes.Lock()
	defer w.writes.Unlock()
	w.setState(StateRedundant)
}

// Registration owns the active worker for an origin.
type Registration struct {
	// mu serializes Register calls
	mu     sync.Mutex
	active atomic.Pointer[Worker]
	logger zerolog.Logger
}

// NewRegistration creates an empty registration.
func NewRegistration() *Registration {
	return &Registration{
		logger: logging.NewLogger("registration"),
	}
}

// Active returns the worker serving requests, or nil.
func (r *Registration) Active() *Worker {
	return r.active.Load()
}

// Register installs w and, on success, activates it in place of the current
// worker. If install fails w becomes redundant and the current worker keeps
// serving. A failed stale bucket listing during activation is logged and does
// not prevent w from becoming active.
func (r *Registration) Register(ctx context.Context, w *Worker) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current := r.active.Load(); current == w {
		return nil
	}

	w.setState(StateInstalling)
	if err := w.Install(ctx); err != nil {
		w.setState(StateRedundant)
		return err
	}
	w.setState(StateInstalled)

	w.setState(StateActivating)
	previous := r.active.Swap(w)
	if previous != nil {
		previous.retire()
	}

	if _, err := w.Activate(ctx); err != nil {
		r.logger.Warn().
			Err(err).
			Str("version", w.Version()).
			Msg("Stale bucket cleanup failed")
	}
	w.setState(StateActivated)

	event := r.logger.Info().Str("version", w.Version())
	if previous != nil {
		event = event.Str("replaced", previous.Version())
	}
	event.Msg("Worker activated")

	return nil
}
