package controlplane

import (
	"errors"
	"sync"
	"time"
)

var errHumanInputTimeout = errors.New("timed out waiting for human input")

// humanInputRegistry tracks outstanding request_human_input calls so a
// separate answer path (the CLI, or a future dashboard) can resolve them.
type humanInputRegistry struct {
	mu      sync.Mutex
	pending map[string]chan string
}

func newHumanInputRegistry() *humanInputRegistry {
	return &humanInputRegistry{pending: make(map[string]chan string)}
}

// register opens a pending slot for requestID and returns a function that
// blocks the caller until Answer is called for the same id or timeout
// elapses.
func (r *humanInputRegistry) register(requestID string) func(timeout time.Duration) (string, error) {
	ch := make(chan string, 1)
	r.mu.Lock()
	r.pending[requestID] = ch
	r.mu.Unlock()

	return func(timeout time.Duration) (string, error) {
		defer func() {
			r.mu.Lock()
			delete(r.pending, requestID)
			r.mu.Unlock()
		}()
		select {
		case answer := <-ch:
			return answer, nil
		case <-time.After(timeout):
			return "", errHumanInputTimeout
		}
	}
}

// Answer resolves a pending request_human_input call with the given
// answer. Returns false if no such request is outstanding.
func (s *Server) Answer(requestID, answer string) bool {
	return s.human.answer(requestID, answer)
}

func (r *humanInputRegistry) answer(requestID, answer string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.pending[requestID]
	if !ok {
		return false
	}
	select {
	case ch <- answer:
	default:
	}
	return true
}
