package worker

import (
	"context"
	"fmt"

	"github.com/learnhub/enrollment-be/internal/domain"
)

// HandlerFunc processes one claimed job. report may be called with 0-100
// batch progress; it is best-effort and never fails the job. The returned
// map is stored as the job result.
type HandlerFunc func(ctx context.Context, job *domain.Job, report func(progress int)) (map[string]interface{}, error)

// Registry maps job kinds to their handlers. Built once at startup; an
// unregistered kind fails terminally rather than being retried.
type Registry struct {
	handlers map[domain.JobKind]HandlerFunc
}

// NewRegistry creates an empty Registry
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[domain.JobKind]HandlerFunc),
	}
}

// Register binds a handler to a job kind. Double registration is a
// programming error and rejected.
func (r *Registry) Register(kind domain.JobKind, handler HandlerFunc) error {
	if _, exists := r.handlers[kind]; exists {
		return fmt.Errorf("handler already registered for kind %s", kind)
	}
	r.handlers[kind] = handler
	return nil
}

// Lookup returns the handler for a kind.
func (r *Registry) Lookup(kind domain.JobKind) (HandlerFunc, bool) {
	h, ok := r.handlers[kind]
	return h, ok
}

// Kinds returns all registered kinds, for startup logging.
func (r *Registry) Kinds() []domain.JobKind {
	kinds := make([]domain.JobKind, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	return kinds
}
