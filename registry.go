package gerbang

import "sync"

// Registry hands out one Mediator per upstream target so each target gets
// its own rate-limit window and circuit breaker. Mediators are constructed
// lazily from the shared option set, plus WithTarget for the metrics label.
type Registry struct {
	mu        sync.RWMutex
	mediators map[string]*Mediator
	options   []Option
	metrics   *MetricsCollector
}

// NewRegistry creates a registry whose mediators share the given options.
// A metrics collector requested via WithMetrics is resolved once here and
// shared by every target; re-registering it per target would collide on the
// metric names.
func NewRegistry(options ...Option) *Registry {
	scratch := &Mediator{}
	for _, option := range options {
		option(scratch)
	}
	metrics := scratch.metrics
	if metrics == nil && scratch.wantMetrics {
		metrics = NewMetricsCollector()
	}

	return &Registry{
		mediators: make(map[string]*Mediator),
		options:   options,
		metrics:   metrics,
	}
}

// Target returns the mediator for the named upstream target, creating it on
// first use. Repeated calls with the same name return the same instance.
func (r *Registry) Target(name string) *Mediator {
	if name == "" {
		name = "default"
	}

	r.mu.RLock()
	med, exists := r.mediators[name]
	r.mu.RUnlock()
	if exists {
		return med
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if med, exists = r.mediators[name]; exists {
		return med
	}

	options := make([]Option, 0, len(r.options)+2)
	options = append(options, r.options...)
	options = append(options, WithTarget(name))
	if r.metrics != nil {
		options = append(options, WithMetricsCollector(r.metrics))
	}
	med = New(options...)
	r.mediators[name] = med
	return med
}

// Targets returns the names of the mediators constructed so far.
func (r *Registry) Targets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.mediators))
	for name := range r.mediators {
		names = append(names, name)
	}
	return names
}
