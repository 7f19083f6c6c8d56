// Package health tracks the health of cache subsystem components and
// drives graceful degradation. The response store, the memory monitor,
// and individual project caches register here; repeated failures move a
// component through degraded and read-only states before it is marked
// unavailable.
package health

import (
	"context"
	stderr "errors"
	"fmt"
	"sync"
	"time"

	"github.com/draftcache/draftcache/pkg/cacheerr"
)

// State represents the health of a component.
type State int

const (
	// StateHealthy indicates the component is fully operational.
	StateHealthy State = iota

	// StateDegraded indicates the component works but has been failing.
	StateDegraded

	// StateReadOnly indicates writes fail but cached reads still serve.
	StateReadOnly

	// StateUnavailable indicates the component is not operational.
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateReadOnly:
		return "read-only"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// ComponentHealth is a snapshot of one component's health.
type ComponentHealth struct {
	Name              string    `json:"name"`
	State             State     `json:"state"`
	LastStateChange   time.Time `json:"last_state_change"`
	LastCheck         time.Time `json:"last_check"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
	LastError         error     `json:"-"`
	LastErrorMessage  string    `json:"last_error_message,omitempty"`
}

// Config controls when error counts translate into state changes.
type Config struct {
	// ErrorThreshold is the number of consecutive errors before a
	// component is marked degraded or read-only.
	ErrorThreshold int `yaml:"error_threshold"`

	// UnavailableThreshold is the number of consecutive errors before a
	// component is marked unavailable.
	UnavailableThreshold int `yaml:"unavailable_threshold"`

	// CheckInterval is the period for StartChecks probes.
	CheckInterval time.Duration `yaml:"check_interval"`
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		ErrorThreshold:       3,
		UnavailableThreshold: 10,
		CheckInterval:        30 * time.Second,
	}
}

// StateChangeCallback is invoked when a component changes state.
type StateChangeCallback func(component string, oldState, newState State, err error)

// Tracker tracks component health and derives overall subsystem health
// from the worst component.
type Tracker struct {
	mu         sync.RWMutex
	components map[string]*ComponentHealth
	config     Config
	callbacks  []StateChangeCallback
}

// NewTracker creates a tracker with the given thresholds.
func NewTracker(config Config) *Tracker {
	if config.ErrorThreshold <= 0 {
		config.ErrorThreshold = 3
	}
	if config.UnavailableThreshold <= config.ErrorThreshold {
		config.UnavailableThreshold = config.ErrorThreshold * 3
	}
	return &Tracker{
		components: make(map[string]*ComponentHealth),
		config:     config,
	}
}

// Register adds a component in the healthy state. Registering an
// existing component is a no-op.
func (t *Tracker) Register(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.components[name]; !exists {
		t.components[name] = &ComponentHealth{
			Name:            name,
			State:           StateHealthy,
			LastStateChange: time.Now(),
			LastCheck:       time.Now(),
		}
	}
}

// Unregister removes a component, for example a closed project cache.
func (t *Tracker) Unregister(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.components, name)
}

// RecordSuccess notes a successful operation. Successes pay down the
// error count one at a time; a component recovers once it reaches zero.
func (t *Tracker) RecordSuccess(component string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, exists := t.components[component]
	if !exists {
		return
	}

	h.LastCheck = time.Now()
	if h.ConsecutiveErrors == 0 {
		return
	}
	h.ConsecutiveErrors--
	if h.ConsecutiveErrors == 0 && h.State != StateHealthy {
		t.transition(h, StateHealthy, nil)
	}
}

// RecordError notes a failed operation and applies the thresholds.
func (t *Tracker) RecordError(component string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, exists := t.components[component]
	if !exists {
		return
	}

	h.LastCheck = time.Now()
	h.ConsecutiveErrors++
	h.LastError = err
	if err != nil {
		h.LastErrorMessage = err.Error()
	}

	newState := h.State
	switch {
	case h.ConsecutiveErrors >= t.config.UnavailableThreshold:
		newState = StateUnavailable
	case h.ConsecutiveErrors >= t.config.ErrorThreshold:
		if isWriteError(err) {
			newState = StateReadOnly
		} else {
			newState = StateDegraded
		}
	}

	if newState != h.State {
		t.transition(h, newState, err)
	}
}

// GetState returns the state of a component, or StateUnavailable for an
// unknown name.
func (t *Tracker) GetState(component string) State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if h, exists := t.components[component]; exists {
		return h.State
	}
	return StateUnavailable
}

// GetComponentHealth returns a copy of one component's health.
func (t *Tracker) GetComponentHealth(component string) (*ComponentHealth, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	h, exists := t.components[component]
	if !exists {
		return nil, fmt.Errorf("component %s not registered", component)
	}
	snapshot := *h
	return &snapshot, nil
}

// GetAllComponents returns copies of every component's health.
func (t *Tracker) GetAllComponents() map[string]*ComponentHealth {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(map[string]*ComponentHealth, len(t.components))
	for name, h := range t.components {
		snapshot := *h
		result[name] = &snapshot
	}
	return result
}

// Overall returns the worst state across all components. An empty
// tracker is healthy.
func (t *Tracker) Overall() State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	overall := StateHealthy
	for _, h := range t.components {
		if h.State > overall {
			overall = h.State
		}
	}
	return overall
}

// CanRead reports whether cached reads should still be attempted.
func (t *Tracker) CanRead(component string) bool {
	return t.GetState(component) != StateUnavailable
}

// CanWrite reports whether writes should still be attempted.
func (t *Tracker) CanWrite(component string) bool {
	state := t.GetState(component)
	return state == StateHealthy || state == StateDegraded
}

// OnStateChange registers a callback for every state transition.
func (t *Tracker) OnStateChange(callback StateChangeCallback) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks = append(t.callbacks, callback)
}

// transition must be called with the lock held.
func (t *Tracker) transition(h *ComponentHealth, newState State, err error) {
	oldState := h.State
	h.State = newState
	h.LastStateChange = time.Now()

	if newState == StateHealthy {
		h.ConsecutiveErrors = 0
		h.LastError = nil
		h.LastErrorMessage = ""
	}

	for _, callback := range t.callbacks {
		go callback(h.Name, oldState, newState, err)
	}
}

// isWriteError reports whether the error indicates writes fail while
// reads may still serve from what is already stored.
func isWriteError(err error) bool {
	if err == nil {
		return false
	}
	var cerr *cacheerr.Error
	if stderr.As(err, &cerr) {
		return cerr.Code == cacheerr.ErrCodeStorageWrite
	}
	return false
}

// StartChecks probes every registered component on the configured
// interval until the context is cancelled. checkFn returns nil when the
// component is healthy.
func (t *Tracker) StartChecks(ctx context.Context, checkFn func(ctx context.Context, component string) error) {
	interval := t.config.CheckInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.runChecks(ctx, checkFn)
		}
	}
}

func (t *Tracker) runChecks(ctx context.Context, checkFn func(ctx context.Context, component string) error) {
	t.mu.RLock()
	names := make([]string, 0, len(t.components))
	for name := range t.components {
		names = append(names, name)
	}
	t.mu.RUnlock()

	for _, name := range names {
		if err := checkFn(ctx, name); err != nil {
			t.RecordError(name, err)
		} else {
			t.RecordSuccess(name)
		}
	}
}
