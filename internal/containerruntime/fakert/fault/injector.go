// Package fault provides per-call-site fault injection for the fake
// container runtime, so lifecycle and gateway tests can exercise the
// teardown and rollback paths without a real
// runtime backend.
package fault

import (
	"strings"
	"sync"

	"scagent/internal/check"
)

// Hook lets a test inspect the arguments of a call before deciding whether
// to fail it.
type Hook func(args ...any) error

type pointFault struct {
	onceErrs  []error
	alwaysErr error
	hook      Hook
}

// Injector manages per-point fault injection for a fake adapter. It
// supports one-shot failures, persistent failures, and argument-aware
// hooks.
type Injector struct {
	mu     sync.Mutex
	points map[string]*pointFault
}

// NewInjector creates an empty Injector.
func NewInjector() *Injector {
	return &Injector{points: make(map[string]*pointFault)}
}

func (i *Injector) ensurePoint(point string) *pointFault {
	pf, ok := i.points[point]
	if !ok {
		pf = &pointFault{}
		i.points[point] = pf
	}
	return pf
}

// FailOnce injects err for the next evaluation of point.
func (i *Injector) FailOnce(point string, err error) {
	check.Assert(i != nil, "fault.Injector.FailOnce: receiver must not be nil")
	check.Assert(strings.TrimSpace(point) != "", "fault.Injector.FailOnce: point must not be empty")
	check.Assert(err != nil, "fault.Injector.FailOnce: err must not be nil")
	if i == nil || strings.TrimSpace(point) == "" || err == nil {
		return
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	pf := i.ensurePoint(point)
	pf.onceErrs = append(pf.onceErrs, err)
}

// FailAlways injects err on every evaluation of point.
func (i *Injector) FailAlways(point string, err error) {
	check.Assert(i != nil, "fault.Injector.FailAlways: receiver must not be nil")
	check.Assert(strings.TrimSpace(point) != "", "fault.Injector.FailAlways: point must not be empty")
	check.Assert(err != nil, "fault.Injector.FailAlways: err must not be nil")
	if i == nil || strings.TrimSpace(point) == "" || err == nil {
		return
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	pf := i.ensurePoint(point)
	pf.alwaysErr = err
}

// SetHook sets an argument-aware hook for point.
func (i *Injector) SetHook(point string, hook Hook) {
	if i == nil || strings.TrimSpace(point) == "" || hook == nil {
		return
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	pf := i.ensurePoint(point)
	pf.hook = hook
}

// Clear removes all faults for a single point.
func (i *Injector) Clear(point string) {
	if i == nil {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.points, point)
}

// Reset clears every injected fault.
func (i *Injector) Reset() {
	if i == nil {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.points = make(map[string]*pointFault)
}

// Eval evaluates point's faults in order: a queued one-shot error, then a
// persistent error, then an argument-aware hook. The first non-nil result
// wins.
func (i *Injector) Eval(point string, args ...any) error {
	if i == nil {
		return nil
	}
	i.mu.Lock()
	pf, ok := i.points[point]
	if !ok {
		i.mu.Unlock()
		return nil
	}
	var onceErr error
	if len(pf.onceErrs) > 0 {
		onceErr = pf.onceErrs[0]
		pf.onceErrs = pf.onceErrs[1:]
	}
	alwaysErr := pf.alwaysErr
	hook := pf.hook
	i.mu.Unlock()

	if onceErr != nil {
		return onceErr
	}
	if alwaysErr != nil {
		return alwaysErr
	}
	if hook != nil {
		return hook(args...)
	}
	return nil
}
