// Package gateway defines the contract every concrete gateway (DBus,
// File, Network, DeviceNode, Environment, Pulse, Cgroup) implements, and
// the Base helper that tracks the CREATED→CONFIGURED→ACTIVATED→TORN_DOWN
// state machine common to all of them.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"scagent/internal/containerruntime"
)

// State is a gateway's position in its state machine.
type State int

const (
	StateCreated State = iota
	StateConfigured
	StateActivated
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateConfigured:
		return "CONFIGURED"
	case StateActivated:
		return "ACTIVATED"
	case StateTornDown:
		return "TORN_DOWN"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Gateway is the capability set every concrete gateway implements
//. SetConfig may be called more than once; successive
// calls' fragments accumulate into the gateway's own configuration.
type Gateway interface {
	ID() string
	SetContainer(rt containerruntime.Runtime)
	SetConfig(fragments []json.RawMessage) bool
	IsConfigured() bool
	Activate(ctx context.Context) bool
	Teardown(ctx context.Context) bool
	State() State
}

// Base implements the state-tracking and container-handle bookkeeping
// shared by every concrete gateway. Concrete gateways embed Base and call
// its Mark* methods from their own SetConfig/Activate/Teardown so the
// legal-transition checks live in one place.
type Base struct {
	mu         sync.Mutex
	id         string
	state      State
	configured bool
	container  containerruntime.Runtime
}

// NewBase creates a Base in the CREATED state for the gateway named id.
func NewBase(id string) Base {
	return Base{id: id, state: StateCreated}
}

func (b *Base) ID() string { return b.id }

// SetContainer provides the runtime handle used for bind-mounts,
// environment variables, and symlink creation inside the container
//. It is a non-owning reference: the
// Container exclusively owns its Gateways, never the reverse.
func (b *Base) SetContainer(rt containerruntime.Runtime) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.container = rt
}

// Container returns the runtime handle set by SetContainer, or nil if
// none has been set yet.
func (b *Base) Container() containerruntime.Runtime {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.container
}

func (b *Base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Base) IsConfigured() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.configured
}

// MarkConfigured records that a SetConfig call succeeded. Called by the
// concrete gateway after validation.
func (b *Base) MarkConfigured() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.configured = true
	if b.state == StateCreated {
		b.state = StateConfigured
	}
}

// CanActivate reports whether Activate is legal to run: the gateway must
// have been configured. Calling Activate without configuration is a
// framework error — the concrete gateway should log it,
// call Teardown, and return false.
func (b *Base) CanActivate() bool {
	return b.IsConfigured() && b.State() == StateConfigured
}

// MarkActivated transitions CONFIGURED -> ACTIVATED.
func (b *Base) MarkActivated() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateActivated
}

// WasActivated reports whether the gateway reached ACTIVATED, for
// Teardown to decide whether there is anything to undo.
func (b *Base) WasActivated() bool {
	return b.State() == StateActivated
}

// MarkTornDown transitions to the terminal TORN_DOWN state from any
// state.
func (b *Base) MarkTornDown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateTornDown
}

// TeardownNoop logs the warning required when Teardown is called on a
// gateway that was never activated, then marks it torn down and reports
// success.
func (b *Base) TeardownNoop() bool {
	slog.Warn("gateway teardown called without prior activation", "gateway", b.id)
	b.MarkTornDown()
	return true
}

// RefuseActivateWithoutConfig logs the framework error raised when
// Activate is invoked on an unconfigured gateway, and leaves the gateway
// ready for the caller to Teardown.
func (b *Base) RefuseActivateWithoutConfig() {
	slog.Error("activate called without a prior successful set_config", "gateway", b.id)
}
