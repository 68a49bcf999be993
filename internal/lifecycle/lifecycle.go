// Package lifecycle implements ContainerLifecycle, the per-container state
// machine that sequences preload, capability-driven gateway configuration
// and activation, command execution, suspend/resume, and teardown. It is
// the component AgentCore drives per container id.
package lifecycle

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"scagent/internal/capability"
	"scagent/internal/containerruntime"
	"scagent/internal/gateway"
	"scagent/internal/scerrors"
)

// State is a container's position in the CREATED→PRELOADED→READY→RUNNING⇄
// SUSPENDED→TERMINATED machine.
type State int

const (
	StateCreated State = iota
	StatePreloaded
	StateReady
	StateRunning
	StateSuspended
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StatePreloaded:
		return "PRELOADED"
	case StateReady:
		return "READY"
	case StateRunning:
		return "RUNNING"
	case StateSuspended:
		return "SUSPENDED"
	case StateTerminated:
		return "TERMINATED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// GatewayFactory instantiates one unconfigured gateway for a container
// being preloaded. Factories are supplied in a fixed order by the caller
// (AgentCore); that order is the insertion order activation follows and
// teardown reverses.
type GatewayFactory func(ctx context.Context) (gateway.Gateway, error)

// Event is delivered to a Lifecycle's Observer when the attached process's
// run state changes.
type Event struct {
	ContainerId int
	Pid         int
	IsRunning   bool
	ExitCode    int
}

// Observer receives ProcessStateChanged events in the order the
// underlying child-exit events arrived.
type Observer func(Event)

// Lifecycle is the per-container state machine. It is safe for concurrent
// use, but the caller (AgentCore) serializes operations on a single
// container id regardless — Lifecycle's own locking exists to protect its
// bookkeeping from the watcher goroutine started by Execute, not to allow
// overlapping operations.
type Lifecycle struct {
	id        int
	runtime   containerruntime.Runtime
	capStore  *capability.Store
	factories []GatewayFactory
	observer  Observer
	// defaultDestroyTimeout is used for the destroy(timeout) step when
	// teardown is triggered by the attached process exiting on its own
	// rather than by an explicit Destroy call.
	defaultDestroyTimeout int

	mu           mutex
	state        State
	gateways     []gateway.Gateway
	pids         []int
	onTerminated func()
}

// New creates a Lifecycle for container id, not yet preloaded. factories
// are instantiated, in order, during Preload.
func New(id int, runtime containerruntime.Runtime, capStore *capability.Store, factories []GatewayFactory, observer Observer, defaultDestroyTimeout int) *Lifecycle {
	return &Lifecycle{
		id:                    id,
		runtime:               runtime,
		capStore:              capStore,
		factories:             factories,
		observer:              observer,
		defaultDestroyTimeout: defaultDestroyTimeout,
		state:                 StateCreated,
	}
}

// ID returns the container id this Lifecycle drives.
func (l *Lifecycle) ID() int { return l.id }

// OnTerminated registers fn to run once, after this container reaches
// TERMINATED, regardless of whether that happened via an explicit Destroy
// or the attached process exiting on its own. AgentCore uses this to drop
// the container from its registry.
func (l *Lifecycle) OnTerminated(fn func()) {
	l.mu.Lock()
	l.onTerminated = fn
	l.mu.Unlock()
}

// Pids returns the pid of every process attached via Execute, in
// attachment order.
func (l *Lifecycle) Pids() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.pids...)
}

// State returns the current lifecycle state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Lifecycle) stateError(op string) error {
	return &scerrors.StateError{ContainerId: l.id, State: l.State().String(), Operation: op}
}

// Preload creates and starts the underlying runtime with no user
// workload, then instantiates every gateway the caller registered.
// Gateways are not configured or activated here — that happens in
// SetCapabilities, once the capability set is known.
func (l *Lifecycle) Preload(ctx context.Context) error {
	l.mu.Lock()
	if l.state != StateCreated {
		l.mu.Unlock()
		return l.stateError("preload")
	}
	l.mu.Unlock()

	if err := l.runtime.Create(ctx); err != nil {
		return err
	}
	if _, err := l.runtime.Start(ctx); err != nil {
		return err
	}

	gateways := make([]gateway.Gateway, 0, len(l.factories))
	for _, f := range l.factories {
		g, err := f(ctx)
		if err != nil {
			return fmt.Errorf("instantiate gateway: %w", err)
		}
		g.SetContainer(l.runtime)
		gateways = append(gateways, g)
	}

	l.mu.Lock()
	l.gateways = gateways
	l.state = StatePreloaded
	l.mu.Unlock()
	return nil
}

// SetCapabilities resolves names through the CapabilityStore and, for
// every preloaded gateway the resolved configuration names, configures
// and activates it in the gateways' instantiation order.
//
// A gateway whose SetConfig fails is discarded for this container
// without failing the transition. A gateway whose Activate fails
// aborts the transition: every gateway already activated in this call is
// torn down in reverse order, and the container lands back at PRELOADED
// if every rollback teardown succeeded, or TERMINATED if one did not.
func (l *Lifecycle) SetCapabilities(ctx context.Context, names []string) error {
	l.mu.Lock()
	if l.state != StatePreloaded {
		l.mu.Unlock()
		return l.stateError("set_capabilities")
	}
	gateways := append([]gateway.Gateway(nil), l.gateways...)
	l.mu.Unlock()

	cfg, err := l.capStore.Resolve(names)
	if err != nil {
		return err
	}

	var selected []gateway.Gateway
	for _, g := range gateways {
		frags := cfg.Get(g.ID())
		if frags == nil {
			continue
		}
		if !g.SetConfig(frags) {
			slog.Warn("lifecycle: gateway set_config failed, discarding for this container", "container_id", l.id, "gateway", g.ID())
			continue
		}
		selected = append(selected, g)
	}

	var activated []gateway.Gateway
	for _, g := range selected {
		if !g.Activate(ctx) {
			rollbackOK := true
			for i := len(activated) - 1; i >= 0; i-- {
				if !activated[i].Teardown(ctx) {
					rollbackOK = false
				}
			}
			l.mu.Lock()
			if rollbackOK {
				l.state = StatePreloaded
			} else {
				l.state = StateTerminated
			}
			l.mu.Unlock()
			return fmt.Errorf("activate gateway %q: failed, rolled back (clean=%v)", g.ID(), rollbackOK)
		}
		activated = append(activated, g)
	}

	l.mu.Lock()
	l.state = StateReady
	l.mu.Unlock()
	return nil
}

// Execute attaches cmd inside the running container and starts a watcher
// goroutine that fires the Observer and initiates shutdown when the
// attached process exits.
func (l *Lifecycle) Execute(ctx context.Context, cmd []string, env map[string]string, cwd string, stdout io.Writer) (int, error) {
	l.mu.Lock()
	if l.state != StateReady {
		l.mu.Unlock()
		return 0, l.stateError("execute")
	}
	l.mu.Unlock()

	pid, err := l.runtime.Attach(ctx, containerruntime.ExecConfig{Command: cmd, Env: env, Cwd: cwd, Stdout: stdout})
	if err != nil {
		return 0, err
	}

	l.mu.Lock()
	l.state = StateRunning
	l.pids = append(l.pids, pid)
	l.mu.Unlock()

	go l.watchChild(ctx, pid)

	return pid, nil
}

func (l *Lifecycle) watchChild(ctx context.Context, pid int) {
	exitCode, err := l.runtime.Wait(ctx, pid)
	if err != nil {
		slog.Error("lifecycle: wait for attached process failed", "container_id", l.id, "pid", pid, "err", err)
	}

	if l.observer != nil {
		l.observer(Event{ContainerId: l.id, Pid: pid, IsRunning: false, ExitCode: exitCode})
	}

	if terr := l.terminate(ctx, l.defaultDestroyTimeout); terr != nil {
		slog.Warn("lifecycle: teardown after child exit had failures", "container_id", l.id, "err", terr)
	}
}

// Suspend freezes every process in the container.
func (l *Lifecycle) Suspend(ctx context.Context) error {
	l.mu.Lock()
	if l.state != StateRunning {
		l.mu.Unlock()
		return l.stateError("suspend")
	}
	l.mu.Unlock()

	if err := l.runtime.Suspend(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	l.state = StateSuspended
	l.mu.Unlock()
	return nil
}

// Resume thaws a suspended container.
func (l *Lifecycle) Resume(ctx context.Context) error {
	l.mu.Lock()
	if l.state != StateSuspended {
		l.mu.Unlock()
		return l.stateError("resume")
	}
	l.mu.Unlock()

	if err := l.runtime.Resume(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	l.state = StateRunning
	l.mu.Unlock()
	return nil
}

// BindMount performs an ad hoc bind mount against the running container,
// independent of any FileGateway configuration.
// Valid once the container has reached READY or later.
func (l *Lifecycle) BindMount(ctx context.Context, hostPath, containerPath string, readOnly bool) (string, error) {
	l.mu.Lock()
	state := l.state
	l.mu.Unlock()
	if state == StateCreated || state == StatePreloaded {
		return "", l.stateError("bind_mount")
	}
	return l.runtime.BindMount(ctx, hostPath, containerPath, readOnly)
}

// Destroy tears down every instantiated gateway in reverse instantiation
// order, then destroys the underlying runtime, reaching TERMINATED from
// any non-terminal state.
// Gateway teardown failures are aggregated and returned but never prevent
// the state transition from completing.
func (l *Lifecycle) Destroy(ctx context.Context, timeout int) error {
	l.mu.Lock()
	if l.state == StateTerminated {
		l.mu.Unlock()
		return l.stateError("destroy")
	}
	l.mu.Unlock()

	return l.terminate(ctx, timeout)
}

func (l *Lifecycle) terminate(ctx context.Context, timeout int) error {
	l.mu.Lock()
	if l.state == StateTerminated {
		l.mu.Unlock()
		return nil
	}
	gateways := append([]gateway.Gateway(nil), l.gateways...)
	l.mu.Unlock()

	var failed []string
	for i := len(gateways) - 1; i >= 0; i-- {
		if !gateways[i].Teardown(ctx) {
			failed = append(failed, gateways[i].ID())
		}
	}

	runtimeErr := l.runtime.Destroy(ctx, timeout)
	if runtimeErr != nil {
		slog.Error("lifecycle: runtime destroy failed", "container_id", l.id, "err", runtimeErr)
	}

	l.mu.Lock()
	l.state = StateTerminated
	onTerminated := l.onTerminated
	l.mu.Unlock()

	if onTerminated != nil {
		onTerminated()
	}

	if len(failed) > 0 {
		slog.Warn("lifecycle: gateway teardown incomplete", "container_id", l.id, "gateways", failed)
		if runtimeErr != nil {
			return fmt.Errorf("%w (and runtime destroy failed: %v)", &scerrors.GatewayTeardownIncompleteError{FailedGatewayIds: failed}, runtimeErr)
		}
		return &scerrors.GatewayTeardownIncompleteError{FailedGatewayIds: failed}
	}
	return runtimeErr
}
