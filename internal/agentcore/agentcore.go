// Package agentcore implements AgentCore, the registry of live containers
// that routes the host bus's create/execute/suspend/resume/destroy/
// bind-mount/capability requests to the right ContainerLifecycle. The IPC
// façade that exposes these as bus methods is out of scope — this package
// is the typed API it would call into.
package agentcore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"

	"scagent/internal/capability"
	"scagent/internal/containerruntime"
	"scagent/internal/gateway"
	"scagent/internal/gateway/cgroupgw"
	"scagent/internal/gateway/dbusgw"
	"scagent/internal/gateway/devicenodegw"
	"scagent/internal/gateway/envgw"
	"scagent/internal/gateway/filegw"
	"scagent/internal/gateway/networkgw"
	"scagent/internal/gateway/pulsegw"
	"scagent/internal/lifecycle"
	"scagent/internal/netlinkhelper"
	"scagent/internal/scconfig"
	"scagent/internal/scerrors"
)

// Config bundles every dependency AgentCore needs to wire a new
// container's gateway set. RuntimeFactory must be set; VethPrefix,
// NetworkPrefixLen, CgroupUnitPrefix and DestroyTimeout fall back to
// defaults when left zero, and the other fields are used as given.
type Config struct {
	// GatewayDir is the base directory DBusGateway sockets are created
	// under.
	GatewayDir string
	// ProxyBinary is the external D-Bus filtering proxy executable.
	ProxyBinary string
	// VethPrefix + container id names the host-side veth NetworkGateway
	// looks up via netlinkhelper.LinkByName.
	VethPrefix string
	// BridgeName is the host bridge NetworkGateway verifies against.
	BridgeName string
	// NetworkPrefixLen is the prefix length applied to a container's
	// assigned address.
	NetworkPrefixLen int
	// CgroupUnitPrefix + container id names the systemd transient unit
	// CgroupGateway writes properties to.
	CgroupUnitPrefix string
	// SystemdConn is the shared systemd D-Bus connection CgroupGateway
	// writes unit properties through.
	SystemdConn cgroupgw.SystemdConn
	// DestroyTimeout is used for the destroy(timeout) step when teardown
	// is triggered by the attached process exiting on its own rather
	// than by an explicit Destroy request.
	DestroyTimeout int
	// RuntimeFactory builds the containerruntime.Runtime backing a newly
	// created container. Required.
	RuntimeFactory func(id int) (containerruntime.Runtime, error)
	// BuildGatewayFactories overrides how a container's gateway set is
	// instantiated. Defaults to AgentCore's own real-gateway wiring; test
	// callers substitute a smaller or fake set here rather than drive
	// the real netlink/systemd-dbus/D-Bus-proxy backends.
	BuildGatewayFactories func(id int) []lifecycle.GatewayFactory
}

func (c Config) withDefaults() Config {
	if c.VethPrefix == "" {
		c.VethPrefix = "sc-veth"
	}
	if c.NetworkPrefixLen == 0 {
		c.NetworkPrefixLen = 24
	}
	if c.CgroupUnitPrefix == "" {
		c.CgroupUnitPrefix = "softwarecontainer-"
	}
	if c.DestroyTimeout == 0 {
		c.DestroyTimeout = 5
	}
	return c
}

type containerEntry struct {
	// mu serializes every operation dispatched to this container; no two
	// operations on the same container id may overlap.
	mu      sync.Mutex
	lc      *lifecycle.Lifecycle
	options scconfig.Options
}

// AgentCore is the registry ContainerId -> Container.
type AgentCore struct {
	cfg      Config
	capStore *capability.Store
	observer lifecycle.Observer

	mu         sync.Mutex
	nextID     int
	containers map[int]*containerEntry
	outFiles   map[int]*os.File
}

// New creates an AgentCore. observer, if non-nil, receives every
// container's ProcessStateChanged events in arrival
// order; it must not block.
func New(cfg Config, capStore *capability.Store, observer lifecycle.Observer) *AgentCore {
	return &AgentCore{
		cfg:        cfg.withDefaults(),
		capStore:   capStore,
		observer:   observer,
		nextID:     1,
		containers: make(map[int]*containerEntry),
		outFiles:   make(map[int]*os.File),
	}
}

// List returns every live container id, ascending.
func (a *AgentCore) List() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]int, 0, len(a.containers))
	for id := range a.containers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// ListCapabilities returns every capability name the store knows.
func (a *AgentCore) ListCapabilities() []string {
	names := a.capStore.Names()
	sort.Strings(names)
	return names
}

func (a *AgentCore) lookup(id int) (*containerEntry, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.containers[id]
	return e, ok
}

func (a *AgentCore) drop(id int) {
	a.mu.Lock()
	delete(a.containers, id)
	a.mu.Unlock()
}

// wrapObserver closes any out_path file Execute opened for a container
// once that container's process state changes, then forwards the event
// to the AgentCore-level observer.
func (a *AgentCore) wrapObserver() lifecycle.Observer {
	return func(ev lifecycle.Event) {
		a.mu.Lock()
		f := a.outFiles[ev.ContainerId]
		delete(a.outFiles, ev.ContainerId)
		a.mu.Unlock()
		if f != nil {
			_ = f.Close()
		}
		if a.observer != nil {
			a.observer(ev)
		}
	}
}

// Create parses config, allocates the next container id, and triggers
// preload immediately. config's
// top-level JSON array may carry more than one element; only the first
// is applied to this container — SoftwareContainer creates one container
// per Create call, not one per array element.
func (a *AgentCore) Create(ctx context.Context, config string) (int, bool) {
	opts, err := scconfig.Parse(config)
	if err != nil {
		slog.Error("agentcore: create rejected", "err", err)
		return 0, false
	}
	var containerOpts scconfig.Options
	if len(opts) > 0 {
		containerOpts = opts[0]
	}

	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.mu.Unlock()

	if a.cfg.RuntimeFactory == nil {
		slog.Error("agentcore: create failed, no RuntimeFactory configured", "container_id", id)
		return 0, false
	}
	rt, err := a.cfg.RuntimeFactory(id)
	if err != nil {
		slog.Error("agentcore: create runtime failed", "container_id", id, "err", err)
		return 0, false
	}

	factories := a.gatewayFactories(id)
	entry := &containerEntry{options: containerOpts}
	lc := lifecycle.New(id, rt, a.capStore, factories, a.wrapObserver(), a.cfg.DestroyTimeout)
	lc.OnTerminated(func() { a.drop(id) })
	entry.lc = lc

	a.mu.Lock()
	a.containers[id] = entry
	a.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if err := lc.Preload(ctx); err != nil {
		slog.Error("agentcore: preload failed", "container_id", id, "err", err)
		a.drop(id)
		return 0, false
	}
	return id, true
}

// SetCapabilities resolves names and advances the container to READY.
func (a *AgentCore) SetCapabilities(ctx context.Context, id int, names []string) bool {
	entry, ok := a.lookup(id)
	if !ok {
		return false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if err := entry.lc.SetCapabilities(ctx, names); err != nil {
		slog.Error("agentcore: set_capabilities failed", "container_id", id, "err", err)
		return false
	}
	return true
}

// Execute attaches command inside the container, directing its combined
// output to outPath if non-empty, and advances it to RUNNING.
func (a *AgentCore) Execute(ctx context.Context, id int, command []string, cwd, outPath string, env map[string]string) (int, bool) {
	entry, ok := a.lookup(id)
	if !ok {
		return 0, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	var stdout io.Writer
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			slog.Error("agentcore: execute: open out_path failed", "container_id", id, "path", outPath, "err", err)
			return 0, false
		}
		a.mu.Lock()
		a.outFiles[id] = f
		a.mu.Unlock()
		stdout = f
	}

	pid, err := entry.lc.Execute(ctx, command, env, cwd, stdout)
	if err != nil {
		slog.Error("agentcore: execute failed", "container_id", id, "err", err)
		return 0, false
	}
	return pid, true
}

// Suspend freezes the container.
func (a *AgentCore) Suspend(ctx context.Context, id int) bool {
	entry, ok := a.lookup(id)
	if !ok {
		return false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if err := entry.lc.Suspend(ctx); err != nil {
		slog.Error("agentcore: suspend failed", "container_id", id, "err", err)
		return false
	}
	return true
}

// Resume thaws the container.
func (a *AgentCore) Resume(ctx context.Context, id int) bool {
	entry, ok := a.lookup(id)
	if !ok {
		return false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if err := entry.lc.Resume(ctx); err != nil {
		slog.Error("agentcore: resume failed", "container_id", id, "err", err)
		return false
	}
	return true
}

// Destroy tears the container down. A
// GatewayTeardownIncompleteError is logged but does not fail the call —
// teardown failures are non-fatal to the transition, and the container
// has genuinely reached TERMINATED.
func (a *AgentCore) Destroy(ctx context.Context, id, timeout int) bool {
	entry, ok := a.lookup(id)
	if !ok {
		return false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	err := entry.lc.Destroy(ctx, timeout)
	if err == nil {
		return true
	}

	var incomplete *scerrors.GatewayTeardownIncompleteError
	if errors.As(err, &incomplete) {
		slog.Warn("agentcore: destroy had incomplete gateway teardown", "container_id", id, "err", err)
		return true
	}
	slog.Error("agentcore: destroy failed", "container_id", id, "err", err)
	return false
}

// BindMount performs an ad hoc bind mount against a running container,
// independent of any FileGateway configuration.
func (a *AgentCore) BindMount(ctx context.Context, id int, hostPath, containerPath string, readOnly bool) bool {
	entry, ok := a.lookup(id)
	if !ok {
		return false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if _, err := entry.lc.BindMount(ctx, hostPath, containerPath, readOnly); err != nil {
		slog.Error("agentcore: bind_mount failed", "container_id", id, "err", err)
		return false
	}
	return true
}

func (a *AgentCore) gatewayFactories(id int) []lifecycle.GatewayFactory {
	if a.cfg.BuildGatewayFactories != nil {
		return a.cfg.BuildGatewayFactories(id)
	}
	return a.defaultGatewayFactories(id)
}

// defaultGatewayFactories wires the seven concrete gateways. That order
// is this container's gateway insertion order, which fixes activation
// order and (reversed) teardown order. Gateways that shape the
// container's create-time configuration (D-Bus, File, Environment,
// Pulse) come before the ones that exec commands inside the running
// container (Network, DeviceNode) or act on the host (Cgroup), since the
// first in-container exec freezes the create-time configuration.
func (a *AgentCore) defaultGatewayFactories(id int) []lifecycle.GatewayFactory {
	return []lifecycle.GatewayFactory{
		func(ctx context.Context) (gateway.Gateway, error) {
			return dbusgw.New(fmt.Sprintf("c%d", id), a.cfg.GatewayDir, a.cfg.ProxyBinary), nil
		},
		func(ctx context.Context) (gateway.Gateway, error) {
			return filegw.New(), nil
		},
		func(ctx context.Context) (gateway.Gateway, error) {
			return envgw.New(), nil
		},
		func(ctx context.Context) (gateway.Gateway, error) {
			return pulsegw.New(), nil
		},
		func(ctx context.Context) (gateway.Gateway, error) {
			return a.newNetworkGateway(id)
		},
		func(ctx context.Context) (gateway.Gateway, error) {
			return devicenodegw.New(), nil
		},
		func(ctx context.Context) (gateway.Gateway, error) {
			unit := fmt.Sprintf("%sc%d.scope", a.cfg.CgroupUnitPrefix, id)
			return cgroupgw.New(unit, a.cfg.SystemdConn), nil
		},
	}
}

// newNetworkGateway resolves the container's host-side veth ifindex
// through a Helper owned exclusively by this container and hands it to
// NetworkGateway as a plain int; no raw netlink state survives past the
// call that produced it.
func (a *AgentCore) newNetworkGateway(id int) (gateway.Gateway, error) {
	nl := netlinkhelper.New()
	if err := nl.Dump(); err != nil {
		return nil, fmt.Errorf("dump netlink state for container %d: %w", id, err)
	}
	vethName := fmt.Sprintf("%s%d", a.cfg.VethPrefix, id)
	link, ok := nl.LinkByName(vethName)
	if !ok {
		return nil, fmt.Errorf("veth interface %q for container %d not found", vethName, id)
	}
	return networkgw.New(nl, a.cfg.BridgeName, link.Index, a.cfg.NetworkPrefixLen), nil
}
