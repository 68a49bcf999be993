// Package fakert is an in-memory containerruntime.Runtime used by
// lifecycle and gateway tests, with per-call fault injection so the
// activation-failure and destroy-failure paths are
// exercisable without a real container backend.
package fakert

import (
	"context"
	"fmt"
	"sync"

	"scagent/internal/check"
	"scagent/internal/containerruntime"
	"scagent/internal/containerruntime/fakert/fault"
)

var _ containerruntime.Runtime = (*Runtime)(nil)

const (
	FaultCreate        = "containerruntime.create"
	FaultStart         = "containerruntime.start"
	FaultAttach        = "containerruntime.attach"
	FaultBindMount     = "containerruntime.bind_mount"
	FaultCreateSymlink = "containerruntime.create_symlink"
	FaultSetEnv        = "containerruntime.set_env"
	FaultSuspend       = "containerruntime.suspend"
	FaultResume        = "containerruntime.resume"
	FaultDestroy       = "containerruntime.destroy"
)

type mount struct {
	hostPath      string
	containerPath string
	readOnly      bool
}

type symlink struct {
	target string
	link   string
}

type state int

const (
	stateCreated state = iota
	stateStarted
	stateSuspended
	stateDestroyed
)

type exitResult struct {
	code int
	err  error
}

// Runtime is an in-memory implementation of containerruntime.Runtime.
type Runtime struct {
	CallRecorder

	mu      sync.Mutex
	state   state
	nextPid int
	pids    []int
	env     map[string]string
	mounts  []mount
	links   []symlink
	faults  *fault.Injector
	waiters map[int]chan exitResult

	CreateErr        func(ctx context.Context) error
	StartErr         func(ctx context.Context) error
	AttachErr        func(ctx context.Context, cfg containerruntime.ExecConfig) error
	BindMountErr     func(ctx context.Context, hostPath, containerPath string) error
	CreateSymlinkErr func(ctx context.Context, target, link string) error
	SetEnvErr        func(ctx context.Context, name, value string) error
	SuspendErr       func(ctx context.Context) error
	ResumeErr        func(ctx context.Context) error
	DestroyErr       func(ctx context.Context, timeout int) error
}

// New creates a Runtime in the CREATED state.
func New() *Runtime {
	return &Runtime{
		nextPid: 1000,
		env:     make(map[string]string),
		faults:  fault.NewInjector(),
		waiters: make(map[int]chan exitResult),
	}
}

func (r *Runtime) FailOnce(point string, err error)        { r.faults.FailOnce(point, err) }
func (r *Runtime) FailAlways(point string, err error)      { r.faults.FailAlways(point, err) }
func (r *Runtime) SetFaultHook(point string, h fault.Hook) { r.faults.SetHook(point, h) }
func (r *Runtime) ClearFault(point string)                 { r.faults.Clear(point) }
func (r *Runtime) ResetFaults()                            { r.faults.Reset() }

func (r *Runtime) evalFault(point string, args ...any) error {
	check.Assert(r != nil, "fakert.Runtime.evalFault: receiver must not be nil")
	check.Assert(r.faults != nil, "fakert.Runtime.evalFault: faults injector must not be nil")
	if r == nil || r.faults == nil {
		return nil
	}
	return r.faults.Eval(point, args...)
}

func (r *Runtime) allocPid() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	pid := r.nextPid
	r.nextPid++
	r.pids = append(r.pids, pid)
	r.waiters[pid] = make(chan exitResult, 1)
	return pid
}

// Wait blocks until a test calls Exit for pid (or ctx is cancelled).
func (r *Runtime) Wait(ctx context.Context, pid int) (int, error) {
	r.mu.Lock()
	ch, ok := r.waiters[pid]
	r.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("fakert: wait on unknown pid %d", pid)
	}

	select {
	case res := <-ch:
		return res.code, res.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Exit simulates the process started with the given pid exiting with
// exitCode, unblocking any Wait call for it. Tests call this to drive
// ContainerLifecycle's child-exit path.
func (r *Runtime) Exit(pid int, exitCode int) {
	r.mu.Lock()
	ch, ok := r.waiters[pid]
	r.mu.Unlock()
	check.Assert(ok, fmt.Sprintf("fakert.Runtime.Exit: unknown pid %d", pid))
	if !ok {
		return
	}
	ch <- exitResult{code: exitCode}
}

func (r *Runtime) Create(ctx context.Context) error {
	r.record("Create")
	if err := r.evalFault(FaultCreate, ctx); err != nil {
		return err
	}
	if r.CreateErr != nil {
		if err := r.CreateErr(ctx); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = stateCreated
	return nil
}

func (r *Runtime) Start(ctx context.Context) (int, error) {
	r.record("Start")
	if err := r.evalFault(FaultStart, ctx); err != nil {
		return 0, err
	}
	if r.StartErr != nil {
		if err := r.StartErr(ctx); err != nil {
			return 0, err
		}
	}
	pid := r.allocPid()
	r.mu.Lock()
	r.state = stateStarted
	r.mu.Unlock()
	return pid, nil
}

func (r *Runtime) Attach(ctx context.Context, cfg containerruntime.ExecConfig) (int, error) {
	r.record("Attach", cfg)
	if err := r.evalFault(FaultAttach, ctx, cfg); err != nil {
		return 0, err
	}
	if r.AttachErr != nil {
		if err := r.AttachErr(ctx, cfg); err != nil {
			return 0, err
		}
	}
	r.mu.Lock()
	started := r.state == stateStarted
	r.mu.Unlock()
	if !started {
		return 0, fmt.Errorf("fakert: cannot attach, container is not running")
	}
	return r.allocPid(), nil
}

func (r *Runtime) BindMount(ctx context.Context, hostPath, containerPath string, readOnly bool) (string, error) {
	r.record("BindMount", hostPath, containerPath, readOnly)
	if err := r.evalFault(FaultBindMount, ctx, hostPath, containerPath, readOnly); err != nil {
		return "", err
	}
	if r.BindMountErr != nil {
		if err := r.BindMountErr(ctx, hostPath, containerPath); err != nil {
			return "", err
		}
	}
	r.mu.Lock()
	r.mounts = append(r.mounts, mount{hostPath: hostPath, containerPath: containerPath, readOnly: readOnly})
	r.mu.Unlock()
	return containerPath, nil
}

func (r *Runtime) CreateSymlink(ctx context.Context, target, link string) error {
	r.record("CreateSymlink", target, link)
	if err := r.evalFault(FaultCreateSymlink, ctx, target, link); err != nil {
		return err
	}
	if r.CreateSymlinkErr != nil {
		if err := r.CreateSymlinkErr(ctx, target, link); err != nil {
			return err
		}
	}
	r.mu.Lock()
	r.links = append(r.links, symlink{target: target, link: link})
	r.mu.Unlock()
	return nil
}

func (r *Runtime) SetEnv(ctx context.Context, name, value string) error {
	r.record("SetEnv", name, value)
	if err := r.evalFault(FaultSetEnv, ctx, name, value); err != nil {
		return err
	}
	if r.SetEnvErr != nil {
		if err := r.SetEnvErr(ctx, name, value); err != nil {
			return err
		}
	}
	r.mu.Lock()
	r.env[name] = value
	r.mu.Unlock()
	return nil
}

func (r *Runtime) Suspend(ctx context.Context) error {
	r.record("Suspend")
	if err := r.evalFault(FaultSuspend, ctx); err != nil {
		return err
	}
	if r.SuspendErr != nil {
		if err := r.SuspendErr(ctx); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateStarted {
		return fmt.Errorf("fakert: cannot suspend, container is not running")
	}
	r.state = stateSuspended
	return nil
}

func (r *Runtime) Resume(ctx context.Context) error {
	r.record("Resume")
	if err := r.evalFault(FaultResume, ctx); err != nil {
		return err
	}
	if r.ResumeErr != nil {
		if err := r.ResumeErr(ctx); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateSuspended {
		return fmt.Errorf("fakert: cannot resume, container is not suspended")
	}
	r.state = stateStarted
	return nil
}

func (r *Runtime) Destroy(ctx context.Context, timeout int) error {
	r.record("Destroy", timeout)
	if err := r.evalFault(FaultDestroy, ctx, timeout); err != nil {
		return err
	}
	if r.DestroyErr != nil {
		if err := r.DestroyErr(ctx, timeout); err != nil {
			return err
		}
	}
	r.mu.Lock()
	r.state = stateDestroyed
	r.mu.Unlock()
	return nil
}

// Env returns a copy of the environment the fake currently tracks.
func (r *Runtime) Env() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.env))
	for k, v := range r.env {
		out[k] = v
	}
	return out
}

// Mounts returns the bind mounts performed so far, in order.
func (r *Runtime) Mounts() []mount {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]mount, len(r.mounts))
	copy(out, r.mounts)
	return out
}
