// Package containerruntime defines the abstract capability set the
// container lifecycle consumes but does not implement:
// namespace/cgroup/chroot mechanics live behind this interface. Two
// implementations are provided: fakert, an in-memory double for tests, and
// dockerrt, a Docker Engine API-backed implementation.
package containerruntime

import (
	"context"
	"fmt"
	"io"
)

// RuntimeError wraps an opaque failure from the underlying runtime.
type RuntimeError struct {
	Detail string
	Err    error
}

func (e *RuntimeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("runtime error: %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("runtime error: %s", e.Detail)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// WrapError wraps err as a RuntimeError with the given detail, or returns
// nil if err is nil. Runtime implementations use this so every error
// returned to the lifecycle layer is errors.As-compatible with
// RuntimeError.
func WrapError(detail string, err error) error {
	if err == nil {
		return nil
	}
	return &RuntimeError{Detail: detail, Err: err}
}

// ExecConfig describes a command attached into a running container.
type ExecConfig struct {
	Command []string
	Env     map[string]string
	Cwd     string
	// Stdout, if non-nil, receives the attached process's combined
	// stdout/stderr stream; the lifecycle typically points this at the
	// out_path file named in an Execute request.
	Stdout io.Writer
}

// Runtime is the capability set ContainerLifecycle drives a container
// through. Every operation is blocking and may be called from a lifecycle
// task's own goroutine — it must never be called concurrently
// for the same container.
type Runtime interface {
	// Create provisions the container's root filesystem and namespaces
	// without starting any process inside it.
	Create(ctx context.Context) error
	// Start brings the container up with no user workload running and
	// returns the container's init pid.
	Start(ctx context.Context) (pid int, err error)
	// Attach launches cmd inside the running container and returns its pid.
	Attach(ctx context.Context, cfg ExecConfig) (pid int, err error)
	// Wait blocks until the process started by Attach with the given pid
	// exits, then returns its exit code. ContainerLifecycle calls this
	// from its own goroutine as its SIGCHLD-equivalent child-exit
	// listener — the runtime, not the
	// lifecycle, owns how that wait is actually implemented (process
	// wait, polling an exec inspect call, etc).
	Wait(ctx context.Context, pid int) (exitCode int, err error)
	// BindMount bind-mounts hostPath into the container at containerPath
	// and returns the path as resolved inside the container.
	BindMount(ctx context.Context, hostPath, containerPath string, readOnly bool) (mountedPath string, err error)
	// CreateSymlink creates a symbolic link inside the container pointing
	// from link to target.
	CreateSymlink(ctx context.Context, target, link string) error
	// SetEnv exports name=value into the container's environment.
	SetEnv(ctx context.Context, name, value string) error
	// Suspend freezes every process in the container.
	Suspend(ctx context.Context) error
	// Resume thaws a suspended container.
	Resume(ctx context.Context) error
	// Destroy tears down the container, waiting up to timeout for a clean
	// shutdown before forcing removal.
	Destroy(ctx context.Context, timeout int) error
}
