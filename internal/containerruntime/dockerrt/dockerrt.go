// Package dockerrt implements containerruntime.Runtime using the Docker
// Engine API.
package dockerrt

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"scagent/internal/containerruntime"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

var _ containerruntime.Runtime = (*Runtime)(nil)

type bindMount struct {
	hostPath      string
	containerPath string
	readOnly      bool
}

type symlink struct {
	target string
	link   string
}

// Runtime drives a single container's lifecycle through the Docker Engine
// API. Docker cannot add a bind mount or environment variable to a
// container that already exists, so Create and Start only record intent;
// BindMount, SetEnv, and CreateSymlink accumulate into the pending create
// options, and the Docker container is materialized on the first Attach —
// by which point every gateway has finished configuring it.
type Runtime struct {
	cli   *client.Client
	image string
	name  string

	mu           sync.Mutex
	created      bool
	started      bool
	materialized bool
	mounts       []bindMount
	symlinks     []symlink
	env          map[string]string
	execIDs      map[int]string
}

// New creates a Runtime bound to a not-yet-created container named name,
// to be built from image.
func New(cli *client.Client, name, image string) *Runtime {
	return &Runtime{
		cli:     cli,
		image:   image,
		name:    name,
		env:     make(map[string]string),
		execIDs: make(map[int]string),
	}
}

// NewFromEnv creates a Runtime's underlying Docker client from the
// ambient environment (DOCKER_HOST and friends), negotiating the API
// version against the daemon.
func NewFromEnv(name, image string) (*Runtime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return New(cli, name, image), nil
}

func (r *Runtime) Create(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.created {
		return nil
	}
	if _, err := r.cli.Ping(ctx); err != nil {
		return containerruntime.WrapError("docker daemon unreachable", err)
	}
	r.created = true
	return nil
}

func bindMode(readOnly bool) string {
	if readOnly {
		return "ro"
	}
	return "rw"
}

func (r *Runtime) Start(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.created {
		return 0, &containerruntime.RuntimeError{Detail: fmt.Sprintf("start container %q before create", r.name)}
	}
	r.started = true
	return 0, nil
}

// materialize creates and starts the real Docker container from the
// accumulated create options. Called with r.mu held.
func (r *Runtime) materialize(ctx context.Context) error {
	if r.materialized {
		return nil
	}
	if !r.started {
		return &containerruntime.RuntimeError{Detail: fmt.Sprintf("container %q is not started", r.name)}
	}

	envList := make([]string, 0, len(r.env))
	for k, v := range r.env {
		envList = append(envList, fmt.Sprintf("%s=%s", k, v))
	}

	cc := &container.Config{
		Image: r.image,
		Env:   envList,
		Cmd:   []string{"sleep", "infinity"},
	}
	hc := &container.HostConfig{}
	for _, m := range r.mounts {
		hc.Binds = append(hc.Binds, fmt.Sprintf("%s:%s:%s", m.hostPath, m.containerPath, bindMode(m.readOnly)))
	}

	if _, err := r.cli.ContainerCreate(ctx, cc, hc, nil, nil, r.name); err != nil {
		return containerruntime.WrapError(fmt.Sprintf("create container %q", r.name), err)
	}
	if err := r.cli.ContainerStart(ctx, r.name, container.StartOptions{}); err != nil {
		return containerruntime.WrapError(fmt.Sprintf("start container %q", r.name), err)
	}
	for _, l := range r.symlinks {
		if err := r.execQuiet(ctx, []string{"ln", "-sf", l.target, l.link}); err != nil {
			return containerruntime.WrapError(fmt.Sprintf("create symlink %s -> %s", l.link, l.target), err)
		}
	}
	r.materialized = true
	return nil
}

func (r *Runtime) Attach(ctx context.Context, cfg containerruntime.ExecConfig) (int, error) {
	r.mu.Lock()
	err := r.materialize(ctx)
	r.mu.Unlock()
	if err != nil {
		return 0, err
	}

	env := make([]string, 0, len(cfg.Env))
	for k, v := range cfg.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	exec, err := r.cli.ContainerExecCreate(ctx, r.name, container.ExecOptions{
		Cmd:          cfg.Command,
		Env:          env,
		WorkingDir:   cfg.Cwd,
		AttachStdout: cfg.Stdout != nil,
		AttachStderr: cfg.Stdout != nil,
	})
	if err != nil {
		return 0, containerruntime.WrapError(fmt.Sprintf("create exec in %q", r.name), err)
	}

	if cfg.Stdout != nil {
		resp, err := r.cli.ContainerExecAttach(ctx, exec.ID, container.ExecAttachOptions{})
		if err != nil {
			return 0, containerruntime.WrapError(fmt.Sprintf("attach exec in %q", r.name), err)
		}
		go func() {
			defer resp.Close()
			_, _ = io.Copy(cfg.Stdout, resp.Reader)
		}()
	} else if err := r.cli.ContainerExecStart(ctx, exec.ID, container.ExecStartOptions{}); err != nil {
		return 0, containerruntime.WrapError(fmt.Sprintf("start exec in %q", r.name), err)
	}

	inspect, err := r.cli.ContainerExecInspect(ctx, exec.ID)
	if err != nil {
		return 0, containerruntime.WrapError(fmt.Sprintf("inspect exec in %q", r.name), err)
	}

	r.mu.Lock()
	r.execIDs[inspect.Pid] = exec.ID
	r.mu.Unlock()

	return inspect.Pid, nil
}

// Wait polls the exec started for pid until the daemon reports it no
// longer running, following the same poll-and-log shape as WaitReady.
func (r *Runtime) Wait(ctx context.Context, pid int) (int, error) {
	r.mu.Lock()
	execID, ok := r.execIDs[pid]
	r.mu.Unlock()
	if !ok {
		return 0, &containerruntime.RuntimeError{Detail: fmt.Sprintf("wait on unknown pid %d in %q", pid, r.name)}
	}

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		inspect, err := r.cli.ContainerExecInspect(ctx, execID)
		if err != nil {
			return 0, containerruntime.WrapError(fmt.Sprintf("inspect exec %s in %q", execID, r.name), err)
		}
		if !inspect.Running {
			return inspect.ExitCode, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Runtime) execQuiet(ctx context.Context, cmd []string) error {
	exec, err := r.cli.ContainerExecCreate(ctx, r.name, container.ExecOptions{Cmd: cmd})
	if err != nil {
		return err
	}
	return r.cli.ContainerExecStart(ctx, exec.ID, container.ExecStartOptions{})
}

func (r *Runtime) BindMount(ctx context.Context, hostPath, containerPath string, readOnly bool) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.materialized {
		return "", &containerruntime.RuntimeError{Detail: fmt.Sprintf("bind mount %s after container %q already materialized", hostPath, r.name)}
	}
	r.mounts = append(r.mounts, bindMount{hostPath: hostPath, containerPath: containerPath, readOnly: readOnly})
	return containerPath, nil
}

func (r *Runtime) CreateSymlink(ctx context.Context, target, link string) error {
	r.mu.Lock()
	materialized := r.materialized
	if !materialized {
		r.symlinks = append(r.symlinks, symlink{target: target, link: link})
	}
	r.mu.Unlock()

	if !materialized {
		return nil
	}
	err := r.execQuiet(ctx, []string{"ln", "-sf", target, link})
	return containerruntime.WrapError(fmt.Sprintf("create symlink %s -> %s", link, target), err)
}

func (r *Runtime) SetEnv(ctx context.Context, name, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.materialized {
		return &containerruntime.RuntimeError{Detail: fmt.Sprintf("set env %s after container %q already materialized", name, r.name)}
	}
	r.env[name] = value
	return nil
}

func (r *Runtime) Suspend(ctx context.Context) error {
	if err := r.cli.ContainerPause(ctx, r.name); err != nil {
		return containerruntime.WrapError(fmt.Sprintf("pause container %q", r.name), err)
	}
	return nil
}

func (r *Runtime) Resume(ctx context.Context) error {
	if err := r.cli.ContainerUnpause(ctx, r.name); err != nil {
		return containerruntime.WrapError(fmt.Sprintf("unpause container %q", r.name), err)
	}
	return nil
}

func (r *Runtime) Destroy(ctx context.Context, timeout int) error {
	r.mu.Lock()
	materialized := r.materialized
	r.mu.Unlock()
	if !materialized {
		return nil
	}

	secs := timeout
	if err := r.cli.ContainerStop(ctx, r.name, container.StopOptions{Timeout: &secs}); err != nil && !errdefs.IsNotFound(err) {
		slog.Warn("dockerrt: stop before remove failed, forcing removal", "container", r.name, "err", err)
	}
	if err := r.cli.ContainerRemove(ctx, r.name, container.RemoveOptions{Force: true}); err != nil && !errdefs.IsNotFound(err) {
		return containerruntime.WrapError(fmt.Sprintf("remove container %q", r.name), err)
	}
	return nil
}

// WaitReady blocks until the Docker daemon answers a ping.
func WaitReady(ctx context.Context, cli *client.Client) error {
	log := slog.With("component", "dockerrt")
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	waiting := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := cli.Ping(ctx); err == nil {
				if waiting {
					log.Debug("daemon reachable")
				}
				return nil
			} else if !client.IsErrConnectionFailed(err) {
				log.Error("ping failed", "err", err)
				return fmt.Errorf("connect to docker daemon: %w", err)
			} else if !waiting {
				waiting = true
				log.Debug("waiting for docker daemon")
			}
		}
	}
}
