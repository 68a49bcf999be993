// Package scerrors holds the error taxonomy members that don't belong to
// any single component: BridgeMissing and NetworkSetupFailure
// (NetworkGateway), ProxySpawnFailure and ProxySocketTimeout
// (DBusProxySupervisor), StateError and
// GatewayTeardownIncomplete (ContainerLifecycle). The component-specific
// members (InvalidConfig, UnknownCapability, NetlinkError, RuntimeError)
// live next to the component that raises them.
package scerrors

import (
	"fmt"
	"strings"
)

// BridgeMissingError reports that the host bridge a NetworkGateway expects
// is not present or not at the expected address.
type BridgeMissingError struct {
	Bridge  string
	Address string
}

func (e *BridgeMissingError) Error() string {
	return fmt.Sprintf("bridge %q not available at address %s", e.Bridge, e.Address)
}

// NetworkSetupFailureError is how a NetworkGateway propagates a failed
// activation step (bringing the interface up over netlink, installing
// rules through the container runtime, setting the default route over
// netlink). Teardown does not produce it.
type NetworkSetupFailureError struct {
	Step string
	Err  error
}

func (e *NetworkSetupFailureError) Error() string {
	return fmt.Sprintf("network setup failed: %s: %v", e.Step, e.Err)
}

func (e *NetworkSetupFailureError) Unwrap() error { return e.Err }

// ProxySpawnFailureError reports that the external D-Bus proxy binary
// could not be started.
type ProxySpawnFailureError struct {
	Bus string
	Err error
}

func (e *ProxySpawnFailureError) Error() string {
	return fmt.Sprintf("spawn %s proxy: %v", e.Bus, e.Err)
}

func (e *ProxySpawnFailureError) Unwrap() error { return e.Err }

// ProxySocketTimeoutError reports that the proxy socket never appeared
// within the polling window.
type ProxySocketTimeoutError struct {
	SocketPath string
	Attempts   int
}

func (e *ProxySocketTimeoutError) Error() string {
	return fmt.Sprintf("proxy socket %s did not appear after %d attempts", e.SocketPath, e.Attempts)
}

// StateError reports an operation requested in an incompatible lifecycle
// state.
type StateError struct {
	ContainerId int
	State       string
	Operation   string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("container %d: cannot %s while in state %s", e.ContainerId, e.Operation, e.State)
}

// GatewayTeardownIncompleteError aggregates the gateway ids whose teardown
// failed. Non-fatal to the lifecycle transition that produced it.
type GatewayTeardownIncompleteError struct {
	FailedGatewayIds []string
}

func (e *GatewayTeardownIncompleteError) Error() string {
	return fmt.Sprintf("gateway teardown incomplete: %s", strings.Join(e.FailedGatewayIds, ", "))
}
