// Command scagentd is the SoftwareContainer agent daemon: it loads a
// capabilities file, wires the concrete gateways and container runtime
// backend, and drives AgentCore. The IPC surface that would expose
// AgentCore's methods over D-Bus or another transport is out of scope
// — this binary's job ends at having a ready AgentCore.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"scagent/internal/agentcore"
	"scagent/internal/capability"
	"scagent/internal/containerruntime"
	"scagent/internal/containerruntime/dockerrt"
	"scagent/internal/lifecycle"
	"scagent/internal/logging"

	systemddbus "github.com/coreos/go-systemd/v22/dbus"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var debug bool
	var capabilitiesFile string
	var capabilitiesFormat string
	var gatewayDir string
	var proxyBinary string
	var bridgeName string
	var vethPrefix string
	var containerImage string
	var destroyTimeout int

	cmd := &cobra.Command{
		Use:   "scagentd",
		Short: "SoftwareContainer agent",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := logging.LevelInfo
			if debug {
				level = logging.LevelDebug
			}
			return logging.Configure(level)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			data, err := os.ReadFile(capabilitiesFile)
			if err != nil {
				return fmt.Errorf("read capabilities file: %w", err)
			}
			var capStore *capability.Store
			switch capabilitiesFormat {
			case "", "json":
				capStore, err = capability.Load(data)
			case "yaml":
				capStore, err = capability.LoadYAML(data)
			default:
				return fmt.Errorf("unknown --capabilities-format %q", capabilitiesFormat)
			}
			if err != nil {
				return fmt.Errorf("load capabilities: %w", err)
			}

			systemdConn, err := systemddbus.NewSystemdConnectionContext(ctx)
			if err != nil {
				return fmt.Errorf("connect to systemd: %w", err)
			}
			defer systemdConn.Close()

			core := agentcore.New(agentcore.Config{
				GatewayDir:       gatewayDir,
				ProxyBinary:      proxyBinary,
				VethPrefix:       vethPrefix,
				BridgeName:       bridgeName,
				CgroupUnitPrefix: "softwarecontainer-",
				SystemdConn:      systemdConn,
				DestroyTimeout:   destroyTimeout,
				RuntimeFactory: func(id int) (containerruntime.Runtime, error) {
					return dockerrt.NewFromEnv(fmt.Sprintf("softwarecontainer-%d", id), containerImage)
				},
			}, capStore, func(ev lifecycle.Event) {
				slog.Info("container process state changed",
					"container_id", ev.ContainerId, "pid", ev.Pid,
					"running", ev.IsRunning, "exit_code", ev.ExitCode)
			})

			slog.Info("scagentd ready", "capabilities", core.ListCapabilities())
			<-ctx.Done()
			slog.Info("scagentd shutting down")
			return nil
		},
	}

	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&capabilitiesFile, "capabilities-file", "/etc/softwarecontainer/capabilities.json", "Path to the capabilities definition file")
	cmd.Flags().StringVar(&capabilitiesFormat, "capabilities-format", "json", "Capabilities file format: json or yaml")
	cmd.Flags().StringVar(&gatewayDir, "gateway-dir", "/var/run/softwarecontainer", "Working directory for gateway sockets and proxy state")
	cmd.Flags().StringVar(&proxyBinary, "dbus-proxy-binary", "dbus-proxy", "D-Bus filtering proxy executable")
	cmd.Flags().StringVar(&bridgeName, "bridge", "sc-bridge", "Host bridge network containers attach to")
	cmd.Flags().StringVar(&vethPrefix, "veth-prefix", "sc-veth", "Host-side veth interface name prefix")
	cmd.Flags().StringVar(&containerImage, "image", "softwarecontainer-base", "Container image used for new containers")
	cmd.Flags().IntVar(&destroyTimeout, "destroy-timeout", 5, "Seconds to wait for a container to stop before force-destroying it")
	return cmd
}
