// matterctl drives commissioned Matter devices through chip-tool, as MCP
// tools over stdio, an HTTP API or one-shot commands.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/matterctl/internal/device"
	"github.com/danmuck/matterctl/internal/logging"
	"github.com/spf13/cobra"
)

var Version = "0.1.0"

// errOperationFailed marks a failed Result that was already printed.
var errOperationFailed = errors.New("operation failed")

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "matterctl",
		Short: "Control Matter devices through chip-tool",
		Long: `matterctl runs one chip-tool interactive session per operation.

Use "serve" to expose the operations as MCP tools over stdio, "http" for the
REST surface, or the on/off/toggle/state/list commands directly.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			logging.ConfigureRuntime()
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to the TOML config file")

	root.AddCommand(
		newServeCmd(&configPath),
		newHTTPCmd(&configPath),
		newPowerCmd(&configPath, "on", "Turn a device on", (*device.Controller).PowerOn),
		newPowerCmd(&configPath, "off", "Turn a device off", (*device.Controller).PowerOff),
		newPowerCmd(&configPath, "toggle", "Toggle a device", (*device.Controller).Toggle),
		newPowerCmd(&configPath, "state", "Read whether a device is on", (*device.Controller).ReadState),
		newListCmd(&configPath),
		newConfigCmd(&configPath),
	)
	return root
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func execute(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errOperationFailed) {
			fmt.Fprintf(stderr, "matterctl: %v\n", err)
		}
		return 1
	}
	return 0
}

// printResult writes res as indented JSON and reports failure to the caller.
func printResult(cmd *cobra.Command, res device.Result) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if !res.Success {
		return errOperationFailed
	}
	return nil
}
