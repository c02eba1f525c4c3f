package main

import (
	"context"
	"fmt"
	"time"

	"github.com/danmuck/matterctl/internal/auth"
	"github.com/danmuck/matterctl/internal/config"
	"github.com/danmuck/matterctl/internal/device"
	"github.com/danmuck/matterctl/internal/httpapi"
	"github.com/danmuck/matterctl/internal/logging"
	"github.com/danmuck/matterctl/internal/mcpserver"
	"github.com/spf13/cobra"
)

const closeTimeout = 2 * time.Second

// withRuntime loads config, runs fn and closes the runtime afterwards.
func withRuntime(cmd *cobra.Command, configPath string, fn func(context.Context, *runtime) error) error {
	ctx := cmd.Context()
	rt, err := loadRuntime(ctx, configPath)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		rt.Close(closeCtx)
	}()
	return fn(ctx, rt)
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the device tools over MCP stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, *configPath, func(ctx context.Context, rt *runtime) error {
				srv := mcpserver.New(rt.controller, Version, logging.New("matterctl"))
				return srv.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
			})
		},
	}
}

func newHTTPCmd(configPath *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "http",
		Short: "Serve the device operations over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, *configPath, func(ctx context.Context, rt *runtime) error {
				listen := rt.cfg.HTTP.Addr
				if addr != "" {
					listen = addr
				}
				var opts []httpapi.Option
				if rt.cfg.HTTP.Token != "" {
					opts = append(opts, httpapi.WithAuth(auth.StaticToken{Token: rt.cfg.HTTP.Token}))
				}
				if len(rt.cfg.HTTP.CORSOrigins) > 0 {
					opts = append(opts, httpapi.WithCORS(rt.cfg.HTTP.CORSOrigins))
				}
				srv := httpapi.New(rt.controller, Version, logging.New("matterctl"), opts...)
				return srv.ListenAndServe(ctx, listen)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides [http].addr")
	return cmd
}

type addressedOp func(*device.Controller, context.Context, device.Address) device.Result

func newPowerCmd(configPath *string, use, short string, op addressedOp) *cobra.Command {
	var addr device.Address
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, *configPath, func(ctx context.Context, rt *runtime) error {
				return printResult(cmd, op(rt.controller, ctx, addr))
			})
		},
	}
	cmd.Flags().StringVarP(&addr.NodeID, "node", "n", "", "node id, defaults to [device].node_id")
	cmd.Flags().StringVarP(&addr.EndpointID, "endpoint", "e", "", "endpoint id, defaults to [device].endpoint_id")
	return cmd
}

func newListCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List commissioned devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, *configPath, func(ctx context.Context, rt *runtime) error {
				return printResult(cmd, rt.controller.ListDevices(ctx))
			})
		},
	}
}

func newConfigCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Write or check the config file",
	}

	var output string
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target := output
			if target == "" {
				target = *configPath
			}
			if err := config.WriteTemplate(target, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote config template to %s\n", target)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&output, "output", "o", "", "output path, defaults to --config")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := config.Load(*configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "validated config at %s\n", *configPath)
			return nil
		},
	}

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}
