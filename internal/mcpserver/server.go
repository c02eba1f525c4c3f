// Package mcpserver exposes the device operations as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"math"
	"strconv"
	"strings"

	"github.com/danmuck/matterctl/internal/device"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

const ServerName = "matterctl"

const (
	ToolTurnOn    = "turn_on_device"
	ToolTurnOff   = "turn_off_device"
	ToolToggle    = "toggle_device"
	ToolReadState = "read_device_state"
	ToolList      = "list_devices"
)

// Devices is the facade the tools call into.
type Devices interface {
	PowerOn(ctx context.Context, addr device.Address) device.Result
	PowerOff(ctx context.Context, addr device.Address) device.Result
	Toggle(ctx context.Context, addr device.Address) device.Result
	ReadState(ctx context.Context, addr device.Address) device.Result
	ListDevices(ctx context.Context) device.Result
}

type Server struct {
	devices Devices
	mcp     *server.MCPServer
	logger  zerolog.Logger
}

func New(devices Devices, version string, logger zerolog.Logger) *Server {
	s := &Server{
		devices: devices,
		mcp: server.NewMCPServer(ServerName, version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
		logger: logger.With().Str("component", "mcp").Logger(),
	}
	s.registerTools()
	return s
}

// MCP returns the underlying tool server.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// Serve speaks MCP over the given streams until ctx is done or in closes.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(stdlog.New(s.logger, "", 0))
	s.logger.Info().Msg("mcpserver.Server.Serve listening on stdio")
	if err := stdio.Listen(ctx, in, out); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp stdio: %w", err)
	}
	return nil
}

func (s *Server) registerTools() {
	s.mcp.AddTool(addressedTool(ToolTurnOn, "Turn on a commissioned Matter device's on/off cluster."), s.addressed(s.devices.PowerOn))
	s.mcp.AddTool(addressedTool(ToolTurnOff, "Turn off a commissioned Matter device's on/off cluster."), s.addressed(s.devices.PowerOff))
	s.mcp.AddTool(addressedTool(ToolToggle, "Toggle a commissioned Matter device's on/off cluster."), s.addressed(s.devices.Toggle))
	s.mcp.AddTool(addressedTool(ToolReadState, "Read whether a commissioned Matter device is on or off."), s.addressed(s.devices.ReadState))
	s.mcp.AddTool(mcp.NewTool(ToolList,
		mcp.WithDescription("List the Matter devices commissioned into the controller's fabric."),
	), s.handleList)
}

func addressedTool(name, description string) mcp.Tool {
	return mcp.NewTool(name,
		mcp.WithDescription(description),
		mcp.WithString("node_id",
			mcp.Description("Matter node id. Defaults to the configured node."),
		),
		mcp.WithString("endpoint_id",
			mcp.Description("Endpoint on the node. Defaults to the configured endpoint."),
		),
	)
}

func (s *Server) addressed(op func(context.Context, device.Address) device.Result) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		addr, err := addressArgs(request)
		if err != nil {
			s.logger.Warn().Err(err).Str("tool", request.Params.Name).Msg("mcpserver.Server rejected arguments")
			return mcp.NewToolResultError("Invalid arguments: " + err.Error()), nil
		}
		s.logger.Debug().Str("tool", request.Params.Name).Str("node", addr.NodeID).Str("endpoint", addr.EndpointID).Msg("mcpserver.Server tool call")
		return toolResult(op(ctx, addr))
	}
}

func addressArgs(request mcp.CallToolRequest) (device.Address, error) {
	node, err := idArg(request, "node_id")
	if err != nil {
		return device.Address{}, err
	}
	endpoint, err := idArg(request, "endpoint_id")
	if err != nil {
		return device.Address{}, err
	}
	return device.Address{NodeID: node, EndpointID: endpoint}, nil
}

func (s *Server) handleList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.logger.Debug().Str("tool", request.Params.Name).Msg("mcpserver.Server tool call")
	return toolResult(s.devices.ListDevices(ctx))
}

// toolResult carries the summary line and the full result as JSON.
func toolResult(res device.Result) (*mcp.CallToolResult, error) {
	body, err := json.Marshal(res)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(res.Summary()),
			mcp.NewTextContent(string(body)),
		},
		IsError: !res.Success,
	}, nil
}

// maxExactID bounds the integers a float64 still holds exactly. Larger
// node ids must be sent as strings.
const maxExactID = 1 << 53

// idArg reads an id sent as a string or as a JSON number. Numbers must be
// non-negative integers a float64 represents exactly; anything else is an
// error rather than a silently different id.
func idArg(request mcp.CallToolRequest, key string) (string, error) {
	arguments, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		return "", nil
	}
	raw, present := arguments[key]
	if !present || raw == nil {
		return "", nil
	}
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v), nil
	case float64:
		if v < 0 || v >= maxExactID || v != math.Trunc(v) {
			return "", fmt.Errorf("%s %v is not an exact integer id, send it as a string", key, v)
		}
		return strconv.FormatUint(uint64(v), 10), nil
	case json.Number:
		if _, err := strconv.ParseUint(v.String(), 10, 64); err != nil {
			return "", fmt.Errorf("%s %s is not an unsigned integer id", key, v)
		}
		return v.String(), nil
	default:
		return "", fmt.Errorf("%s must be a string, got %T", key, raw)
	}
}
