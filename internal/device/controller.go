package device

import (
	"context"

	"github.com/danmuck/matterctl/internal/observability"
	"github.com/rs/zerolog"
)

// Executor runs one shell command and returns its filtered output.
type Executor interface {
	Execute(ctx context.Context, command string) (string, error)
}

// Publisher receives every Result after it is built.
type Publisher interface {
	Publish(ctx context.Context, result Result) error
}

// Config carries the defaults a Controller resolves addresses against.
type Config struct {
	DefaultAddress Address
	Commands       Vocabulary
}

func DefaultConfig() Config {
	return Config{
		DefaultAddress: Address{NodeID: "1", EndpointID: "1"},
		Commands:       DefaultVocabulary(),
	}
}

// Controller exposes the five device operations over one Executor.
type Controller struct {
	exec      Executor
	cfg       Config
	publisher Publisher
	logger    zerolog.Logger
}

type Option func(*Controller)

func WithPublisher(p Publisher) Option {
	return func(c *Controller) {
		c.publisher = p
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

func NewController(exec Executor, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		exec:   exec,
		cfg:    cfg,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "device").Logger()
	return c
}

// DefaultAddress reports the address used for empty fields.
func (c *Controller) DefaultAddress() Address {
	return c.cfg.DefaultAddress
}

func (c *Controller) PowerOn(ctx context.Context, addr Address) Result {
	return c.setPower(ctx, OpPowerOn, c.cfg.Commands.On, "Turned on", "Failed to turn on", addr)
}

func (c *Controller) PowerOff(ctx context.Context, addr Address) Result {
	return c.setPower(ctx, OpPowerOff, c.cfg.Commands.Off, "Turned off", "Failed to turn off", addr)
}

func (c *Controller) Toggle(ctx context.Context, addr Address) Result {
	return c.setPower(ctx, OpToggle, c.cfg.Commands.Toggle, "Toggled", "Failed to toggle", addr)
}

func (c *Controller) setPower(ctx context.Context, op, tmpl, done, failed string, addr Address) Result {
	addr = addr.withDefaults(c.cfg.DefaultAddress)
	res := Result{Operation: op, NodeID: addr.NodeID, EndpointID: addr.EndpointID}
	if err := addr.Validate(); err != nil {
		res.Message = failed + " " + addr.String()
		res.Error = err.Error()
		return c.finish(ctx, res)
	}

	out, err := c.exec.Execute(ctx, render(tmpl, addr))
	if err != nil {
		res.Message = failed + " " + addr.String()
		res.Error = describeFailure(err)
		return c.finish(ctx, res)
	}
	res.Success = true
	res.Message = done + " " + addr.String()
	res.RawOutput = out
	return c.finish(ctx, res)
}

// ReadState reads the on/off attribute. IsOn stays nil when the read fails.
func (c *Controller) ReadState(ctx context.Context, addr Address) Result {
	addr = addr.withDefaults(c.cfg.DefaultAddress)
	res := Result{Operation: OpReadState, NodeID: addr.NodeID, EndpointID: addr.EndpointID}
	if err := addr.Validate(); err != nil {
		res.Message = "Failed to read power state of " + addr.String()
		res.Error = err.Error()
		return c.finish(ctx, res)
	}

	out, err := c.exec.Execute(ctx, render(c.cfg.Commands.Read, addr))
	if err != nil {
		res.Message = "Failed to read power state of " + addr.String()
		res.Error = describeFailure(err)
		return c.finish(ctx, res)
	}
	isOn := ParseOnOff(out)
	state := "off"
	if isOn {
		state = "on"
	}
	res.Success = true
	res.Message = "Power state of " + addr.String() + " is " + state
	res.RawOutput = out
	res.IsOn = &isOn
	return c.finish(ctx, res)
}

func (c *Controller) ListDevices(ctx context.Context) Result {
	res := Result{Operation: OpList}

	out, err := c.exec.Execute(ctx, render(c.cfg.Commands.List, c.cfg.DefaultAddress))
	if err != nil {
		res.Message = "Failed to list devices"
		res.Error = describeFailure(err)
		return c.finish(ctx, res)
	}
	if out == "" {
		out = NoDevicesMessage
	}
	res.Success = true
	res.Message = "Listed commissioned devices"
	res.RawOutput = out
	return c.finish(ctx, res)
}

func (c *Controller) finish(ctx context.Context, res Result) Result {
	observability.RecordOperation(res.Operation, res.Success)

	event := c.logger.Info()
	if !res.Success {
		event = c.logger.Warn().Str("error", res.Error)
	}
	event.
		Str("operation", res.Operation).
		Str("node", res.NodeID).
		Str("endpoint", res.EndpointID).
		Bool("success", res.Success).
		Msg("device.Controller operation complete")

	if c.publisher != nil {
		if err := c.publisher.Publish(ctx, res); err != nil {
			c.logger.Warn().Err(err).Str("operation", res.Operation).Msg("device.Controller publish failed")
		}
	}
	return res
}
