package publish

import (
	"context"

	"github.com/danmuck/matterctl/internal/device"
)

// Nop drops every result. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, device.Result) error { return nil }

func (Nop) Close(context.Context) error { return nil }
