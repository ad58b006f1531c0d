package serialmux

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/gridrunner/internal/monitoring"
)

// unhandledLog limits noise from firmware chatter at telemetry rate.
var unhandledLog = monitoring.NewThrottle(10 * time.Second)

// Handler processes one controller line.
type Handler func(payload string) error

// Dispatcher routes lines to handlers by event type.
type Dispatcher map[string]Handler

// HandleEvent classifies payload and runs its handler. Lines without a
// handler are logged and dropped.
func (d Dispatcher) HandleEvent(payload string) error {
	kind := ClassifyPayload(payload)
	h, ok := d[kind]
	if !ok {
		unhandledLog.Logf(kind, "serialmux: unhandled %s line: %q", kind, payload)
		return nil
	}
	if err := h(payload); err != nil {
		return fmt.Errorf("failed to handle %s line: %w", kind, err)
	}
	return nil
}

// Serve subscribes to mux and dispatches every line until ctx is done or
// the subscription closes. Handler errors are logged, not returned.
func (d Dispatcher) Serve(ctx context.Context, mux SerialMuxInterface) error {
	id, lines := mux.Subscribe()
	defer mux.Unsubscribe(id)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := d.HandleEvent(line); err != nil {
				unhandledLog.Logf("error:"+ClassifyPayload(line), "serialmux: %v", err)
			}
		}
	}
}
