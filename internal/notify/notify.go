// Package notify delivers alert messages to external channels.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"pulseboard/internal/alert"
	"pulseboard/internal/telemetry"
)

// Sender is one outbound channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, subject, message string) error
}

// Dispatcher fans an alert message out to the channels a rule asks for.
// Channel failures are recorded, never propagated.
type Dispatcher struct {
	Senders map[alert.NotificationMethod]Sender
	Logger  *slog.Logger
}

func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{Senders: map[alert.NotificationMethod]Sender{}, Logger: logger}
}

func (d *Dispatcher) Register(method alert.NotificationMethod, sender Sender) {
	d.Senders[method] = sender
}

// Dispatch returns sent=true when at least one channel delivered, plus a
// per-channel result summary for the history record.
func (d *Dispatcher) Dispatch(ctx context.Context, methods []alert.NotificationMethod, subject, message string) (bool, string) {
	if len(methods) == 0 {
		return false, "no notification methods configured"
	}
	sent := false
	results := make([]string, 0, len(methods))
	for _, method := range methods {
		sender, ok := d.Senders[method]
		if !ok {
			results = append(results, fmt.Sprintf("%s: not configured", method))
			continue
		}
		if err := sender.Send(ctx, subject, message); err != nil {
			telemetry.NotificationFailures.Inc()
			d.Logger.Warn("notification failed",
				slog.String("channel", sender.Name()),
				slog.String("error", err.Error()))
			results = append(results, fmt.Sprintf("%s: %v", method, err))
			continue
		}
		sent = true
		results = append(results, fmt.Sprintf("%s: ok", method))
	}
	return sent, strings.Join(results, "; ")
}
