// Package notify provides notifiers that surface terminal call failures.
package notify

import (
	"context"

	"github.com/artpar/apicore/ports"
	"github.com/rs/zerolog"
)

// LogNotifier writes notifications to a zerolog logger.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a notifier that logs through logger.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notify").Logger()}
}

// Notify logs n at a level matching n.Level.
func (n *LogNotifier) Notify(ctx context.Context, note ports.Notification) {
	event := n.logger.Info()
	switch note.Level {
	case "error":
		event = n.logger.Error()
	case "warning":
		event = n.logger.Warn()
	}

	event.
		Str("endpoint", note.EndpointKey).
		Str("code", string(note.Code)).
		Str("title", note.Title).
		Msg(note.Message)
}

// Ensure interface compliance.
var _ ports.Notifier = (*LogNotifier)(nil)
