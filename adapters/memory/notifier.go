package memory

import (
	"context"
	"sync"

	"github.com/artpar/apicore/ports"
)

// Notifier records notifications (for testing).
type Notifier struct {
	mu    sync.Mutex
	items []ports.Notification
}

// NewNotifier creates a recording notifier.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Notify records n.
func (n *Notifier) Notify(ctx context.Context, note ports.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, note)
}

// Notifications returns the recorded notifications.
func (n *Notifier) Notifications() []ports.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]ports.Notification, len(n.items))
	copy(out, n.items)
	return out
}

// Ensure interface compliance.
var _ ports.Notifier = (*Notifier)(nil)
