package interfaces

import "context"

// Notifier delivers operator messages. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, message string)
}
