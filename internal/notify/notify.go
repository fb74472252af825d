// Package notify delivers operator messages. Delivery never blocks trading on failure.
package notify

import (
	"context"
	"fmt"
	"time"

	"stock-autotrader/internal/api"
	"stock-autotrader/internal/interfaces"
	"stock-autotrader/internal/logger"
)

// Discord posts messages to a Discord webhook.
type Discord struct {
	webhookURL string
	http       *api.Client
	now        func() time.Time
}

var _ interfaces.Notifier = (*Discord)(nil)

func NewDiscord(webhookURL string, opts ...api.ClientOption) *Discord {
	base := []api.ClientOption{api.WithTimeout(5 * time.Second)}
	return &Discord{
		webhookURL: webhookURL,
		http:       api.NewClient(append(base, opts...)...),
		now:        time.Now,
	}
}

// Send posts one message and reports the error, if any.
func (d *Discord) Send(ctx context.Context, message string) error {
	payload := map[string]string{
		"content": fmt.Sprintf("[%s] %s", d.now().Format("2006-01-02 15:04:05"), message),
	}
	_, err := d.http.POST(ctx, d.webhookURL, payload)
	return err
}

// Notify is fire-and-forget: failures are logged at WARN and dropped.
func (d *Discord) Notify(ctx context.Context, message string) {
	if err := d.Send(ctx, message); err != nil {
		logger.Warn(ctx, "Discord notification failed", "error", err)
	}
}

// Noop discards messages. Used when no webhook is configured.
type Noop struct{}

func (Noop) Notify(ctx context.Context, message string) {
	logger.Debug(ctx, "Notification", "message", message)
}

// New returns a Discord notifier when enabled with a webhook, otherwise Noop.
func New(enabled bool, webhookURL string) interfaces.Notifier {
	if !enabled || webhookURL == "" {
		return Noop{}
	}
	return NewDiscord(webhookURL)
}
