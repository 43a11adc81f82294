package decline

import (
	"context"
	"log/slog"
	"time"
)

// Status is the state shown by an Indicator.
type Status string

const (
	StatusWorking Status = "working"
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
)

// Color is the background color used for the status.
func (s Status) Color() string {
	if s == StatusWarning {
		return "#ed8936"
	}
	return "#48bb78"
}

// Indicator shows a transient status message on the page. A new Show
// replaces the previous message. ttl 0 keeps the message until replaced.
type Indicator interface {
	Show(ctx context.Context, status Status, message string, ttl time.Duration) error
}

// LogIndicator writes status changes to a logger.
type LogIndicator struct {
	Logger *slog.Logger
}

// Show implements Indicator.
func (l LogIndicator) Show(_ context.Context, status Status, message string, ttl time.Duration) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("decline: indicator", "status", status, "message", message, "ttl", ttl)
	return nil
}
