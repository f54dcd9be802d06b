package sdk

import "log/slog"

// ToastLevel is the visual severity of a toast notification.
type ToastLevel string

// Toast levels.
const (
	ToastInfo    ToastLevel = "info"
	ToastSuccess ToastLevel = "success"
	ToastWarning ToastLevel = "warning"
	ToastError   ToastLevel = "error"
)

// ToastSink receives toast notifications raised by plugins. The UI shell
// installs a real sink; the default logs.
type ToastSink interface {
	Show(level ToastLevel, message, description string)
}

// LogToastSink writes toasts to the host log. Used when no UI shell is
// attached (headless mode, tests).
type LogToastSink struct {
	Logger *slog.Logger
}

// Show logs the toast.
func (s *LogToastSink) Show(level ToastLevel, message, description string) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("toast", "level", string(level), "message", message, "description", description)
}
